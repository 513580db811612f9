// Package mongostore keeps chunk vectors in a MongoDB Atlas collection and
// queries them with $vectorSearch.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdf-rag-platform/internal/vectorstore"
	"pdf-rag-platform/models"
)

type chunkDocument struct {
	ID                   string    `bson:"_id"`
	Text                 string    `bson:"text"`
	Vector               []float32 `bson:"vector"`
	models.ChunkMetadata `bson:",inline"`
}

type searchHit struct {
	ID                   string  `bson:"_id"`
	Text                 string  `bson:"text"`
	Score                float64 `bson:"score"`
	models.ChunkMetadata `bson:",inline"`
}

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	indexName  string
	dimension  int
}

func NewStore(client *mongo.Client, dbName, collection, indexName string, dimension int) *Store {
	return &Store{
		client:     client,
		collection: client.Database(dbName).Collection(collection),
		indexName:  indexName,
		dimension:  dimension,
	}
}

// Add inserts every record inside one transaction.
func (s *Store) Add(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.ValidateRecords(records, s.dimension); err != nil {
		return err
	}

	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = chunkDocument{ID: r.ID, Text: r.Document, Vector: r.Vector, ChunkMetadata: r.Metadata}
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.collection.InsertMany(sc, docs)
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", vectorstore.ErrDuplicateID, err)
		}
		return fmt.Errorf("mongostore: insert %d chunks: %w", len(docs), err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) (*vectorstore.QueryResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("mongostore: topK must be positive, got %d", topK)
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, store has %d", vectorstore.ErrDimensionMatch, len(vector), s.dimension)
	}

	cursor, err := s.collection.Aggregate(ctx, searchPipeline(s.indexName, vector, topK, filter))
	if err != nil {
		return nil, fmt.Errorf("mongostore: vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var hits []searchHit
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("mongostore: decode results: %w", err)
	}

	result := &vectorstore.QueryResult{}
	for _, h := range hits {
		result.IDs = append(result.IDs, h.ID)
		result.Documents = append(result.Documents, h.Text)
		result.Metadatas = append(result.Metadatas, h.ChunkMetadata)
		result.Scores = append(result.Scores, float32(h.Score))
	}
	return result, nil
}

// DeleteByFilter removes every matching chunk inside one transaction.
func (s *Store) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	session, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(ctx)

	res, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.collection.DeleteMany(sc, matchFilter(filter))
	})
	if err != nil {
		return 0, fmt.Errorf("mongostore: delete: %w", err)
	}
	return int(res.(*mongo.DeleteResult).DeletedCount), nil
}

// indexAlreadyExists is the server code for creating an index whose name is taken.
const indexAlreadyExists = 68

// EnsureVectorIndex creates the Atlas vector search index used by Query. An
// index that already exists under the same name is left as is.
func (s *Store) EnsureVectorIndex(ctx context.Context) error {
	model := mongo.SearchIndexModel{
		Definition: VectorIndexDefinition(s.dimension),
		Options:    options.SearchIndexes().SetName(s.indexName).SetType("vectorSearch"),
	}
	if _, err := s.collection.SearchIndexes().CreateOne(ctx, model); err != nil {
		var se mongo.ServerError
		if errors.As(err, &se) && se.HasErrorCode(indexAlreadyExists) {
			return nil
		}
		return fmt.Errorf("mongostore: create vector index %q: %w", s.indexName, err)
	}
	return nil
}

// VectorIndexDefinition describes a cosine index over the vector field plus
// every field $vectorSearch is allowed to pre-filter on.
func VectorIndexDefinition(dimension int) bson.D {
	fields := bson.A{
		bson.D{
			{Key: "type", Value: "vector"},
			{Key: "path", Value: "vector"},
			{Key: "numDimensions", Value: dimension},
			{Key: "similarity", Value: "cosine"},
		},
	}
	for _, path := range []string{
		vectorstore.FieldTenantID,
		vectorstore.FieldDocumentID,
		vectorstore.FieldChunkID,
		vectorstore.FieldPageNumber,
	} {
		fields = append(fields, bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: path}})
	}
	return bson.D{{Key: "fields", Value: fields}}
}

// matchFilter renders f as an implicit $and of $eq conditions, keys sorted so
// the same filter always produces the same document.
func matchFilter(f vectorstore.Filter) bson.D {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make(bson.D, 0, len(fields))
	for _, field := range fields {
		var value interface{} = f[field]
		if field == vectorstore.FieldPageNumber {
			n, _ := strconv.Atoi(f[field])
			value = n
		}
		out = append(out, bson.E{Key: field, Value: bson.D{{Key: "$eq", Value: value}}})
	}
	return out
}

func searchPipeline(indexName string, vector []float32, topK int, f vectorstore.Filter) mongo.Pipeline {
	numCandidates := topK * 20
	if numCandidates < 100 {
		numCandidates = 100
	}
	if numCandidates > 10000 {
		numCandidates = 10000
	}

	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: indexName},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: topK},
			{Key: "filter", Value: matchFilter(f)},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "vector", Value: 0},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}
