// Package pgvector stores chunk vectors in PostgreSQL using the pgvector
// extension and cosine distance.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"pdf-rag-platform/internal/vectorstore"
)

const uniqueViolation = "23505"

var filterColumns = map[string]string{
	vectorstore.FieldDocumentID: "document_id",
	vectorstore.FieldTenantID:   "tenant_id",
	vectorstore.FieldChunkID:    "chunk_id",
	vectorstore.FieldPageNumber: "page_number",
}

type Store struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

func NewStore(pool *pgxpool.Pool, table string, dimension int) *Store {
	return &Store{pool: pool, table: table, dimension: dimension}
}

// EnsureSchema creates the chunk table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			tenant_id   TEXT NOT NULL,
			chunk_id    TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			document    TEXT NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (tenant_id, document_id)`,
			pgx.Identifier{s.table + "_tenant_document_idx"}.Sanitize(), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{s.table + "_embedding_idx"}.Sanitize(), table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: ensure schema: %w", err)
		}
	}
	return nil
}

// Add writes all records in one transaction.
func (s *Store) Add(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.ValidateRecords(records, s.dimension); err != nil {
		return err
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, document_id, tenant_id, chunk_id, page_number, document, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, pgx.Identifier{s.table}.Sanitize())

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			m := r.Metadata
			batch.Queue(insert, r.ID, m.DocumentID, m.TenantID, m.ChunkID, m.PageNumber, r.Document, pgv.NewVector(r.Vector))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", vectorstore.ErrDuplicateID, pgErr.Detail)
		}
		return fmt.Errorf("pgvector: insert %d chunks: %w", len(records), err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) (*vectorstore.QueryResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("pgvector: topK must be positive, got %d", topK)
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, store has %d", vectorstore.ErrDimensionMatch, len(vector), s.dimension)
	}

	where, args := whereClause(filter, 2)
	query := fmt.Sprintf(`SELECT id, document, document_id, tenant_id, chunk_id, page_number, 1 - (embedding <=> $1) AS score
		FROM %s WHERE %s ORDER BY embedding <=> $1 LIMIT %d`, pgx.Identifier{s.table}.Sanitize(), where, topK)

	rows, err := s.pool.Query(ctx, query, append([]any{pgv.NewVector(vector)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	result := &vectorstore.QueryResult{}
	for rows.Next() {
		var (
			id, doc string
			score   float64
			rec     vectorstore.Record
		)
		m := &rec.Metadata
		if err := rows.Scan(&id, &doc, &m.DocumentID, &m.TenantID, &m.ChunkID, &m.PageNumber, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, doc)
		result.Metadatas = append(result.Metadatas, rec.Metadata)
		result.Scores = append(result.Scores, float32(score))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: query rows: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	where, args := whereClause(filter, 1)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, pgx.Identifier{s.table}.Sanitize(), where), args...)
	if err != nil {
		return 0, fmt.Errorf("pgvector: delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// whereClause renders a validated filter as "col = $n AND ..." starting at
// placeholder firstArg, with columns in a stable order.
func whereClause(f vectorstore.Filter, firstArg int) (string, []any) {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for i, field := range fields {
		conds = append(conds, fmt.Sprintf("%s = $%d", filterColumns[field], firstArg+i))
		if field == vectorstore.FieldPageNumber {
			n, _ := strconv.Atoi(f[field])
			args = append(args, n)
			continue
		}
		args = append(args, f[field])
	}
	return strings.Join(conds, " AND "), args
}
