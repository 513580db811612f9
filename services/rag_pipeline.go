package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/telemetry"
	"pdf-rag-platform/internal/vectorstore"
	"pdf-rag-platform/models"
)

var tracer = otel.Tracer("rag-pipeline")

// DocumentExtractor reads a staged PDF into cleaned pages.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) ([]models.Page, error)
}

// Chunker splits pages into token-bounded chunks.
type Chunker interface {
	ChunkPages(ctx context.Context, pages []models.Page) ([]models.Chunk, error)
}

// AnswerGenerator produces an answer grounded only in contextText.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, contextText string) (string, error)
}

type PipelineDeps struct {
	Extractor   DocumentExtractor
	Chunker     Chunker
	Embedder    *Embedder
	Store       vectorstore.Store
	Generator   AnswerGenerator
	Staging     *StagingArea
	Metrics     *telemetry.Metrics
	DefaultTopK int
	// StoreName labels store metrics.
	StoreName string
}

// RagPipeline ingests PDFs into the vector store and answers questions
// against a single document of a single tenant.
type RagPipeline struct {
	extractor   DocumentExtractor
	chunker     Chunker
	embedder    *Embedder
	store       vectorstore.Store
	generator   AnswerGenerator
	staging     *StagingArea
	metrics     *telemetry.Metrics
	defaultTopK int
	storeName   string
	newID       func() string
}

func NewRagPipeline(deps PipelineDeps) (*RagPipeline, error) {
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("pipeline: extractor is required")
	case deps.Chunker == nil:
		return nil, fmt.Errorf("pipeline: chunker is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("pipeline: embedder is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline: vector store is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("pipeline: answer generator is required")
	case deps.Staging == nil:
		return nil, fmt.Errorf("pipeline: staging area is required")
	}
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = 5
	}
	if deps.StoreName == "" {
		deps.StoreName = "unknown"
	}
	return &RagPipeline{
		extractor:   deps.Extractor,
		chunker:     deps.Chunker,
		embedder:    deps.Embedder,
		store:       deps.Store,
		generator:   deps.Generator,
		staging:     deps.Staging,
		metrics:     deps.Metrics,
		defaultTopK: deps.DefaultTopK,
		storeName:   deps.StoreName,
		newID:       uuid.NewString,
	}, nil
}

// ProcessDocument extracts, chunks, embeds and stores a PDF for tenantID. The
// document is stored completely or not at all, and the staged copy is removed
// on every path.
func (p *RagPipeline) ProcessDocument(ctx context.Context, data []byte, filename, tenantID string) (result *models.IngestResult, err error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}

	documentID := p.newID()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "rag.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.document_id", documentID),
		attribute.String("rag.tenant_id", tenantID),
		attribute.Int("rag.bytes", len(data)),
	)

	defer func() {
		status, chunks := "success", 0
		if err != nil {
			status = ErrorKind(err)
			span.RecordError(err)
			logger.Error("Document ingestion failed",
				"document_id", documentID, "tenant_id", tenantID, "filename", filename,
				"kind", status, "error", err)
		} else {
			chunks = result.StoredCount
		}
		p.metrics.RecordIngestion(ctx, time.Since(start).Seconds(), status, chunks)
	}()

	path, release, err := p.staging.Stage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: stage upload: %w", ErrExtraction, err)
	}
	defer release()

	pages, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	chunks, err := p.chunker.ChunkPages(ctx, pages)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document contains no extractable text", ErrExtraction)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:       c.ChunkID,
			Vector:   vectors[i],
			Document: c.Text,
			Metadata: models.ChunkMetadata{
				DocumentID: documentID,
				TenantID:   tenantID,
				ChunkID:    c.ChunkID,
				PageNumber: c.PageNumber,
			},
		}
	}

	storeCtx, storeSpan := tracer.Start(ctx, "rag.store")
	err = p.store.Add(storeCtx, records)
	storeSpan.End()
	p.metrics.RecordStoreOperation(ctx, "add", p.storeName, err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: add %d chunks: %w", ErrStore, len(records), err)
	}

	logger.Info("Document ingested",
		"document_id", documentID, "tenant_id", tenantID, "filename", filename,
		"pages", len(pages), "chunks", len(records), "duration_ms", time.Since(start).Milliseconds())

	return &models.IngestResult{
		DocumentID:  documentID,
		Filename:    filename,
		PageCount:   len(pages),
		StoredCount: len(records),
		TotalChunks: len(chunks),
	}, nil
}

// Answer retrieves the topK chunks of documentID most similar to question,
// orders them by page and asks the generator to answer from them alone.
func (p *RagPipeline) Answer(ctx context.Context, documentID, tenantID, question string, topK int) (*models.AnswerResult, error) {
	switch {
	case strings.TrimSpace(documentID) == "":
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	case strings.TrimSpace(tenantID) == "":
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	case strings.TrimSpace(question) == "":
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if topK <= 0 {
		topK = p.defaultTopK
	}

	ctx, span := tracer.Start(ctx, "rag.answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.document_id", documentID),
		attribute.String("rag.tenant_id", tenantID),
		attribute.Int("rag.top_k", topK),
	)

	result, err := p.answer(ctx, documentID, tenantID, question, topK)
	switch {
	case err == nil:
		p.metrics.RecordQuery(ctx, "answered")
	case ErrorKind(err) == "not_found":
		p.metrics.RecordQuery(ctx, "not_found")
	default:
		span.RecordError(err)
		p.metrics.RecordQuery(ctx, "error")
	}
	return result, err
}

func (p *RagPipeline) answer(ctx context.Context, documentID, tenantID, question string, topK int) (*models.AnswerResult, error) {
	vector, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	filter := vectorstore.DocumentFilter(documentID, tenantID)
	res, err := p.store.Query(ctx, vector, topK, filter)
	p.metrics.RecordStoreOperation(ctx, "query", p.storeName, err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrStore, err)
	}

	type hit struct {
		text string
		meta models.ChunkMetadata
	}
	hits := make([]hit, 0, res.Len())
	for i := 0; i < res.Len(); i++ {
		if !filter.Matches(res.Metadatas[i]) {
			logger.Warn("Vector store returned a chunk outside the filter",
				"document_id", documentID, "tenant_id", tenantID, "chunk_id", res.Metadatas[i].ChunkID)
			continue
		}
		hits = append(hits, hit{text: res.Documents[i], meta: res.Metadatas[i]})
	}
	if len(hits) == 0 {
		return nil, ErrNotFound
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].meta.PageNumber < hits[j].meta.PageNumber })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	chunks := make([]string, len(hits))
	metas := make([]models.ChunkMetadata, len(hits))
	for i, h := range hits {
		chunks[i] = h.text
		metas[i] = h.meta
	}

	answer, err := p.generator.GenerateAnswer(ctx, question, strings.Join(chunks, "\n\n"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	return &models.AnswerResult{
		DocumentID:    documentID,
		Question:      question,
		Answer:        answer,
		ChunksUsed:    chunks,
		MetadatasUsed: metas,
		TopK:          topK,
	}, nil
}

// DeleteDocument removes every chunk of documentID owned by tenantID and
// returns how many were removed.
func (p *RagPipeline) DeleteDocument(ctx context.Context, documentID, tenantID string) (int, error) {
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(tenantID) == "" {
		return 0, fmt.Errorf("%w: document id and tenant id are required", ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "rag.delete")
	defer span.End()

	n, err := p.store.DeleteByFilter(ctx, vectorstore.DocumentFilter(documentID, tenantID))
	p.metrics.RecordStoreOperation(ctx, "delete", p.storeName, err == nil)
	if err != nil {
		return 0, fmt.Errorf("%w: delete document %s: %w", ErrStore, documentID, err)
	}

	logger.Info("Document deleted", "document_id", documentID, "tenant_id", tenantID, "chunks", n)
	return n, nil
}
