package services

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"strings"
	"testing"
	"unicode"

	"pdf-rag-platform/internal/ai"
	"pdf-rag-platform/internal/vectorstore"
	"pdf-rag-platform/internal/vectorstore/memory"
	"pdf-rag-platform/models"
)

const testDims = 64

// wordHashProvider embeds text as a bag of hashed lowercase words, so texts
// sharing words score higher.
type wordHashProvider struct {
	fail bool
}

func (p *wordHashProvider) EmbedContents(_ context.Context, texts []string, _ ai.TaskType) ([][]float32, error) {
	if p.fail {
		return nil, errors.New("quota exhausted")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, testDims)
		v[0] = 0.01
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[1+int(h.Sum32()%uint32(testDims-1))]++
		}
		out[i] = v
	}
	return out, nil
}

// keywordGenerator returns answer when the context mentions keyword and the
// fallback sentence otherwise.
type keywordGenerator struct {
	keyword     string
	answer      string
	lastContext string
}

func (g *keywordGenerator) GenerateAnswer(_ context.Context, _ string, contextText string) (string, error) {
	g.lastContext = contextText
	if strings.Contains(contextText, g.keyword) {
		return g.answer, nil
	}
	return ai.FallbackAnswer, nil
}

type pipelineFixture struct {
	pipeline  *RagPipeline
	store     *memory.Store
	provider  *wordHashProvider
	generator *keywordGenerator
	staging   *StagingArea
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	staging, err := NewStagingArea(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	chunker, err := NewTokenBudgetChunker(ChunkerConfig{MaxTokens: 800, ChunkSize: 1200, ChunkOverlap: 200}, &fakeCounter{divisor: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	provider := &wordHashProvider{}
	embedder, _ := newTestEmbedder(provider, testDims)
	store := memory.NewStore(testDims)
	generator := &keywordGenerator{keyword: "Quillport", answer: "Quillport"}

	p, err := NewRagPipeline(PipelineDeps{
		Extractor:   NewPDFExtractor(0.5),
		Chunker:     chunker,
		Embedder:    embedder,
		Store:       store,
		Generator:   generator,
		Staging:     staging,
		DefaultTopK: 5,
		StoreName:   "memory",
	})
	if err != nil {
		t.Fatal(err)
	}
	return &pipelineFixture{pipeline: p, store: store, provider: provider, generator: generator, staging: staging}
}

func assertStagingEmpty(t *testing.T, s *StagingArea) {
	t.Helper()
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir not cleaned: %d entries", len(entries))
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	ingest, err := f.pipeline.ProcessDocument(ctx, threePagePDF(), "zorbania.pdf", "tenant-a")
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if ingest.DocumentID == "" || ingest.PageCount != 3 {
		t.Fatalf("ingest result = %+v", ingest)
	}
	if ingest.StoredCount != ingest.TotalChunks || ingest.StoredCount != f.store.Len() {
		t.Errorf("stored %d of %d chunks, store holds %d", ingest.StoredCount, ingest.TotalChunks, f.store.Len())
	}
	assertStagingEmpty(t, f.staging)

	res, err := f.pipeline.Answer(ctx, ingest.DocumentID, "tenant-a", "What is the capital of Zorbania?", 5)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != "Quillport" {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.TopK != 5 || len(res.ChunksUsed) == 0 || len(res.ChunksUsed) > 5 {
		t.Errorf("top_k = %d, chunks used = %d", res.TopK, len(res.ChunksUsed))
	}

	var page2 bool
	for i, m := range res.MetadatasUsed {
		if m.PageNumber == 2 && strings.Contains(res.ChunksUsed[i], "Quillport") {
			page2 = true
		}
		if i > 0 && res.MetadatasUsed[i-1].PageNumber > m.PageNumber {
			t.Errorf("context not in page order: %+v", res.MetadatasUsed)
		}
		if m.TenantID != "tenant-a" || m.DocumentID != ingest.DocumentID {
			t.Errorf("foreign chunk in context: %+v", m)
		}
	}
	if !page2 {
		t.Errorf("page 2 chunk missing from context: %q", res.ChunksUsed)
	}
	if f.generator.lastContext != strings.Join(res.ChunksUsed, "\n\n") {
		t.Error("generator context is not the chunks joined by blank lines")
	}
	if strings.Contains(f.generator.lastContext, "Confidential Draft") {
		t.Error("footer leaked into the context")
	}
}

func TestPipelineFallbackAnswerPassesThrough(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.generator.keyword = "Atlantis"

	ingest, err := f.pipeline.ProcessDocument(ctx, threePagePDF(), "zorbania.pdf", "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.pipeline.Answer(ctx, ingest.DocumentID, "tenant-a", "Where is Atlantis?", 0)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != "I cannot find the answer in the document." {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.TopK != 5 {
		t.Errorf("default top_k = %d, want 5", res.TopK)
	}
}

func TestPipelineTenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	a, err := f.pipeline.ProcessDocument(ctx, threePagePDF(), "a.pdf", "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.ProcessDocument(ctx, threePagePDF(), "b.pdf", "tenant-b"); err != nil {
		t.Fatal(err)
	}

	_, err = f.pipeline.Answer(ctx, a.DocumentID, "tenant-b", "What is the capital of Zorbania?", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant query error = %v, want ErrNotFound", err)
	}
}

func TestPipelineDeleteDocument(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	ingest, err := f.pipeline.ProcessDocument(ctx, threePagePDF(), "z.pdf", "tenant-a")
	if err != nil {
		t.Fatal(err)
	}

	if n, err := f.pipeline.DeleteDocument(ctx, ingest.DocumentID, "tenant-b"); err != nil || n != 0 {
		t.Fatalf("other tenant deleted %d chunks (err %v)", n, err)
	}

	n, err := f.pipeline.DeleteDocument(ctx, ingest.DocumentID, "tenant-a")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n != ingest.StoredCount {
		t.Errorf("deleted %d, want %d", n, ingest.StoredCount)
	}

	_, err = f.pipeline.Answer(ctx, ingest.DocumentID, "tenant-a", "What is the capital of Zorbania?", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete error = %v, want ErrNotFound", err)
	}
}

func TestPipelineFailedIngestionStoresNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding failure", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.provider.fail = true

		_, err := f.pipeline.ProcessDocument(ctx, threePagePDF(), "z.pdf", "tenant-a")
		if !errors.Is(err, ErrEmbedding) {
			t.Fatalf("error = %v, want ErrEmbedding", err)
		}
		if f.store.Len() != 0 {
			t.Errorf("store holds %d records after failed ingestion", f.store.Len())
		}
		assertStagingEmpty(t, f.staging)
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		f := newPipelineFixture(t)

		_, err := f.pipeline.ProcessDocument(ctx, []byte("%PDF-1.4\ngarbage"), "bad.pdf", "tenant-a")
		if !errors.Is(err, ErrExtraction) {
			t.Fatalf("error = %v, want ErrExtraction", err)
		}
		if f.store.Len() != 0 {
			t.Errorf("store holds %d records", f.store.Len())
		}
		assertStagingEmpty(t, f.staging)
	})

	t.Run("no text", func(t *testing.T) {
		f := newPipelineFixture(t)

		_, err := f.pipeline.ProcessDocument(ctx, buildPDF([][]pdfLine{{}, {}}), "blank.pdf", "tenant-a")
		if !errors.Is(err, ErrExtraction) {
			t.Fatalf("error = %v, want ErrExtraction", err)
		}
	})
}

func TestPipelineInputValidation(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	if _, err := f.pipeline.ProcessDocument(ctx, threePagePDF(), "z.pdf", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing tenant: %v", err)
	}
	if _, err := f.pipeline.ProcessDocument(ctx, nil, "z.pdf", "t"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty upload: %v", err)
	}
	if _, err := f.pipeline.Answer(ctx, "", "t", "q", 5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing document: %v", err)
	}
	if _, err := f.pipeline.Answer(ctx, "d", "t", "  ", 5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank question: %v", err)
	}
	if _, err := f.pipeline.DeleteDocument(ctx, "d", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("delete without tenant: %v", err)
	}
}

// scriptedStore returns a fixed query result and can fail on demand.
type scriptedStore struct {
	result *vectorstore.QueryResult
	err    error
}

func (s *scriptedStore) Add(context.Context, []vectorstore.Record) error { return s.err }
func (s *scriptedStore) Query(context.Context, []float32, int, vectorstore.Filter) (*vectorstore.QueryResult, error) {
	return s.result, s.err
}
func (s *scriptedStore) DeleteByFilter(context.Context, vectorstore.Filter) (int, error) {
	return 0, s.err
}

func newScriptedPipeline(t *testing.T, store vectorstore.Store, gen AnswerGenerator) *RagPipeline {
	t.Helper()
	staging, _ := NewStagingArea(t.TempDir())
	chunker, _ := NewTokenBudgetChunker(ChunkerConfig{MaxTokens: 800, ChunkSize: 1200, ChunkOverlap: 200}, &fakeCounter{divisor: 4}, nil)
	embedder, _ := newTestEmbedder(&wordHashProvider{}, testDims)
	p, err := NewRagPipeline(PipelineDeps{
		Extractor: NewPDFExtractor(0.5), Chunker: chunker, Embedder: embedder,
		Store: store, Generator: gen, Staging: staging,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAnswerOrdersContextByPage(t *testing.T) {
	meta := func(id string, page int) models.ChunkMetadata {
		return models.ChunkMetadata{DocumentID: "doc", TenantID: "t", ChunkID: id, PageNumber: page}
	}
	store := &scriptedStore{result: &vectorstore.QueryResult{
		Documents: []string{"page five", "page one", "page three", "other tenant", "page one again"},
		Metadatas: []models.ChunkMetadata{
			meta("c5", 5), meta("c1", 1), meta("c3", 3),
			{DocumentID: "doc", TenantID: "intruder", ChunkID: "x", PageNumber: 2},
			meta("c1b", 1),
		},
	}}
	gen := &keywordGenerator{keyword: "page", answer: "ok"}
	p := newScriptedPipeline(t, store, gen)

	res, err := p.Answer(context.Background(), "doc", "t", "question", 5)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	want := []string{"page one", "page one again", "page three", "page five"}
	if strings.Join(res.ChunksUsed, "|") != strings.Join(want, "|") {
		t.Errorf("chunks = %q, want %q", res.ChunksUsed, want)
	}
	if gen.lastContext != strings.Join(want, "\n\n") {
		t.Errorf("context = %q", gen.lastContext)
	}
}

func TestAnswerStoreAndGeneratorErrors(t *testing.T) {
	boom := errors.New("connection reset")

	p := newScriptedPipeline(t, &scriptedStore{err: boom}, &keywordGenerator{})
	if _, err := p.Answer(context.Background(), "doc", "t", "q", 3); !errors.Is(err, ErrStore) || !errors.Is(err, boom) {
		t.Errorf("store failure error = %v", err)
	}
	if _, err := p.DeleteDocument(context.Background(), "doc", "t"); !errors.Is(err, ErrStore) {
		t.Errorf("delete failure error = %v", err)
	}

	store := &scriptedStore{result: &vectorstore.QueryResult{
		Documents: []string{"text"},
		Metadatas: []models.ChunkMetadata{{DocumentID: "doc", TenantID: "t", PageNumber: 1}},
	}}
	p = newScriptedPipeline(t, store, failingGenerator{err: boom})
	if _, err := p.Answer(context.Background(), "doc", "t", "q", 3); !errors.Is(err, ErrGeneration) {
		t.Errorf("generator failure error = %v", err)
	}
}

type failingGenerator struct{ err error }

func (g failingGenerator) GenerateAnswer(context.Context, string, string) (string, error) {
	return "", g.err
}

func TestErrorKind(t *testing.T) {
	tests := map[error]string{
		ErrNotFound:     "not_found",
		ErrExtraction:   "extraction_error",
		ErrChunking:     "chunking_error",
		ErrEmbedding:    "embedding_error",
		ErrStore:        "store_error",
		errors.New("x"): "internal_error",
	}
	for err, want := range tests {
		if got := ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
