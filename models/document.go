package models

// Page is the cleaned text of one PDF page. Numbers are 1-based and
// contiguous within a document.
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Chunk is a token-bounded piece of a page.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// ChunkMetadata travels with every stored vector and is what retrieval
// filters and re-sorts on.
type ChunkMetadata struct {
	DocumentID string `bson:"document_id" json:"document_id"`
	TenantID   string `bson:"tenant_id" json:"tenant_id"`
	ChunkID    string `bson:"chunk_id" json:"chunk_id"`
	PageNumber int    `bson:"page_number" json:"page_number"`
}

// IngestResult is returned once every chunk of a document is stored.
type IngestResult struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename,omitempty"`
	PageCount   int    `json:"page_count"`
	StoredCount int    `json:"stored_count"`
	TotalChunks int    `json:"total_chunks"`
}

// AnswerResult is the grounded answer plus the context it was built from.
type AnswerResult struct {
	DocumentID    string          `json:"document_id"`
	Question      string          `json:"question"`
	Answer        string          `json:"answer"`
	ChunksUsed    []string        `json:"chunks_used"`
	MetadatasUsed []ChunkMetadata `json:"metadatas_used"`
	TopK          int             `json:"top_k"`
}

// DeleteResult reports how many chunk vectors a document deletion removed.
type DeleteResult struct {
	DocumentID string `json:"document_id"`
	Deleted    int    `json:"deleted"`
}

// Ingestion task states reported by the async upload status endpoint.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
