package services

import "errors"

// Error kinds surfaced by the pipeline. Wrapped errors keep both the kind and
// the cause reachable through errors.Is / errors.As.
var (
	ErrExtraction   = errors.New("extraction failed")
	ErrChunking     = errors.New("chunking failed")
	ErrEmbedding    = errors.New("embedding failed")
	ErrNotFound     = errors.New("no relevant content found for this document")
	ErrStore        = errors.New("vector store operation failed")
	ErrGeneration   = errors.New("answer generation failed")
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind names the kind of err for logs and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrExtraction):
		return "extraction_error"
	case errors.Is(err, ErrChunking):
		return "chunking_error"
	case errors.Is(err, ErrEmbedding):
		return "embedding_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStore):
		return "store_error"
	case errors.Is(err, ErrGeneration):
		return "generation_error"
	default:
		return "internal_error"
	}
}
