// Package vectorstore defines the storage contract for chunk embeddings and
// the metadata filters that scope every read and delete.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"pdf-rag-platform/models"
)

// Metadata field names usable in a Filter.
const (
	FieldDocumentID = "document_id"
	FieldTenantID   = "tenant_id"
	FieldChunkID    = "chunk_id"
	FieldPageNumber = "page_number"
)

var (
	ErrEmptyFilter    = errors.New("vectorstore: filter must not be empty")
	ErrUnknownField   = errors.New("vectorstore: unknown filter field")
	ErrDuplicateID    = errors.New("vectorstore: duplicate record id")
	ErrDimensionMatch = errors.New("vectorstore: vector dimension mismatch")
)

// Record is one stored chunk: its id, unit-length vector, text and metadata.
type Record struct {
	ID       string
	Vector   []float32
	Document string
	Metadata models.ChunkMetadata
}

// QueryResult holds matches ordered by descending similarity.
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []models.ChunkMetadata
	Scores    []float32
}

// Len reports how many matches the result holds.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Documents)
}

// Filter is a conjunction of exact-match conditions on metadata fields.
type Filter map[string]string

// DocumentFilter scopes an operation to one document of one tenant.
func DocumentFilter(documentID, tenantID string) Filter {
	return Filter{FieldDocumentID: documentID, FieldTenantID: tenantID}
}

// Validate rejects empty filters and unknown field names.
func (f Filter) Validate() error {
	if len(f) == 0 {
		return ErrEmptyFilter
	}
	for field, value := range f {
		switch field {
		case FieldDocumentID, FieldTenantID, FieldChunkID:
		case FieldPageNumber:
			if _, err := strconv.Atoi(value); err != nil {
				return fmt.Errorf("vectorstore: page_number filter %q is not an integer", value)
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	return nil
}

// Matches reports whether m satisfies every condition in f.
func (f Filter) Matches(m models.ChunkMetadata) bool {
	for field, value := range f {
		var actual string
		switch field {
		case FieldDocumentID:
			actual = m.DocumentID
		case FieldTenantID:
			actual = m.TenantID
		case FieldChunkID:
			actual = m.ChunkID
		case FieldPageNumber:
			actual = strconv.Itoa(m.PageNumber)
		default:
			return false
		}
		if actual != value {
			return false
		}
	}
	return true
}

// Store persists chunk vectors. Implementations must apply Add atomically:
// either every record is visible afterwards or none is.
type Store interface {
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) (*QueryResult, error)
	DeleteByFilter(ctx context.Context, filter Filter) (int, error)
}

// ValidateRecords checks ids are present and unique and all vectors share dims.
func ValidateRecords(records []Record, dims int) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("vectorstore: record %d has empty id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
		if dims > 0 && len(r.Vector) != dims {
			return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMatch, r.ID, len(r.Vector), dims)
		}
	}
	return nil
}
