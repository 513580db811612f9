package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf-rag-platform/internal/logger"
)

const keyPrefix = "rag:qemb:"

// EmbeddingCache keeps query embeddings in Redis so repeated questions skip
// the embedding API. Cache failures are logged and treated as misses.
type EmbeddingCache struct {
	rdb   *redis.Client
	model string
	dims  int
	ttl   time.Duration
}

func NewEmbeddingCache(rdb *redis.Client, model string, dims int, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{rdb: rdb, model: model, dims: dims, ttl: ttl}
}

func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, c.key(text)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Query embedding cache read failed", "error", err)
		}
		return nil, false
	}

	vec, err := decodeVector(raw, c.dims)
	if err != nil {
		logger.Warn("Discarding corrupt cached embedding", "error", err)
		return nil, false
	}
	return vec, true
}

func (c *EmbeddingCache) Set(ctx context.Context, text string, vec []float32) {
	if err := c.rdb.Set(ctx, c.key(text), encodeVector(vec), c.ttl).Err(); err != nil {
		logger.Warn("Query embedding cache write failed", "error", err)
	}
}

// key binds the entry to the model and dimensionality so a config change
// never serves a stale vector.
func (c *EmbeddingCache) key(text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00", c.model, c.dims)
	h.Write([]byte(text))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte, dims int) ([]float32, error) {
	if len(raw)%4 != 0 || (dims > 0 && len(raw) != 4*dims) {
		return nil, fmt.Errorf("cached vector has %d bytes, want %d", len(raw), 4*dims)
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}
