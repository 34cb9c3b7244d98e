// Package resultcache caches classification results by content hash so a
// repeated document is not re-evaluated against an unchanged detector set.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
)

// Cache stores classification results for quick lookup
type Cache interface {
	// Get retrieves a result by key. found is false on a miss.
	Get(ctx context.Context, key string) (result *classify.Result, found bool, err error)

	// Set stores a result
	Set(ctx context.Context, key string, result *classify.Result) error

	// Delete removes a result
	Delete(ctx context.Context, key string) error
}

// Key builds the cache key for a text classified against the detector set
// with the given fingerprint.
func Key(text, fingerprint string) string {
	return ContentHash(text) + ":" + fingerprint
}

// ContentHash returns the hex SHA-256 of text
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Fingerprint identifies a detector set by the SHA-256 of its JSON encoding.
// Any change to a detector, including its order, changes the fingerprint.
func Fingerprint(set classify.DetectorSet) (string, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("encoding detector set: %w", err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:16]), nil
}

// encodeResult serializes a result for storage
func encodeResult(r *classify.Result) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("result is nil")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

// decodeResult deserializes a stored result
func decodeResult(data []byte) (*classify.Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cached result is empty")
	}
	var r classify.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &r, nil
}

// New builds the cache backend selected by cfg. It returns nil when caching
// is disabled.
func New(cfg config.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.TTL), nil
	case "redis":
		return NewRedisCache(cfg.Redis, cfg.TTL, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
