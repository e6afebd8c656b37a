package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotConfigured = errors.New("evidence storage is not configured")

// EvidenceStore hands out direct-upload URLs for mission evidence and checks
// that submitted evidence actually landed in the bucket.
type EvidenceStore interface {
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
	KeyFromURL(rawURL string) (string, bool)
}
