// Package cache provides the two-tier (L1 in-process, L2 Redis) cache used
// by the Image Delivery Service to avoid re-rendering identical frames.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache defines the storage interface shared by the in-process L1 cache and
// the Redis-backed L2 cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, pattern string) error
}

// RenderParams identifies every input that affects a rendered frame's bytes.
// Two requests with identical RenderParams always produce identical output,
// so the fingerprint derived from them is a safe cache key.
type RenderParams struct {
	InstanceSHA256 string
	WindowCenter   float64
	WindowWidth    float64
	Invert         bool
	Format         string
	LongEdge       int
}

// Fingerprint returns the content-addressed cache key for a render: a hash
// of the decoded instance's digest plus every parameter that can change the
// output bytes. It deliberately excludes caller identity, tenant, or study
// layout — two callers asking for the same instance and window get the same
// cached bytes.
func Fingerprint(p RenderParams) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.6f|%.6f|%t|%s|%d", p.InstanceSHA256, p.WindowCenter, p.WindowWidth, p.Invert, p.Format, p.LongEdge)
	return "img:" + hex.EncodeToString(h.Sum(nil))
}

// ListingKey builds the cache key for a series-list or instance-list
// response, which is keyed by hierarchy position rather than content hash
// since listings change when new instances arrive.
func ListingKey(kind, uid string) string {
	return "list:" + kind + ":" + uid
}

// MetadataKey builds the cache key for a single instance's resolved
// rendering metadata (rescale slope/intercept, default window, photometric
// interpretation).
func MetadataKey(sopInstanceUID string) string {
	return "meta:" + sopInstanceUID
}
