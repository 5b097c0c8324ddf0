// Package dedupe remembers which continuation tokens have already been
// resolved so a replayed vote is applied at most once.
package dedupe

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50_000

// Deduper records resolved tokens.
type Deduper interface {
	// SeenAndRecord atomically checks whether token was resolved and records
	// it if not. It returns true for a replay.
	SeenAndRecord(ctx context.Context, token string) bool

	// Unrecord forgets token so the vote can be retried after a failure.
	Unrecord(ctx context.Context, token string)

	Size() int64
}

// inMemoryDeduper keeps at most maxSize tokens in a thread-safe LRU,
// evicting the oldest once full.
type inMemoryDeduper struct {
	maxSize int
	cache   *lru.Cache[string, struct{}]
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	// maxSize is positive, so New cannot fail.
	d.cache, _ = lru.New[string, struct{}](d.maxSize)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, token string) bool {
	seen, _ := d.cache.ContainsOrAdd(token, struct{}{})
	return seen
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, token string) {
	d.cache.Remove(token)
}

func (d *inMemoryDeduper) Size() int64 {
	return int64(d.cache.Len())
}
