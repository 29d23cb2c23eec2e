// Package ratelimit bounds the concurrency of remote operations per
// category so the engine respects store-side throttling. One bucket
// exists per operation category; buckets are independent. Bucket state
// is the only resource mutated by multiple concurrent callers.
package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// DefaultPermits is the per-category permit count used when a category
// has no explicit limit configured.
const DefaultPermits = 8

// Limiter holds one weighted semaphore per operation category.
// The zero value is not usable; construct with New.
type Limiter struct {
	buckets map[s3types.OpCategory]*semaphore.Weighted
}

// New builds a limiter from per-category permit counts. Categories
// missing from limits get DefaultPermits; non-positive counts are
// treated as missing.
func New(limits map[s3types.OpCategory]int64) *Limiter {
	buckets := make(map[s3types.OpCategory]*semaphore.Weighted, len(s3types.Categories()))
	for _, cat := range s3types.Categories() {
		n := int64(DefaultPermits)
		if v, ok := limits[cat]; ok && v > 0 {
			n = v
		}
		buckets[cat] = semaphore.NewWeighted(n)
	}
	return &Limiter{buckets: buckets}
}

// Acquire blocks until a permit for the category is available or the
// context is done. The returned permit must be released when the
// wrapped operation finishes, success or failure.
func (l *Limiter) Acquire(ctx context.Context, cat s3types.OpCategory) (*Permit, error) {
	sem := l.buckets[cat]
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Permit{sem: sem}, nil
}

// Permit is a held rate-limit slot. Release is idempotent: releasing an
// already-released permit is a no-op, never a double credit.
type Permit struct {
	sem      *semaphore.Weighted
	released atomic.Bool
}

// Release returns the permit to its bucket.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	if p.released.CompareAndSwap(false, true) {
		p.sem.Release(1)
	}
}
