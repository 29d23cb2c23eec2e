package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// With K permits and N > K concurrent acquirers, at most K run at once
// and all N eventually complete.
func TestLimiterBoundsConcurrency(t *testing.T) {
	const (
		permits = 3
		workers = 20
	)

	l := New(map[s3types.OpCategory]int64{s3types.OpUpload: permits})

	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			permit, err := l.Acquire(context.Background(), s3types.OpUpload)
			require.NoError(t, err)
			defer permit.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(permits))
	assert.Greater(t, peak.Load(), int64(0))
}

func TestCategoriesAreIndependent(t *testing.T) {
	l := New(map[s3types.OpCategory]int64{
		s3types.OpUpload: 1,
		s3types.OpList:   1,
	})

	up, err := l.Acquire(context.Background(), s3types.OpUpload)
	require.NoError(t, err)
	defer up.Release()

	// The upload bucket being exhausted must not block listing.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	li, err := l.Acquire(ctx, s3types.OpList)
	require.NoError(t, err)
	li.Release()
}

func TestAcquireHonorsContext(t *testing.T) {
	l := New(map[s3types.OpCategory]int64{s3types.OpDelete: 1})

	held, err := l.Acquire(context.Background(), s3types.OpDelete)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, s3types.OpDelete)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Double release must not mint an extra permit.
func TestReleaseIdempotent(t *testing.T) {
	l := New(map[s3types.OpCategory]int64{s3types.OpStat: 1})

	p, err := l.Acquire(context.Background(), s3types.OpStat)
	require.NoError(t, err)
	p.Release()
	p.Release()
	p.Release()

	// Exactly one permit available: a second concurrent hold must block.
	first, err := l.Acquire(context.Background(), s3types.OpStat)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, s3types.OpStat)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	first.Release()
}

func TestNilPermitReleaseIsNoop(t *testing.T) {
	var p *Permit
	assert.NotPanics(t, func() { p.Release() })
}
