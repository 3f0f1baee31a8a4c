package download

import (
	"context"
	"sync"

	"github.com/drmikehenry/romt/internal/romterror"
	"golang.org/x/sync/errgroup"
)

// Item is a single fetch request in a batch.
type Item struct {
	// Dest uniquely identifies the destination path; duplicate Dest
	// values within one batch are collapsed so the work runs once.
	Dest string
	// Do performs this item's fetch (including any verification). It
	// must honor ctx cancellation.
	Do func(ctx context.Context) error
}

// BatchResult reports the outcome of one batch item.
type BatchResult struct {
	Dest string
	Err  error
}

// FetchMany runs items under the Downloader's shared capacity limiter.
// Every started item either completes or is cancelled before FetchMany
// returns. If keepGoing is false, the first item failure cancels the
// remaining batch and FetchMany returns that error immediately. If
// keepGoing is true, all items run to completion (skipping duplicates)
// and FetchMany returns an Abort error summarizing the failure count,
// or nil if every item succeeded.
func (d *Downloader) FetchMany(ctx context.Context, items []Item, keepGoing bool) ([]BatchResult, error) {
	seen := make(map[string]bool, len(items))
	var mu sync.Mutex
	results := make([]BatchResult, 0, len(items))

	g, gctx := errgroup.WithContext(ctx)

	for _, item := range items {
		item := item
		mu.Lock()
		if seen[item.Dest] {
			mu.Unlock()
			continue
		}
		seen[item.Dest] = true
		mu.Unlock()

		g.Go(func() error {
			if err := d.limiter.Acquire(gctx); err != nil {
				return err
			}
			defer d.limiter.Release()

			err := item.Do(gctx)

			mu.Lock()
			results = append(results, BatchResult{Dest: item.Dest, Err: err})
			mu.Unlock()

			if err != nil && !keepGoing {
				return err
			}
			return nil
		})
	}

	waitErr := g.Wait()

	if !keepGoing {
		if waitErr != nil {
			return results, waitErr
		}
		return results, nil
	}

	var failures int
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	if failures > 0 {
		return results, romterror.Abort("%d of %d batch items failed", failures, len(results))
	}
	return results, nil
}

// CountFailures returns the number of failed results in a batch, useful
// for surfacing counts.
func CountFailures(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
