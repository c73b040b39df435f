// Package workerpool implements the bounded, parallel fan-out required by
// spec.md §5: pool size min(cpu_count, 8). It is used to run the
// embarrassingly-parallel per-file work (file reads, C3 indexing, and the
// per-file passes of several scanners) concurrently while preserving
// deterministic, per-producer output ordering. The scanners themselves run
// one after another (scanners.RunAll), not in the pool.
package workerpool

import (
	"context"
	"runtime"
	"sync"
)

// Size returns the configured pool size: min(runtime.NumCPU(), 8), at
// least 1.
func Size() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run applies fn to each item using a bounded worker pool and returns
// results in the SAME order as items, regardless of completion order --
// this is what lets callers buffer per-producer output and flush it in a
// fixed, documented order even though the work itself ran concurrently.
// The first error from any fn call is returned; Run still waits for all
// in-flight workers to finish before returning.
func Run[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	sem := make(chan struct{}, Size())
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for i, item := range items {
		select {
		case <-ctx.Done():
			once.Do(func() { firstErr = ctx.Err() })
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, it T) {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := fn(ctx, it)
			if err != nil {
				once.Do(func() { firstErr = err })
				return
			}
			results[idx] = r
		}(i, item)
	}
	wg.Wait()
	return results, firstErr
}
