package work

import (
	"context"
	"sync"
)

// DefaultWorkers is used when a pool is created with a non-positive size
const DefaultWorkers = 10

// Pool bounds how many jobs run at once
type Pool struct {
	numWorkers int
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	return &Pool{numWorkers: numWorkers}
}

// Workers returns the pool size
func (p *Pool) Workers() int {
	return p.numWorkers
}

// Map runs fn for every index in [0, n) on the pool and returns the results
// in input order. fn is called for every index even after ctx is cancelled,
// so each job can record its own cancellation.
func Map[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) T) []T {
	if n == 0 {
		return []T{}
	}

	jobs := make(chan int, n)
	results := make(chan resultItem[T], n)

	numActualWorkers := p.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than jobs
	}

	var wg sync.WaitGroup
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- resultItem[T]{index: idx, value: fn(ctx, idx)}
			}
		}()
	}

	for idx := 0; idx < n; idx++ {
		jobs <- idx
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]T, n)
	for r := range results {
		out[r.index] = r.value
	}
	return out
}

type resultItem[T any] struct {
	index int
	value T
}
