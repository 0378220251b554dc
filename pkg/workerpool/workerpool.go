// Package workerpool is the fork/join thread-pool abstraction (C10) the
// core consumes for all parallelism. The core never spawns OS threads or
// bare goroutines directly; every parallel region submits work through this
// interface, generalizing the channel-plus-waitgroup worker pool the
// teacher built ad hoc per batch call (pkg/hnsw/batch.go) into a reusable
// pool so nested submissions (a fine-registration iteration calling into a
// KNN parallel query, itself calling Submit again) stay safe.
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Handle is the future returned by Submit; Wait blocks until the submitted
// function has completed and returns its result.
type Handle[T any] struct {
	done chan struct{}
	val  T
}

// Wait blocks until the handle's function has completed.
func (h *Handle[T]) Wait() T {
	<-h.done
	return h.val
}

// Pool is the abstraction the core relies on: submit a unit of work, wait
// for its result, and learn how many workers are available for chunk
// sizing. Implementations must be safe for nested submissions (a function
// submitted to the pool may itself call Submit).
type Pool interface {
	// ThreadCount returns the number of workers backing the pool, used by
	// callers to size chunks for parallel reductions.
	ThreadCount() int
}

// Submit runs fn on the pool and returns a handle to its result. It is a
// free function (not a Pool method) so it can be generic over T without
// requiring Go's interface methods to be generic.
func Submit[T any](p *Default, fn func() T) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}
	p.dispatch(func() {
		h.val = fn()
		close(h.done)
	})
	return h
}

// Default is the goroutine-backed Pool implementation. Unlike the teacher's
// per-call "spawn N goroutines, close a channel, wait" pattern, Default
// keeps a persistent set of workers draining a job queue, so repeated
// per-iteration parallel regions (the common case in C7/C8) don't pay
// goroutine start-up cost every iteration. Nested Submit calls run inline
// on the calling goroutine once the queue is saturated, which keeps nested
// use safe without risking deadlock on a fixed-size worker set.
type Default struct {
	threadCount int
	jobs        chan func()
	limiter     *rate.Limiter
	closeOnce   sync.Once
	closed      chan struct{}
	inFlight    sync.WaitGroup
}

// New creates a pool with the given number of workers. A non-positive n
// defaults to 1 (sequential execution through the same Submit/Wait API,
// useful for deterministic tests).
func New(n int) *Default {
	return NewRateLimited(n, nil)
}

// NewRateLimited is New with an optional rate limiter capping how fast jobs
// are dispatched to workers. This mirrors the teacher's
// pkg/api/rest/middleware/ratelimit.go use of golang.org/x/time/rate, moved
// from throttling inbound HTTP requests to throttling submission rate into
// a shared pool used across nested fork/join regions. A nil limiter
// disables throttling.
func NewRateLimited(n int, limiter *rate.Limiter) *Default {
	if n <= 0 {
		n = 1
	}
	p := &Default{
		threadCount: n,
		jobs:        make(chan func(), n*4),
		limiter:     limiter,
		closed:      make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Default) worker() {
	for {
		select {
		case fn, ok := <-p.jobs:
			if !ok {
				return
			}
			fn()
			p.inFlight.Done()
		case <-p.closed:
			return
		}
	}
}

func (p *Default) dispatch(fn func()) {
	if p.limiter != nil {
		p.limiter.Wait(context.Background()) //nolint:errcheck // never cancelled
	}
	p.inFlight.Add(1)
	select {
	case p.jobs <- fn:
	default:
		// Queue saturated: run inline so nested
		// submissions never deadlock waiting for a free worker.
		p.inFlight.Done()
		fn()
	}
}

// ThreadCount returns the number of persistent workers backing the pool.
func (p *Default) ThreadCount() int {
	return p.threadCount
}

// Close shuts the pool down. Outstanding jobs already dispatched to workers
// still run to completion; Close does not wait for them (callers that need
// that guarantee should Wait() on every outstanding Handle first).
func (p *Default) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

// ParallelChunks splits n items into ThreadCount() roughly-equal
// contiguous ranges and runs fn on each range concurrently via Submit,
// returning once every chunk has completed. This is the shape every C2-C8
// parallel region uses: compute a thread-local result per chunk, then
// merge sequentially after Wait.
func ParallelChunks[T any](p *Default, n int, fn func(start, end int) T) []T {
	workers := p.ThreadCount()
	if workers > n {
		workers = n
	}
	if workers <= 1 || n == 0 {
		if n == 0 {
			return nil
		}
		return []T{fn(0, n)}
	}
	chunk := (n + workers - 1) / workers
	handles := make([]*Handle[T], 0, workers)
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		s, e := start, end
		handles = append(handles, Submit(p, func() T { return fn(s, e) }))
	}
	results := make([]T, len(handles))
	for i, h := range handles {
		results[i] = h.Wait()
	}
	return results
}
