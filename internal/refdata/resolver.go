package refdata

import (
	"context"
	"sync"

	"example.com/sandbooking/console/internal/metrics"

	"github.com/rs/zerolog/log"
)

// FetchFunc loads the child collection for one parent id.
type FetchFunc[T any] func(ctx context.Context, parentID int64) ([]T, error)

// Result delivers a settled resolution to the owner of the collection.
// Err is set when the Gateway call failed; Items is nil in that case.
type Result[T any] struct {
	ParentID int64
	Items    []T
	Err      error
}

// Resolver serializes dependent lookups for a single child collection.
// Every Resolve call is tagged with a generation; when a fetch returns, its
// result is applied only if no newer Resolve or Reset happened in between.
// A late response for a superseded parent value is counted and dropped, so
// the owner only ever sees the collection of the current parent.
//
// The apply callback runs while the resolver lock is held. Owners must not
// call Resolve or Reset from code paths that hold a lock also taken inside
// apply, or the two locks will deadlock.
type Resolver[T any] struct {
	name    string
	fetch   FetchFunc[T]
	metrics *metrics.Metrics

	mu  sync.Mutex
	gen uint64
	wg  sync.WaitGroup
}

// NewResolver creates a resolver for one dependent collection
func NewResolver[T any](name string, fetch FetchFunc[T], m *metrics.Metrics) *Resolver[T] {
	return &Resolver[T]{
		name:    name,
		fetch:   fetch,
		metrics: m,
	}
}

// Resolve fetches the child collection for parentID in the background and
// hands the result to apply, unless a newer resolution supersedes it first.
func (r *Resolver[T]) Resolve(ctx context.Context, parentID int64, apply func(Result[T])) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		items, err := r.fetch(ctx, parentID)

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.gen {
			if r.metrics != nil {
				r.metrics.IncrementCounter("refdata.stale_discarded." + r.name)
			}
			log.Debug().
				Str("collection", r.name).
				Int64("parent_id", parentID).
				Msg("discarding stale reference data result")
			return
		}

		apply(Result[T]{ParentID: parentID, Items: items, Err: err})
	}()
}

// Reset invalidates any in-flight resolution. Call it when the parent field
// is cleared so a late response cannot repopulate an emptied collection.
func (r *Resolver[T]) Reset() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

// Wait blocks until all fetches started so far have settled or been
// discarded. Used on teardown and by tests.
func (r *Resolver[T]) Wait() {
	r.wg.Wait()
}
