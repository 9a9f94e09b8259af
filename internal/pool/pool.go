// Package pool runs independent query units with a concurrency bound per
// backend.
package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// Unit is one side-effect-free piece of work, such as one stats query.
type Unit[T any] struct {
	ID   string
	Side config.Side
	Run  func(ctx context.Context) (T, error)
}

// Result is the outcome of a unit. Err is set when the unit failed or was
// never started because ctx was done.
type Result[T any] struct {
	ID    string
	Side  config.Side
	Value T
	Err   error
}

// Pool bounds the units in flight on each side independently.
type Pool struct {
	sems  map[config.Side]*semaphore.Weighted
	sizes map[config.Side]int
}

// New returns a pool allowing left and right units in flight per side.
// Sizes below one are raised to one.
func New(left, right int) *Pool {
	if left < 1 {
		left = 1
	}
	if right < 1 {
		right = 1
	}
	return &Pool{
		sems: map[config.Side]*semaphore.Weighted{
			config.Left:  semaphore.NewWeighted(int64(left)),
			config.Right: semaphore.NewWeighted(int64(right)),
		},
		sizes: map[config.Side]int{config.Left: left, config.Right: right},
	}
}

// FromRun sizes a pool from the run's worker settings.
func FromRun(run config.Run) *Pool {
	return New(run.LeftWorkers, run.RightWorkers)
}

// Size returns the bound of a side.
func (p *Pool) Size(side config.Side) int {
	return p.sizes[side]
}

// Run executes every unit and returns one result per unit in completion
// order; callers must join results by ID. A failing unit never cancels its
// siblings. Once ctx is done no new unit starts; started units finish.
func Run[T any](ctx context.Context, p *Pool, units []Unit[T]) []Result[T] {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]Result[T], 0, len(units))
	)
	collect := func(r Result[T]) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	for _, u := range units {
		sem, ok := p.sems[u.Side]
		if !ok {
			collect(Result[T]{ID: u.ID, Side: u.Side, Err: errors.Newf("unit %s has unknown side %q", u.ID, u.Side)})
			continue
		}
		wg.Add(1)
		go func(u Unit[T]) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				collect(Result[T]{ID: u.ID, Side: u.Side, Err: errors.Wrapf(err, "unit %s not started", u.ID)})
				return
			}
			defer sem.Release(1)
			v, err := runUnit(ctx, u)
			collect(Result[T]{ID: u.ID, Side: u.Side, Value: v, Err: err})
		}(u)
	}
	wg.Wait()
	return results
}

func runUnit[T any](ctx context.Context, u Unit[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("unit %s panicked: %v", u.ID, r)
		}
	}()
	return u.Run(ctx)
}

// ByID indexes results by unit ID.
func ByID[T any](results []Result[T]) map[string]Result[T] {
	out := make(map[string]Result[T], len(results))
	for _, r := range results {
		out[r.ID] = r
	}
	return out
}
