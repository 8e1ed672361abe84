// SPDX-License-Identifier: Apache-2.0

// Package pool provides the bounded worker-pool fan-out (SF-6) interlace and
// batch delta-replay use to parallelize independent per-key or per-target
// work, grounded on the pond.ResultPool usage pattern the example pack
// applies to per-epoch fan-out.
package pool

import (
	"context"
	"runtime"

	"github.com/alitto/pond/v2"
)

// Pool runs independent value-producing tasks with bounded concurrency.
type Pool[T any] struct {
	inner pond.ResultPool[T]
}

// New constructs a Pool with the given worker cap. A size <= 0 defaults to
// GOMAXPROCS.
func New[T any](size int) *Pool[T] {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool[T]{inner: pond.NewResultPool[T](size)}
}

// RunAll submits every task to the pool and blocks until all complete,
// returning their results in submission order or the first error
// encountered.
func (p *Pool[T]) RunAll(ctx context.Context, tasks []func() (T, error)) ([]T, error) {
	group := p.inner.NewGroupContext(ctx)
	for _, task := range tasks {
		group.SubmitErr(task)
	}
	return group.Wait()
}
