// SPDX-License-Identifier: Apache-2.0

// Package cleanup implements the scoped-cleanup capability: a per-call
// stack of release actions (dropping staging tables, releasing locks) that
// fires in LIFO order on every exit path from the enclosing call, mirroring
// the teacher's per-call version-schema lifecycle in pkg/roll.
package cleanup

import (
	"context"
	"errors"
)

// Func is a single cleanup action. It receives the context the enclosing
// call was running under; cleanup still runs (with a background context)
// even if that context has already been cancelled.
type Func func(ctx context.Context) error

// Stack collects cleanup actions and runs them in reverse order of
// registration. The zero value is ready to use.
type Stack struct {
	actions []Func
}

// Push registers f to run when Run is called, ahead of any action already
// on the stack.
func (s *Stack) Push(f Func) {
	s.actions = append(s.actions, f)
}

// Run executes every registered action in LIFO order, regardless of whether
// earlier actions fail, and returns the joined errors (nil if all
// succeeded). Call via defer at the top of the scope the stack guards.
func (s *Stack) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	var errs []error
	for i := len(s.actions) - 1; i >= 0; i-- {
		if err := s.actions[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.actions = nil
	return errors.Join(errs...)
}
