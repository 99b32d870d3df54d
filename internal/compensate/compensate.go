// Package compensate records undo steps for multi-step operations that touch
// heterogeneous resources (store rows, switches, compute units, zone files).
//
// A Stack is filled as each step succeeds. If a later step fails, Rollback
// runs the recorded undo steps in reverse order.
package compensate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type step struct {
	name string
	undo func(context.Context) error
}

// Stack is a LIFO list of undo steps. The zero value is ready to use.
type Stack struct {
	steps []step
}

// Push records an undo step for an action that has just succeeded.
func (s *Stack) Push(name string, undo func(context.Context) error) {
	s.steps = append(s.steps, step{name: name, undo: undo})
}

// Len returns the number of pending undo steps.
func (s *Stack) Len() int {
	return len(s.steps)
}

// Rollback runs every pending undo step, newest first, and empties the stack.
// All steps run even if some fail; failures are logged and joined.
//
// Steps run on a context detached from ctx's cancellation, so a canceled
// request is still cleaned up. Values such as the dispatch guard token are
// kept.
func (s *Stack) Rollback(ctx context.Context, logger *slog.Logger) error {
	ctx = context.WithoutCancel(ctx)
	var errList []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		if err := st.undo(ctx); err != nil {
			if logger != nil {
				logger.Warn("compensation step failed", "step", st.name, "err", err)
			}
			errList = append(errList, fmt.Errorf("undo %s: %w", st.name, err))
		}
	}
	s.steps = nil
	return errors.Join(errList...)
}
