package dispatch

import (
	"context"
	"sync"

	"github.com/jroosing/labnet/internal/metrics"
)

type guardKey struct{}

type frame struct {
	depth int
}

// Guard serializes module calls process-wide. A call already running under
// the guard carries a token in its context, so nested calls made with that
// context run without re-acquiring the lock.
type Guard struct {
	mu sync.Mutex
}

// Held reports whether ctx is running under a guard.
func Held(ctx context.Context) bool {
	_, ok := ctx.Value(guardKey{}).(*frame)
	return ok
}

// Depth returns the nesting depth of ctx: 0 outside the guard, 1 for the
// outermost guarded call.
func Depth(ctx context.Context) int {
	if f, ok := ctx.Value(guardKey{}).(*frame); ok {
		return f.depth
	}
	return 0
}

// Do runs fn under the guard.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if f, ok := ctx.Value(guardKey{}).(*frame); ok {
		f.depth++
		defer func() { f.depth-- }()
		return fn(ctx)
	}

	timer := metrics.NewTimer()
	g.mu.Lock()
	defer g.mu.Unlock()
	timer.ObserveDuration(metrics.DispatchLockWait)

	return fn(context.WithValue(ctx, guardKey{}, &frame{depth: 1}))
}
