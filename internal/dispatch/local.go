package dispatch

import (
	"context"
	"log/slog"

	"github.com/jroosing/labnet/internal/errs"
)

// Recorder receives one entry per externally initiated mutating call.
type Recorder interface {
	Append(module, function string, args map[string]string, callErr error) error
}

// redacted replaces PASSWORD values in history entries.
const redacted = "********"

// LocalHandle exposes an in-process module through the guard.
type LocalHandle struct {
	module  Module
	fns     map[string]Function
	guard   *Guard
	history Recorder
	logger  *slog.Logger
}

func newLocalHandle(m Module, guard *Guard, history Recorder, logger *slog.Logger) *LocalHandle {
	fns := make(map[string]Function)
	for _, fn := range m.Functions() {
		fns[fn.Name] = fn
	}
	return &LocalHandle{module: m, fns: fns, guard: guard, history: history, logger: logger}
}

func (h *LocalHandle) Name() string { return h.module.Name() }

func (h *LocalHandle) Local() bool { return true }

func (h *LocalHandle) Functions() map[string]FunctionInfo {
	out := make(map[string]FunctionInfo, len(h.fns))
	for name, fn := range h.fns {
		out[name] = FunctionInfo{Desc: fn.Desc, Params: fn.Params, Mutating: fn.Mutating}
	}
	return out
}

// Invoke validates args and runs the function under the guard. The outermost
// call of a mutating function with arguments is appended to history, whether
// it succeeds or not.
func (h *LocalHandle) Invoke(ctx context.Context, function string, raw map[string]string) (any, error) {
	fn, ok := h.fns[function]
	if !ok {
		return nil, errs.New(errs.NotFound, "function '%s' not found in module '%s'", function, h.Name())
	}
	args, err := Validate(fn.Params, raw)
	if err != nil {
		return nil, err
	}

	outermost := !Held(ctx)
	return h.guard.Do(ctx, func(ctx context.Context) (any, error) {
		out, err := fn.Run(ctx, args)
		if outermost && fn.Mutating && len(raw) > 0 && h.history != nil {
			if herr := h.history.Append(h.Name(), function, redact(fn.Params, args.Raw()), err); herr != nil {
				h.logger.Warn("failed to record history", "module", h.Name(), "function", function, "err", herr)
			}
		}
		return out, err
	})
}

func redact(params []Param, args map[string]string) map[string]string {
	for _, p := range params {
		if p.Type == TypePassword {
			if _, ok := args[p.Name]; ok {
				args[p.Name] = redacted
			}
		}
	}
	return args
}
