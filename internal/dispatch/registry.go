// Package dispatch is the uniform call surface for labnet modules.
//
// Every operation, whether hosted in this process or by a peer instance, is
// reached through Registry.Invoke(module, function, args) with string
// arguments. Arguments are checked against the function's declared
// parameter schema before the function runs. Local calls are serialized by
// a process-wide guard that nested calls pass through, and the outermost
// mutating call is recorded in the history log.
package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/metrics"
)

// ServiceHandle is a reachable module, local or remote.
type ServiceHandle interface {
	Name() string
	Local() bool
	Functions() map[string]FunctionInfo
	Invoke(ctx context.Context, function string, args map[string]string) (any, error)
}

// Invoker is what modules use to call each other. Passing the ctx a
// function received keeps the nested call under the caller's guard.
type Invoker interface {
	Invoke(ctx context.Context, module, function string, args map[string]string) (any, error)
}

// Registry maps module names to handles.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]ServiceHandle
	local   map[string]Module

	guard   Guard
	history Recorder
	logger  *slog.Logger
}

// New creates an empty registry. history may be nil.
func New(logger *slog.Logger, history Recorder) *Registry {
	return &Registry{
		handles: make(map[string]ServiceHandle),
		local:   make(map[string]Module),
		history: history,
		logger:  logging.Component(logger, "dispatch"),
	}
}

// Load runs the module's Check and registers it on success.
func (r *Registry) Load(ctx context.Context, m Module) error {
	if err := m.Check(ctx); err != nil {
		r.logger.Error("module check failed, not loading", "module", m.Name(), "err", err)
		return errs.Wrap(errs.KindOf(err), err, "module '%s' failed its check", m.Name())
	}
	return r.Register(m)
}

// Register adds a local module without running its Check.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, ok := r.handles[name]; ok {
		return errs.New(errs.Conflict, "module '%s' already registered", name)
	}
	r.handles[name] = newLocalHandle(m, &r.guard, r.history, r.logger)
	r.local[name] = m
	r.logger.Info("module loaded", "module", name, "functions", len(m.Functions()))
	return nil
}

// LoadRemote registers every module advertised by the instance behind
// client. Names already registered keep their existing handle. It returns
// the names that were added.
func (r *Registry) LoadRemote(ctx context.Context, client *Client) ([]string, error) {
	cat, err := client.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var added []string
	for name, fns := range cat {
		if _, ok := r.handles[name]; ok {
			r.logger.Warn("remote module shadowed by existing module", "module", name, "remote", client.BaseURL())
			continue
		}
		h := &RemoteHandle{name: name, client: client, fns: make(map[string]FunctionInfo, len(fns))}
		for fn, entry := range fns {
			h.fns[fn] = parseEntry(entry)
		}
		r.handles[name] = h
		added = append(added, name)
	}
	sort.Strings(added)
	r.logger.Info("remote modules loaded", "remote", client.BaseURL(), "modules", added)
	return added, nil
}

// Handle returns the handle registered under name.
func (r *Registry) Handle(name string) (ServiceHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	return h, ok
}

// Invoke calls module.function with args.
func (r *Registry) Invoke(ctx context.Context, module, function string, args map[string]string) (any, error) {
	h, ok := r.Handle(module)
	if !ok {
		return nil, errs.New(errs.NotFound, "module '%s' not found", module)
	}

	timer := metrics.NewTimer()
	out, err := h.Invoke(ctx, function, args)
	timer.ObserveDuration(metrics.DispatchCallDuration.WithLabelValues(module))

	result := "ok"
	if err != nil {
		result = errs.KindOf(err).String()
		r.logger.Debug("call failed", "module", module, "function", function, "kind", result, "err", err)
	}
	metrics.DispatchCallsTotal.WithLabelValues(module, function, result).Inc()
	return out, err
}

// Guarded runs fn under the dispatch guard, so calls fn makes through
// Invoke with the ctx it receives are nested calls.
func (r *Registry) Guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := r.guard.Do(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// Catalog describes every registered module.
func (r *Registry) Catalog() Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cat := make(Catalog, len(r.handles))
	for name, h := range r.handles {
		fns := h.Functions()
		m := make(map[string]map[string]any, len(fns))
		for fn, fi := range fns {
			m[fn] = fi.entry()
		}
		cat[name] = m
	}
	return cat
}

// Modules returns the registered module names, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stateful returns the local modules that own resources, keyed by name.
func (r *Registry) Stateful() map[string]Stateful {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stateful)
	for name, m := range r.local {
		if s, ok := m.(Stateful); ok {
			out[name] = s
		}
	}
	return out
}
