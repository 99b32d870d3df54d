// Package reconciler saves the lifecycle state of every resource owned by a
// stateful module and later drives the live resources back to it.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/metrics"
)

// SnapshotVersion is written into every save file.
const SnapshotVersion = 1

var saveName = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// Dispatcher is the part of the registry the reconciler drives.
type Dispatcher interface {
	Stateful() map[string]dispatch.Stateful
	Invoke(ctx context.Context, module, function string, args map[string]string) (any, error)
	Guarded(ctx context.Context, fn func(ctx context.Context) error) error
}

// Entry is the saved state of one resource.
type Entry struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	State string `json:"state"`
}

// Snapshot is the on-disk save format.
type Snapshot struct {
	Version int                `json:"version"`
	Name    string             `json:"name"`
	Created time.Time          `json:"created"`
	Modules map[string][]Entry `json:"modules"`
}

// Report summarizes a restore.
type Report struct {
	Name      string   `json:"name"`
	Found     bool     `json:"found"`
	Started   int      `json:"started"`
	Stopped   int      `json:"stopped"`
	Unchanged int      `json:"unchanged"`
	Missing   int      `json:"missing"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Reconciler saves and restores resource states under dir.
type Reconciler struct {
	calls  Dispatcher
	dir    string
	logger *slog.Logger
}

// New creates a Reconciler writing snapshots to dir.
func New(calls Dispatcher, dir string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		calls:  calls,
		dir:    dir,
		logger: logging.Component(logger, "reconciler"),
	}
}

func (r *Reconciler) path(name string) (string, error) {
	if !saveName.MatchString(name) {
		return "", errs.New(errs.Validation, "Invalid character in save name '%s'", name)
	}
	return filepath.Join(r.dir, name+".json"), nil
}

// ListAll returns the live resources of every stateful module. The lists
// are read under the dispatch guard so no module call runs in between.
func (r *Reconciler) ListAll(ctx context.Context) (map[string][]dispatch.Resource, error) {
	out := make(map[string][]dispatch.Resource)
	err := r.calls.Guarded(ctx, func(ctx context.Context) error {
		for name, m := range r.calls.Stateful() {
			res, err := m.Resources(ctx)
			if err != nil {
				return errs.Wrap(errs.KindOf(err), err, "list resources of %s", name)
			}
			if res == nil {
				res = []dispatch.Resource{}
			}
			out[name] = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save captures the current state of every resource as name. An existing
// save of the same name is kept as <name>.json.last.
func (r *Reconciler) Save(ctx context.Context, name string) (Snapshot, error) {
	path, err := r.path(name)
	if err != nil {
		return Snapshot{}, err
	}
	all, err := r.ListAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version: SnapshotVersion,
		Name:    name,
		Created: time.Now().UTC(),
		Modules: make(map[string][]Entry, len(all)),
	}
	for module, res := range all {
		entries := make([]Entry, 0, len(res))
		for _, x := range res {
			entries = append(entries, Entry{ID: x.ID, Name: x.Name, State: x.State})
		}
		snap.Modules[module] = entries
	}

	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.Internal, err, "encode save %s", name)
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return Snapshot{}, errs.Wrap(errs.Internal, err, "create saves directory")
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".last"); err != nil {
			return Snapshot{}, errs.Wrap(errs.Internal, err, "rotate save %s", name)
		}
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return Snapshot{}, errs.Wrap(errs.Internal, err, "write save %s", name)
	}

	r.logger.Info("state saved", "name", name, "modules", len(snap.Modules))
	return snap, nil
}

// Load reads the snapshot saved as name. ok is false when none exists.
func (r *Reconciler) Load(name string) (snap Snapshot, ok bool, err error) {
	path, err := r.path(name)
	if err != nil {
		return Snapshot{}, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, errs.Wrap(errs.Internal, err, "read save %s", name)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, errs.Wrap(errs.Validation, err, "save %s is corrupt", name)
	}
	return snap, true, nil
}

// Restore drives every resource present both in the save and in its
// module's live list to its saved state. Only resources whose state
// differs are touched. A missing save is not an error.
func (r *Reconciler) Restore(ctx context.Context, name string) (Report, error) {
	snap, ok, err := r.Load(name)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Name: name, Found: ok}
	if !ok {
		r.logger.Info("no save to restore", "name", name)
		return rep, nil
	}

	stateful := r.calls.Stateful()
	modules := make([]string, 0, len(snap.Modules))
	for m := range snap.Modules {
		modules = append(modules, m)
	}
	slices.Sort(modules)

	for _, module := range modules {
		m, ok := stateful[module]
		if !ok {
			r.logger.Warn("saved module not loaded", "module", module)
			rep.Missing += len(snap.Modules[module])
			continue
		}
		var live []dispatch.Resource
		err := r.calls.Guarded(ctx, func(ctx context.Context) error {
			var err error
			live, err = m.Resources(ctx)
			return err
		})
		if err != nil {
			r.logger.Error("failed to list resources", "module", module, "err", err)
			rep.Failed += len(snap.Modules[module])
			rep.Errors = append(rep.Errors, module+": "+err.Error())
			continue
		}
		current := make(map[int64]string, len(live))
		for _, x := range live {
			current[x.ID] = x.State
		}
		r.restoreModule(ctx, module, m, snap.Modules[module], current, &rep)
	}

	r.logger.Info("state restored", "name", name,
		"started", rep.Started, "stopped", rep.Stopped, "unchanged", rep.Unchanged,
		"missing", rep.Missing, "failed", rep.Failed)
	return rep, nil
}

func (r *Reconciler) restoreModule(ctx context.Context, module string, m dispatch.Stateful, saved []Entry, current map[int64]string, rep *Report) {
	start, stop := m.Lifecycle()
	for _, e := range saved {
		state, ok := current[e.ID]
		if !ok {
			rep.Missing++
			continue
		}
		if state == e.State {
			rep.Unchanged++
			continue
		}

		var function string
		switch e.State {
		case dispatch.StateRunning:
			function = start
		case dispatch.StateStopped:
			function = stop
		default:
			r.logger.Warn("unknown saved state", "module", module, "id", e.ID, "state", e.State)
			rep.Failed++
			continue
		}

		_, err := r.calls.Invoke(ctx, module, function, map[string]string{"id": strconv.FormatInt(e.ID, 10)})
		result := "ok"
		if err != nil {
			result = errs.KindOf(err).String()
			r.logger.Error("restore action failed", "module", module, "id", e.ID, "function", function, "err", err)
			rep.Failed++
			rep.Errors = append(rep.Errors, module+"."+function+"("+strconv.FormatInt(e.ID, 10)+"): "+err.Error())
		} else if function == start {
			rep.Started++
		} else {
			rep.Stopped++
		}
		metrics.ReconcileActions.WithLabelValues(module, function, result).Inc()
	}
}
