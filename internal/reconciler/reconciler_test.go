package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
)

// fleet is a stateful module whose resources are toggled by start/stop.
type fleet struct {
	mu     sync.Mutex
	states map[int64]string
	calls  []string
	broken map[int64]bool
	// unguarded counts Resources calls made outside the dispatch guard.
	unguarded int
}

func newFleet(states map[int64]string) *fleet {
	return &fleet{states: states, broken: map[int64]bool{}}
}

func (f *fleet) Name() string                    { return "fleet" }
func (f *fleet) Check(ctx context.Context) error { return nil }
func (f *fleet) Lifecycle() (string, string)     { return "start", "stop" }

func (f *fleet) Resources(ctx context.Context) ([]dispatch.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !dispatch.Held(ctx) {
		f.unguarded++
	}
	var out []dispatch.Resource
	for id, st := range f.states {
		out = append(out, dispatch.Resource{ID: id, Name: "r" + strconv.FormatInt(id, 10), State: st})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fleet) set(id int64, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
}

func (f *fleet) toggle(name, state string) dispatch.Function {
	return dispatch.Function{
		Name:     name,
		Params:   []dispatch.Param{dispatch.P("id", dispatch.TypeInteger)},
		Mutating: true,
		Run: func(ctx context.Context, a dispatch.Args) (any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			id := a.Int("id")
			f.calls = append(f.calls, name+":"+strconv.FormatInt(id, 10))
			if f.broken[id] {
				return nil, errs.Wrap(errs.ExternalTool, errors.New("task start failed"), "start %d", id)
			}
			f.states[id] = state
			return true, nil
		},
	}
}

func (f *fleet) Functions() []dispatch.Function {
	return []dispatch.Function{f.toggle("start", dispatch.StateRunning), f.toggle("stop", dispatch.StateStopped)}
}

func (f *fleet) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func setup(t *testing.T, states map[int64]string) (*Reconciler, *fleet, string) {
	t.Helper()
	f := newFleet(states)
	reg := dispatch.New(logging.Discard(), nil)
	require.NoError(t, reg.Load(context.Background(), f))
	dir := filepath.Join(t.TempDir(), "saves")
	return New(reg, dir, logging.Discard()), f, dir
}

func TestSave_WritesSnapshotAndRotates(t *testing.T) {
	r, f, dir := setup(t, map[int64]string{1: dispatch.StateRunning, 2: dispatch.StateStopped})
	ctx := context.Background()

	snap, err := r.Save(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, []Entry{
		{ID: 1, Name: "r1", State: dispatch.StateRunning},
		{ID: 2, Name: "r2", State: dispatch.StateStopped},
	}, snap.Modules["fleet"])

	raw, err := os.ReadFile(filepath.Join(dir, "default.json"))
	require.NoError(t, err)
	var onDisk Snapshot
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "default", onDisk.Name)
	assert.Len(t, onDisk.Modules["fleet"], 2)

	f.set(2, dispatch.StateRunning)
	_, err = r.Save(ctx, "default")
	require.NoError(t, err)

	last, err := os.ReadFile(filepath.Join(dir, "default.json.last"))
	require.NoError(t, err)
	assert.Equal(t, raw, last)
}

func TestSave_RejectsBadNames(t *testing.T) {
	r, _, _ := setup(t, map[int64]string{})
	for _, name := range []string{"", "../etc", "a b", "x.json"} {
		_, err := r.Save(context.Background(), name)
		assert.True(t, errs.Is(err, errs.Validation), name)
	}
	_, err := r.Restore(context.Background(), "a/b")
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestRestore_MissingSaveIsNoop(t *testing.T) {
	r, f, _ := setup(t, map[int64]string{1: dispatch.StateRunning})

	rep, err := r.Restore(context.Background(), "nothing")
	require.NoError(t, err)
	assert.False(t, rep.Found)
	assert.Empty(t, f.history())
}

func TestRestore_AfterSaveDoesNothing(t *testing.T) {
	r, f, _ := setup(t, map[int64]string{1: dispatch.StateRunning, 2: dispatch.StateStopped})
	ctx := context.Background()

	_, err := r.Save(ctx, "default")
	require.NoError(t, err)
	rep, err := r.Restore(ctx, "default")
	require.NoError(t, err)

	assert.True(t, rep.Found)
	assert.Equal(t, 2, rep.Unchanged)
	assert.Empty(t, f.history())
}

func TestRestore_ActsOnlyOnDeltas(t *testing.T) {
	r, f, _ := setup(t, map[int64]string{
		1: dispatch.StateRunning,
		2: dispatch.StateStopped,
		3: dispatch.StateRunning,
		4: dispatch.StateRunning,
	})
	ctx := context.Background()
	_, err := r.Save(ctx, "lab")
	require.NoError(t, err)

	f.set(1, dispatch.StateStopped)
	f.set(2, dispatch.StateRunning)
	f.mu.Lock()
	delete(f.states, 4)
	f.mu.Unlock()
	f.set(5, dispatch.StateRunning)

	rep, err := r.Restore(ctx, "lab")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Started)
	assert.Equal(t, 1, rep.Stopped)
	assert.Equal(t, 1, rep.Unchanged)
	assert.Equal(t, 1, rep.Missing)
	assert.Zero(t, rep.Failed)
	assert.ElementsMatch(t, []string{"start:1", "stop:2"}, f.history())

	live, err := f.Resources(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StateRunning, live[0].State)
	assert.Equal(t, dispatch.StateStopped, live[1].State)
}

func TestRestore_FailuresAreCounted(t *testing.T) {
	r, f, _ := setup(t, map[int64]string{1: dispatch.StateRunning, 2: dispatch.StateRunning})
	ctx := context.Background()
	_, err := r.Save(ctx, "default")
	require.NoError(t, err)

	f.set(1, dispatch.StateStopped)
	f.set(2, dispatch.StateStopped)
	f.broken[1] = true

	rep, err := r.Restore(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Started)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "fleet.start(1)")
}

func TestRestore_UnloadedModuleIsMissing(t *testing.T) {
	r, _, dir := setup(t, map[int64]string{})
	snap := Snapshot{Version: SnapshotVersion, Name: "old", Modules: map[string][]Entry{
		"gone": {{ID: 1, State: dispatch.StateRunning}},
	}}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), data, 0o640))

	rep, err := r.Restore(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Missing)
}

func TestListAll(t *testing.T) {
	r, _, _ := setup(t, map[int64]string{7: dispatch.StateStopped})
	all, err := r.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string][]dispatch.Resource{
		"fleet": {{ID: 7, Name: "r7", State: dispatch.StateStopped}},
	}, all)
}

func TestCapture_RunsUnderGuard(t *testing.T) {
	r, f, _ := setup(t, map[int64]string{1: dispatch.StateRunning, 2: dispatch.StateStopped})
	ctx := context.Background()

	_, err := r.ListAll(ctx)
	require.NoError(t, err)
	_, err = r.Save(ctx, "default")
	require.NoError(t, err)
	f.set(1, dispatch.StateStopped)
	_, err = r.Restore(ctx, "default")
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Zero(t, f.unguarded)
}
