package unit

import (
	"context"
	"sync"

	"github.com/jroosing/labnet/internal/errs"
)

// Memory is an in-process Runtime for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	units   map[string]*memUnit
	nextPID int
	fail    map[string]error
}

type memUnit struct {
	spec    Spec
	running bool
	pid     int
}

func NewMemory() *Memory {
	return &Memory{
		units:   make(map[string]*memUnit),
		nextPID: 1000,
		fail:    make(map[string]error),
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

func (m *Memory) failure(method string) error {
	if err := m.fail[method]; err != nil {
		return errs.Wrap(errs.ExternalTool, err, "%s", method)
	}
	return nil
}

func (m *Memory) Create(ctx context.Context, spec Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Create"); err != nil {
		return err
	}
	if _, ok := m.units[spec.Name]; ok {
		return errs.New(errs.ExternalTool, "unit %s already exists", spec.Name)
	}
	m.units[spec.Name] = &memUnit{spec: spec}
	return nil
}

func (m *Memory) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Start"); err != nil {
		return err
	}
	u, ok := m.units[name]
	if !ok {
		return errs.New(errs.NotFound, "unit %s does not exist", name)
	}
	if !u.running {
		m.nextPID++
		u.pid = m.nextPID
		u.running = true
	}
	return nil
}

func (m *Memory) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Stop"); err != nil {
		return err
	}
	u, ok := m.units[name]
	if !ok {
		return errs.New(errs.NotFound, "unit %s does not exist", name)
	}
	u.running = false
	u.pid = 0
	return nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Delete"); err != nil {
		return err
	}
	delete(m.units, name)
	return nil
}

func (m *Memory) Status(ctx context.Context, name string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[name]
	if !ok {
		return false, "", nil
	}
	if u.running {
		return true, StateRunning, nil
	}
	return true, StateStopped, nil
}

func (m *Memory) PID(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[name]
	if !ok {
		return 0, errs.New(errs.NotFound, "unit %s does not exist", name)
	}
	if !u.running {
		return 0, errs.New(errs.ExternalTool, "unit %s is not running", name)
	}
	return u.pid, nil
}

// Spec returns the spec a unit was created with.
func (m *Memory) Spec(name string) (Spec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[name]
	if !ok {
		return Spec{}, false
	}
	return u.spec, true
}

// Len returns the number of existing units.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.units)
}
