package netdev

import (
	"context"
	"maps"
	"net/netip"
	"slices"
	"sync"

	"github.com/jroosing/labnet/internal/errs"
)

// Memory is an in-process Provider for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	bridges map[string]*memBridge
	fail    map[string]error
}

type memBridge struct {
	addr  netip.Prefix
	ports map[string]PortSpec
}

func NewMemory() *Memory {
	return &Memory{
		bridges: make(map[string]*memBridge),
		fail:    make(map[string]error),
	}
}

// FailOn makes the named method ("EnsureBridge", "AttachPort", ...) return
// err until cleared with a nil err.
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

func (m *Memory) EnsureBridge(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("EnsureBridge"); err != nil {
		return err
	}
	if _, ok := m.bridges[name]; !ok {
		m.bridges[name] = &memBridge{ports: make(map[string]PortSpec)}
	}
	return nil
}

func (m *Memory) SetAddress(ctx context.Context, bridge string, addr netip.Prefix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SetAddress"); err != nil {
		return err
	}
	b, ok := m.bridges[bridge]
	if !ok {
		return errs.New(errs.ExternalTool, "bridge %s does not exist", bridge)
	}
	b.addr = addr
	return nil
}

func (m *Memory) DeleteBridge(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("DeleteBridge"); err != nil {
		return err
	}
	delete(m.bridges, name)
	return nil
}

func (m *Memory) AttachPort(ctx context.Context, bridge string, port PortSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("AttachPort"); err != nil {
		return err
	}
	b, ok := m.bridges[bridge]
	if !ok {
		return errs.New(errs.ExternalTool, "bridge %s does not exist", bridge)
	}
	b.ports[port.Unit] = port
	return nil
}

func (m *Memory) DetachPort(ctx context.Context, bridge, unit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("DetachPort"); err != nil {
		return err
	}
	if b, ok := m.bridges[bridge]; ok {
		delete(b.ports, unit)
	}
	return nil
}

// Bridges returns the existing bridge names, sorted.
func (m *Memory) Bridges() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.bridges))
}

// Address returns the host address set on bridge. It reports false when
// the bridge is missing or has no address.
func (m *Memory) Address(bridge string) (netip.Prefix, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bridges[bridge]
	if !ok {
		return netip.Prefix{}, false
	}
	return b.addr, b.addr.IsValid()
}

// Port returns the port attached for unit on bridge.
func (m *Memory) Port(bridge, unit string) (PortSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bridges[bridge]
	if !ok {
		return PortSpec{}, false
	}
	p, ok := b.ports[unit]
	return p, ok
}
