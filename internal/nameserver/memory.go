package nameserver

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/miekg/dns"

	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/zone"
)

// Memory serves zones by reading the files under Target.Dir/zones on
// Reload. It can simulate a daemon that picks up changes late or never.
type Memory struct {
	mu      sync.Mutex
	live    map[int64]map[string]*zone.Zone
	pending map[int64]map[string]*pendingZone
	reloads []string

	lag        int
	stuck      bool
	failReload error
}

type pendingZone struct {
	z         *zone.Zone
	remaining int
}

func NewMemory() *Memory {
	return &Memory{
		live:    make(map[int64]map[string]*zone.Zone),
		pending: make(map[int64]map[string]*pendingZone),
	}
}

// SetLag makes a reloaded zone keep serving its old contents for n
// LiveSerial calls.
func (m *Memory) SetLag(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lag = n
}

// SetStuck makes Reload succeed without loading anything.
func (m *Memory) SetStuck(stuck bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stuck = stuck
}

// FailReload makes Reload return err until cleared with nil.
func (m *Memory) FailReload(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReload = err
}

// Reloads returns the reload requests seen so far as "id:zone".
func (m *Memory) Reloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reloads...)
}

// originFromFile maps "<zone>.<fwd|rev>" back to the zone origin.
func originFromFile(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if base == "root" {
		return "."
	}
	return dns.Fqdn(strings.ToLower(base))
}

func (m *Memory) Reload(ctx context.Context, t Target, zoneName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reloads = append(m.reloads, strconv.FormatInt(t.ID, 10)+":"+zoneName)
	if m.failReload != nil {
		return errs.Wrap(errs.ExternalTool, m.failReload, "reload of server %d failed", t.ID)
	}
	if m.stuck {
		return nil
	}

	files, err := zone.DiscoverZoneFiles(filepath.Join(t.Dir, "zones"))
	if err != nil {
		return errs.Wrap(errs.ExternalTool, err, "reload of server %d failed", t.ID)
	}
	want := ""
	if zoneName != "" {
		want = dns.Fqdn(strings.ToLower(zoneName))
	}

	if m.live[t.ID] == nil {
		m.live[t.ID] = make(map[string]*zone.Zone)
		m.pending[t.ID] = make(map[string]*pendingZone)
	}
	for _, f := range files {
		origin := originFromFile(f)
		if want != "" && origin != want {
			continue
		}
		z, err := zone.LoadFile(origin, f)
		if err != nil {
			return errs.Wrap(errs.ExternalTool, err, "server %d failed to load %s", t.ID, origin)
		}
		if _, served := m.live[t.ID][origin]; served && m.lag > 0 {
			m.pending[t.ID][origin] = &pendingZone{z: z, remaining: m.lag}
			continue
		}
		m.live[t.ID][origin] = z
		delete(m.pending[t.ID], origin)
	}
	return nil
}

func (m *Memory) LiveSerial(ctx context.Context, t Target, zoneName string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	origin := dns.Fqdn(strings.ToLower(zoneName))
	if p, ok := m.pending[t.ID][origin]; ok {
		if p.remaining == 0 {
			m.live[t.ID][origin] = p.z
			delete(m.pending[t.ID], origin)
		} else {
			p.remaining--
		}
	}
	z, ok := m.live[t.ID][origin]
	if !ok {
		return 0, errs.New(errs.ExternalTool, "server %d does not serve %s", t.ID, origin)
	}
	return z.Serial(), nil
}

func (m *Memory) Lookup(ctx context.Context, t Target, name, rrtype string) ([]string, error) {
	qtype, ok := dns.StringToType[strings.ToUpper(rrtype)]
	if !ok {
		return nil, errs.New(errs.Validation, "unknown record type '%s'", rrtype)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Closest enclosing zone served by t
	var best *zone.Zone
	for origin, z := range m.live[t.ID] {
		if dns.IsSubDomain(origin, dns.Fqdn(name)) && (best == nil || dns.CountLabel(origin) > dns.CountLabel(best.Origin)) {
			best = z
		}
	}
	if best == nil {
		return nil, nil
	}

	rrs := best.Lookup(name, qtype)
	if len(rrs) == 0 && qtype != dns.TypeNS {
		rrs = best.Lookup(name, dns.TypeNS)
	}
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, rr.String())
	}
	return out, nil
}
