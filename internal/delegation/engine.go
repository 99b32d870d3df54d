// Package delegation implements the dns module: authoritative name servers
// running as lab units, their zones and records, and the NS/glue
// delegations that link them into one hierarchy.
//
// Every zone edit is confirmed by polling the daemon until the live SOA
// serial equals the serial just written. Address reservations go through
// the dispatch registry (ipreserve, netreserve), so a dns call and the
// allocator calls it makes form one serialized operation.
package delegation

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/metrics"
	"github.com/jroosing/labnet/internal/nameserver"
	"github.com/jroosing/labnet/internal/netdev"
	"github.com/jroosing/labnet/internal/unit"
)

// ModuleName is the dispatch name of the engine.
const ModuleName = "dns"

// Deps are the collaborators of the engine.
type Deps struct {
	DB      *database.DB
	Calls   dispatch.Invoker
	Units   unit.Runtime
	Switch  netdev.Provider
	Control nameserver.Control
}

type Engine struct {
	db      *database.DB
	calls   dispatch.Invoker
	units   unit.Runtime
	sw      netdev.Provider
	ns      nameserver.Control
	cfg     config.DNSConfig
	baseDir string
	logger  *slog.Logger
}

// New creates the engine. Server directories live under workDir/dns.
func New(deps Deps, cfg config.DNSConfig, workDir string, logger *slog.Logger) *Engine {
	if cfg.ReloadAttempts <= 0 {
		cfg.ReloadAttempts = 20
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = 250 * time.Millisecond
	}
	return &Engine{
		db:      deps.DB,
		calls:   deps.Calls,
		units:   deps.Units,
		sw:      deps.Switch,
		ns:      deps.Control,
		cfg:     cfg,
		baseDir: filepath.Join(workDir, "dns"),
		logger:  logging.Component(logger, "dns"),
	}
}

func storeErr(err error, notFoundMsg string, args ...any) error {
	if errors.Is(err, database.ErrNotFound) {
		return errs.New(errs.NotFound, notFoundMsg, args...)
	}
	return errs.Wrap(errs.Internal, err, "store")
}

func fileErr(err error, format string, args ...any) error {
	return errs.Wrap(errs.Internal, err, format, args...)
}

func (e *Engine) server(ctx context.Context, id int64) (database.DNSServer, error) {
	s, err := e.db.GetDNSServer(ctx, id)
	if err != nil {
		return database.DNSServer{}, storeErr(err, "DNS server %d does not exist", id)
	}
	return s, nil
}

func (e *Engine) servers(ctx context.Context) ([]database.DNSServer, error) {
	list, err := e.db.ListDNSServers(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "store")
	}
	return list, nil
}

// primary returns the lowest-id server, which hosts reverse zones and
// overrides.
func (e *Engine) primary(ctx context.Context) (database.DNSServer, error) {
	list, err := e.servers(ctx)
	if err != nil {
		return database.DNSServer{}, err
	}
	if len(list) == 0 {
		return database.DNSServer{}, errs.New(errs.NotFound, "No DNS servers exist")
	}
	return list[0], nil
}

// authority returns the server whose root domain is the longest suffix of
// name.
func (e *Engine) authority(ctx context.Context, name string) (database.DNSServer, error) {
	list, err := e.servers(ctx)
	if err != nil {
		return database.DNSServer{}, err
	}
	trie := newRootTrie()
	byID := make(map[int64]database.DNSServer, len(list))
	for _, s := range list {
		trie.Add(s.Domain, s.ID)
		byID[s.ID] = s
	}
	id, _, ok := trie.Longest(name)
	if !ok {
		return database.DNSServer{}, errs.New(errs.NotFound, "No DNS server is authoritative for %s", normalizeDomain(name))
	}
	return byID[id], nil
}

func (e *Engine) target(s database.DNSServer) nameserver.Target {
	return nameserver.Target{ID: s.ID, Addr: s.Addr, Unit: unitName(s.ID), Dir: e.serverDir(s.ID)}
}

// networkOf asks netreserve for the network containing addr.
func (e *Engine) networkOf(ctx context.Context, addr string) (database.Network, error) {
	out, err := e.calls.Invoke(ctx, "netreserve", "get_ip_network", map[string]string{"ip_addr": addr})
	if err != nil {
		return database.Network{}, err
	}
	var n database.Network
	if err := dispatch.Decode(out, &n); err != nil {
		return database.Network{}, errs.Wrap(errs.Internal, err, "decode network")
	}
	return n, nil
}

// confirm polls the live serial of zone on s until it equals want. The
// poll is bounded by the configured attempts and by ctx.
func (e *Engine) confirm(ctx context.Context, s database.DNSServer, zoneName string, want uint32) error {
	t := e.target(s)
	var (
		last    uint32
		lastErr error
	)
	for attempt := 1; attempt <= e.cfg.ReloadAttempts; attempt++ {
		serial, err := e.ns.LiveSerial(ctx, t, zoneName)
		if err == nil && serial == want {
			metrics.ZoneReloadPolls.Observe(float64(attempt))
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			last, lastErr = serial, nil
		}
		if attempt == e.cfg.ReloadAttempts {
			break
		}
		select {
		case <-ctx.Done():
			metrics.ZoneConvergenceFailures.Inc()
			return errs.Wrap(errs.Consistency, ctx.Err(), "zone %s on server %d did not converge to serial %d (last seen %d)", zoneName, s.ID, want, last)
		case <-time.After(e.cfg.ReloadInterval):
		}
	}
	metrics.ZoneConvergenceFailures.Inc()
	e.logger.Warn("zone did not converge", "server", s.ID, "zone", zoneName, "want", want, "last", last, "err", lastErr)
	if lastErr != nil {
		return errs.Wrap(errs.Consistency, lastErr, "zone %s on server %d did not converge to serial %d (last seen %d)", zoneName, s.ID, want, last)
	}
	return errs.New(errs.Consistency, "zone %s on server %d did not converge to serial %d (last seen %d)", zoneName, s.ID, want, last)
}

// reloadZone reloads one zone and waits for the daemon to serve serial.
func (e *Engine) reloadZone(ctx context.Context, s database.DNSServer, zoneName string, serial uint32) error {
	if err := e.ns.Reload(ctx, e.target(s), zoneName); err != nil {
		return err
	}
	return e.confirm(ctx, s, zoneName, serial)
}
