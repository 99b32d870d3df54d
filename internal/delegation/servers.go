package delegation

import (
	"context"
	"errors"
	"net/netip"
	"os"

	"github.com/miekg/dns"

	"github.com/jroosing/labnet/internal/compensate"
	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/netdev"
	"github.com/jroosing/labnet/internal/unit"
)

// Server is a DNS server together with the state of its unit.
type Server struct {
	database.DNSServer
	Unit  string `json:"unit"`
	State string `json:"state"`
}

// AddServer reserves addr, lays out the server's configuration and starts
// its unit on addr's switch. The zone for domain is created separately.
func (e *Engine) AddServer(ctx context.Context, addr netip.Addr, description, domain string) (database.DNSServer, error) {
	domain = normalizeDomain(domain)
	if _, ok := dns.IsDomainName(domain); !ok {
		return database.DNSServer{}, errs.New(errs.Validation, "'%s' is not a valid domain", domain)
	}
	if _, err := e.db.DNSServerByDomain(ctx, domain); err == nil {
		return database.DNSServer{}, errs.New(errs.Conflict, "Domain already exists")
	} else if !errors.Is(err, database.ErrNotFound) {
		return database.DNSServer{}, errs.Wrap(errs.Internal, err, "store")
	}

	var undo compensate.Stack
	fail := func(err error) (database.DNSServer, error) {
		if rerr := undo.Rollback(ctx, e.logger); rerr != nil {
			e.logger.Error("add_server rollback incomplete", "domain", domain, "err", rerr)
		}
		return database.DNSServer{}, err
	}

	ip := addr.String()
	if _, err := e.calls.Invoke(ctx, "ipreserve", "add_ip", map[string]string{"ip_addr": ip, "description": description}); err != nil {
		return database.DNSServer{}, err
	}
	undo.Push("reserve ip", func(ctx context.Context) error {
		_, err := e.calls.Invoke(ctx, "ipreserve", "remove_ip", map[string]string{"ip_addr": ip})
		return err
	})

	n, err := e.networkOf(ctx, ip)
	if err != nil {
		return fail(err)
	}
	if n.Switch == "" {
		return fail(errs.New(errs.Validation, "network %s has no switch to attach a server to", n.Prefix))
	}

	s := database.DNSServer{Addr: addr, Description: description, Domain: domain}
	s.ID, err = e.db.InsertDNSServer(ctx, s)
	if err != nil {
		return fail(errs.Wrap(errs.Internal, err, "store"))
	}
	undo.Push("insert server", func(ctx context.Context) error { return e.db.DeleteDNSServer(ctx, s.ID) })

	if err := e.writeLayout(s.ID); err != nil {
		return fail(fileErr(err, "write configuration of server %d", s.ID))
	}
	undo.Push("write layout", func(ctx context.Context) error { return os.RemoveAll(e.serverDir(s.ID)) })

	name := unitName(s.ID)
	spec := unit.Spec{
		Name:   name,
		Image:  e.cfg.Image,
		Mounts: []unit.Mount{{Source: e.serverDir(s.ID), Target: bindRoot}},
	}
	if err := e.units.Create(ctx, spec); err != nil {
		return fail(err)
	}
	undo.Push("create unit", func(ctx context.Context) error { return e.units.Delete(ctx, name) })

	if err := e.startUnit(ctx, s, n); err != nil {
		return fail(err)
	}

	e.logger.Info("server added", "id", s.ID, "ip_addr", addr, "domain", domain, "switch", n.Switch)
	return s, nil
}

// startUnit starts the server's unit and plugs it into the switch of n.
func (e *Engine) startUnit(ctx context.Context, s database.DNSServer, n database.Network) error {
	name := unitName(s.ID)
	if err := e.units.Start(ctx, name); err != nil {
		return err
	}
	pid, err := e.units.PID(ctx, name)
	if err != nil {
		return err
	}
	// A restarted unit has a fresh network namespace
	if err := e.sw.DetachPort(ctx, n.Switch, name); err != nil {
		e.logger.Debug("stale port not detached", "unit", name, "err", err)
	}
	port := netdev.PortSpec{
		Unit:    name,
		PID:     pid,
		Addr:    netip.PrefixFrom(s.Addr, n.Prefix.Bits()),
		Gateway: n.Gateway(),
	}
	if err := e.sw.AttachPort(ctx, n.Switch, port); err != nil {
		if serr := e.units.Stop(ctx, name); serr != nil {
			e.logger.Warn("unit left running after attach failure", "unit", name, "err", serr)
		}
		return err
	}
	return nil
}

// RemoveServer stops and deletes the server's unit, removes its files and
// row, and releases its address. Servers taking part in a delegation are
// refused.
func (e *Engine) RemoveServer(ctx context.Context, id int64) error {
	s, err := e.server(ctx, id)
	if err != nil {
		return err
	}
	dels, err := e.db.ListDelegations(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "store")
	}
	for _, d := range dels {
		if d.ParentID == id || d.ChildID == id {
			return errs.New(errs.Conflict, "DNS server %d is part of delegation %d (%s)", id, d.ID, d.FQDN)
		}
	}

	name := unitName(id)
	if n, err := e.networkOf(ctx, s.Addr.String()); err == nil && n.Switch != "" {
		if err := e.sw.DetachPort(ctx, n.Switch, name); err != nil {
			e.logger.Warn("port not detached", "unit", name, "err", err)
		}
	}
	if err := e.units.Delete(ctx, name); err != nil {
		return err
	}
	if err := os.RemoveAll(e.serverDir(id)); err != nil {
		return fileErr(err, "remove configuration of server %d", id)
	}
	if err := e.db.DeleteDNSServer(ctx, id); err != nil {
		return storeErr(err, "DNS server %d does not exist", id)
	}
	if _, err := e.calls.Invoke(ctx, "ipreserve", "remove_ip", map[string]string{"ip_addr": s.Addr.String()}); err != nil {
		e.logger.Warn("server address not released", "ip_addr", s.Addr, "err", err)
	}

	e.logger.Info("server removed", "id", id, "domain", s.Domain)
	return nil
}

// StartServer starts a stopped server and reattaches it to its switch.
func (e *Engine) StartServer(ctx context.Context, id int64) error {
	s, err := e.server(ctx, id)
	if err != nil {
		return err
	}
	n, err := e.networkOf(ctx, s.Addr.String())
	if err != nil {
		return err
	}
	if err := e.startUnit(ctx, s, n); err != nil {
		return err
	}
	e.logger.Info("server started", "id", id)
	return nil
}

// StopServer stops a server's unit and detaches its port.
func (e *Engine) StopServer(ctx context.Context, id int64) error {
	s, err := e.server(ctx, id)
	if err != nil {
		return err
	}
	name := unitName(id)
	if err := e.units.Stop(ctx, name); err != nil {
		return err
	}
	if n, err := e.networkOf(ctx, s.Addr.String()); err == nil && n.Switch != "" {
		if err := e.sw.DetachPort(ctx, n.Switch, name); err != nil {
			e.logger.Warn("port not detached", "unit", name, "err", err)
		}
	}
	e.logger.Info("server stopped", "id", id)
	return nil
}

func (e *Engine) state(ctx context.Context, id int64) string {
	exists, state, err := e.units.Status(ctx, unitName(id))
	if err != nil || !exists {
		return unit.StateStopped
	}
	return state
}

// GetServer returns a server and the state of its unit.
func (e *Engine) GetServer(ctx context.Context, id int64) (Server, error) {
	s, err := e.server(ctx, id)
	if err != nil {
		return Server{}, err
	}
	return Server{DNSServer: s, Unit: unitName(id), State: e.state(ctx, id)}, nil
}

// ListServers returns every server ordered by id.
func (e *Engine) ListServers(ctx context.Context) ([]Server, error) {
	list, err := e.servers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Server, 0, len(list))
	for _, s := range list {
		out = append(out, Server{DNSServer: s, Unit: unitName(s.ID), State: e.state(ctx, s.ID)})
	}
	return out, nil
}
