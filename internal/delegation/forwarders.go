package delegation

import (
	"context"
	"net/netip"
	"path/filepath"
	"slices"

	"github.com/jroosing/labnet/internal/errs"
)

// rewriteForwarders regenerates forwarders.conf of server id from the
// store and reloads the server.
func (e *Engine) rewriteForwarders(ctx context.Context, id int64) error {
	s, err := e.server(ctx, id)
	if err != nil {
		return err
	}
	addrs, err := e.db.ListForwarders(ctx, id)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "store")
	}
	text := make([]string, 0, len(addrs))
	for _, a := range addrs {
		text = append(text, a.String())
	}
	if err := writeFile(filepath.Join(e.serverDir(id), "conf", forwardersConf), forwardersText(text)); err != nil {
		return fileErr(err, "write forwarders of server %d", id)
	}
	return e.ns.Reload(ctx, e.target(s), "")
}

// AddForwarder adds an upstream resolver to server id.
func (e *Engine) AddForwarder(ctx context.Context, id int64, addr netip.Addr) error {
	if _, err := e.server(ctx, id); err != nil {
		return err
	}
	existing, err := e.db.ListForwarders(ctx, id)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "store")
	}
	if slices.Contains(existing, addr) {
		return errs.New(errs.Conflict, "Forwarder %s already exists on server %d", addr, id)
	}
	if err := e.db.InsertForwarder(ctx, id, addr); err != nil {
		return errs.Wrap(errs.Internal, err, "store")
	}
	if err := e.rewriteForwarders(ctx, id); err != nil {
		return err
	}
	e.logger.Info("forwarder added", "server", id, "ip_addr", addr)
	return nil
}

// RemoveForwarder removes an upstream resolver from server id.
func (e *Engine) RemoveForwarder(ctx context.Context, id int64, addr netip.Addr) error {
	if _, err := e.server(ctx, id); err != nil {
		return err
	}
	if err := e.db.DeleteForwarder(ctx, id, addr); err != nil {
		return storeErr(err, "Forwarder %s not found on server %d", addr, id)
	}
	if err := e.rewriteForwarders(ctx, id); err != nil {
		return err
	}
	e.logger.Info("forwarder removed", "server", id, "ip_addr", addr)
	return nil
}

// ListForwarders returns the upstream resolvers of server id.
func (e *Engine) ListForwarders(ctx context.Context, id int64) ([]netip.Addr, error) {
	if _, err := e.server(ctx, id); err != nil {
		return nil, err
	}
	addrs, err := e.db.ListForwarders(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "store")
	}
	if addrs == nil {
		addrs = []netip.Addr{}
	}
	return addrs, nil
}
