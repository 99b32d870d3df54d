// Package allocator owns network (CIDR) and single-address reservations.
//
// It guarantees that allocated networks never overlap, that a non-empty
// switch name backs at most one network, and that every reserved address
// lies inside exactly one network. Switches are provisioned lazily when a
// network naming one is added, and re-checked at startup.
package allocator

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"net/netip"

	"github.com/jroosing/labnet/internal/compensate"
	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/metrics"
	"github.com/jroosing/labnet/internal/netdev"
)

// Allocator implements the netreserve and ipreserve modules.
type Allocator struct {
	db     *database.DB
	sw     netdev.Provider
	logger *slog.Logger
}

func New(db *database.DB, sw netdev.Provider, logger *slog.Logger) *Allocator {
	return &Allocator{db: db, sw: sw, logger: logging.Component(logger, "allocator")}
}

// storeErr classifies a store error, keeping ErrNotFound distinct.
func storeErr(err error, notFoundMsg string, args ...any) error {
	if errors.Is(err, database.ErrNotFound) {
		return errs.New(errs.NotFound, notFoundMsg, args...)
	}
	return errs.Wrap(errs.Internal, err, "store")
}

// dhcpRange returns the upper half of the host range of p.
func dhcpRange(p netip.Prefix) (netip.Addr, netip.Addr) {
	size := uint32(1) << (32 - p.Bits())
	base := addrU32(p.Masked().Addr())
	return u32Addr(base + size/2), u32Addr(base + size - 2)
}

// broadcast returns the last address of p.
func broadcast(p netip.Prefix) netip.Addr {
	size := uint32(1) << (32 - p.Bits())
	return u32Addr(addrU32(p.Masked().Addr()) + size - 1)
}

func addrU32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func u32Addr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// AddNetwork allocates prefix. A hop network gets a DHCP range and no
// gateway address on its switch.
func (a *Allocator) AddNetwork(ctx context.Context, prefix netip.Prefix, description, sw string, hop bool) (database.Network, error) {
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return database.Network{}, errs.New(errs.Validation, "'%s' is not an IPv4 network", prefix)
	}
	if prefix.Bits() > 30 {
		return database.Network{}, errs.New(errs.Validation, "network %s has no room for hosts", prefix)
	}

	nets, err := a.db.ListNetworks(ctx)
	if err != nil {
		return database.Network{}, errs.Wrap(errs.Internal, err, "store")
	}
	for _, n := range nets {
		if n.Prefix.Overlaps(prefix) {
			return database.Network{}, errs.New(errs.Conflict, "%s network is already part of network %s", prefix, n.Prefix)
		}
		if sw != "" && n.Switch == sw {
			return database.Network{}, errs.New(errs.Conflict, "switch %s is already used by network %s", sw, n.Prefix)
		}
	}

	n := database.Network{Prefix: prefix, Description: description, Switch: sw, IsHop: hop}
	if hop {
		n.DHCPStart, n.DHCPEnd = dhcpRange(prefix)
	}
	n.ID, err = a.db.InsertNetwork(ctx, n)
	if err != nil {
		return database.Network{}, errs.Wrap(errs.Internal, err, "store")
	}

	if sw != "" {
		var undo compensate.Stack
		undo.Push("insert network", func(ctx context.Context) error { return a.db.DeleteNetwork(ctx, n.ID) })
		if err := a.provision(ctx, n); err != nil {
			if rerr := undo.Rollback(ctx, a.logger); rerr != nil {
				return database.Network{}, errs.Wrap(errs.ExternalTool, errors.Join(err, rerr), "switch %s could not be provisioned", sw)
			}
			return database.Network{}, errs.Wrap(errs.ExternalTool, err, "switch %s could not be provisioned", sw)
		}
	}

	metrics.NetworksTotal.Set(float64(len(nets) + 1))
	a.logger.Info("network added", "id", n.ID, "net_addr", prefix, "switch", sw, "hop", hop)
	return n, nil
}

// provision makes sure n's switch exists and, for routed networks, carries
// the gateway address.
func (a *Allocator) provision(ctx context.Context, n database.Network) error {
	if err := a.sw.EnsureBridge(ctx, n.Switch); err != nil {
		return err
	}
	if n.IsHop {
		return nil
	}
	return a.sw.SetAddress(ctx, n.Switch, netip.PrefixFrom(n.Gateway(), n.Prefix.Bits()))
}

// RemoveNetwork deletes the network row, then its switch. If the switch
// cannot be torn down the row is restored.
func (a *Allocator) RemoveNetwork(ctx context.Context, id int64) error {
	n, err := a.db.GetNetwork(ctx, id)
	if err != nil {
		return storeErr(err, "Network %d not found", id)
	}

	ips, err := a.db.ListIPs(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "store")
	}
	used := 0
	for _, r := range ips {
		if r.NetworkID == id {
			used++
		}
	}
	if used > 0 {
		return errs.New(errs.Conflict, "network %s still has %d reserved IPs", n.Prefix, used)
	}

	if err := a.db.DeleteNetwork(ctx, id); err != nil {
		return storeErr(err, "Network %d not found", id)
	}
	if n.Switch != "" {
		if err := a.sw.DeleteBridge(ctx, n.Switch); err != nil {
			if rerr := a.db.RestoreNetwork(context.WithoutCancel(ctx), n); rerr != nil {
				a.logger.Error("failed to restore network after teardown failure", "id", id, "err", rerr)
			}
			return errs.Wrap(errs.ExternalTool, err, "switch %s could not be removed", n.Switch)
		}
	}

	metrics.NetworksTotal.Dec()
	a.logger.Info("network removed", "id", id, "net_addr", n.Prefix, "switch", n.Switch)
	return nil
}

// NetworkFor returns the network containing addr.
func (a *Allocator) NetworkFor(ctx context.Context, addr netip.Addr) (database.Network, error) {
	nets, err := a.db.ListNetworks(ctx)
	if err != nil {
		return database.Network{}, errs.Wrap(errs.Internal, err, "store")
	}
	for _, n := range nets {
		if n.Prefix.Contains(addr) {
			return n, nil
		}
	}
	return database.Network{}, errs.New(errs.NotFound, "IP not in any allocated networks")
}

// AddIP reserves addr inside its network.
func (a *Allocator) AddIP(ctx context.Context, addr netip.Addr, description string) (database.IPReservation, error) {
	n, err := a.NetworkFor(ctx, addr)
	if err != nil {
		return database.IPReservation{}, err
	}
	if addr == n.Prefix.Masked().Addr() || addr == broadcast(n.Prefix) {
		return database.IPReservation{}, errs.New(errs.Validation, "%s is not a host address of network %s", addr, n.Prefix)
	}
	if !n.IsHop && addr == n.Gateway() {
		return database.IPReservation{}, errs.New(errs.Validation, "%s is the gateway of network %s", addr, n.Prefix)
	}
	if n.InDHCPRange(addr) {
		return database.IPReservation{}, errs.New(errs.Conflict, "IP %s is inside the DHCP range of hop network %s", addr, n.Prefix)
	}
	if _, err := a.db.GetIP(ctx, addr); err == nil {
		return database.IPReservation{}, errs.New(errs.Conflict, "IP already allocated")
	} else if !errors.Is(err, database.ErrNotFound) {
		return database.IPReservation{}, errs.Wrap(errs.Internal, err, "store")
	}

	r := database.IPReservation{Addr: addr, NetworkID: n.ID, Description: description}
	r.ID, err = a.db.InsertIP(ctx, r)
	if err != nil {
		return database.IPReservation{}, errs.Wrap(errs.Internal, err, "store")
	}
	a.logger.Info("ip reserved", "ip_addr", addr, "network", n.Prefix)
	return r, nil
}

// RemoveIP releases a reservation.
func (a *Allocator) RemoveIP(ctx context.Context, addr netip.Addr) error {
	if err := a.db.DeleteIP(ctx, addr); err != nil {
		return storeErr(err, "IP %s is not allocated", addr)
	}
	a.logger.Info("ip released", "ip_addr", addr)
	return nil
}

// SelfHeal re-provisions the switch of every routed network. Failures are
// logged and counted, not returned.
func (a *Allocator) SelfHeal(ctx context.Context) (healed, failed int) {
	nets, err := a.db.ListNetworks(ctx)
	if err != nil {
		a.logger.Warn("self-heal skipped", "err", err)
		return 0, 0
	}
	metrics.NetworksTotal.Set(float64(len(nets)))
	for _, n := range nets {
		if n.IsHop || n.Switch == "" {
			continue
		}
		if err := a.provision(ctx, n); err != nil {
			a.logger.Warn("self-heal failed", "switch", n.Switch, "net_addr", n.Prefix, "err", err)
			failed++
			continue
		}
		healed++
	}
	if healed+failed > 0 {
		a.logger.Info("self-heal done", "healed", healed, "failed", failed)
	}
	return healed, failed
}
