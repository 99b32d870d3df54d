package database

import (
	"context"
	"fmt"
	"net/netip"
)

// Network is an allocated IPv4 range, optionally bound to a virtual switch.
type Network struct {
	ID          int64        `json:"id"`
	Prefix      netip.Prefix `json:"net_addr"`
	Description string       `json:"description"`
	Switch      string       `json:"switch"`
	IsHop       bool         `json:"is_hop"`
	DHCPStart   netip.Addr   `json:"dhcp_start,omitzero"`
	DHCPEnd     netip.Addr   `json:"dhcp_end,omitzero"`
}

// Gateway returns the first host address of the network.
func (n Network) Gateway() netip.Addr {
	return n.Prefix.Masked().Addr().Next()
}

// InDHCPRange reports whether addr falls inside the hop DHCP range.
func (n Network) InDHCPRange(addr netip.Addr) bool {
	if !n.IsHop || !n.DHCPStart.IsValid() {
		return false
	}
	return addr.Compare(n.DHCPStart) >= 0 && addr.Compare(n.DHCPEnd) <= 0
}

const networkColumns = "id, net_addr, description, switch_name, is_hop, dhcp_start, dhcp_end"

type scanner interface {
	Scan(dest ...any) error
}

func scanNetwork(row scanner) (Network, error) {
	var (
		n          Network
		cidr       string
		start, end string
	)
	if err := row.Scan(&n.ID, &cidr, &n.Description, &n.Switch, &n.IsHop, &start, &end); err != nil {
		return n, err
	}
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return n, fmt.Errorf("network %d has invalid address %q: %w", n.ID, cidr, err)
	}
	n.Prefix = p
	if start != "" {
		n.DHCPStart, _ = netip.ParseAddr(start)
		n.DHCPEnd, _ = netip.ParseAddr(end)
	}
	return n, nil
}

func addrText(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

// InsertNetwork stores a new network and returns its id.
func (db *DB) InsertNetwork(ctx context.Context, n Network) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.insertID(ctx, "network", `
		INSERT INTO networks (net_addr, description, switch_name, is_hop, dhcp_start, dhcp_end)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, n.Prefix.String(), n.Description, n.Switch, n.IsHop, addrText(n.DHCPStart), addrText(n.DHCPEnd))
}

// RestoreNetwork re-inserts a previously deleted network under its old id.
func (db *DB) RestoreNetwork(ctx context.Context, n Network) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO networks (id, net_addr, description, switch_name, is_hop, dhcp_start, dhcp_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), n.ID, n.Prefix.String(), n.Description, n.Switch, n.IsHop, addrText(n.DHCPStart), addrText(n.DHCPEnd))
	if err != nil {
		return fmt.Errorf("failed to restore network %d: %w", n.ID, err)
	}
	return nil
}

// DeleteNetwork removes a network by id.
func (db *DB) DeleteNetwork(ctx context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.deleteOne(ctx, "network", "DELETE FROM networks WHERE id = ?", id)
}

// GetNetwork returns the network with the given id.
func (db *DB) GetNetwork(ctx context.Context, id int64) (Network, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, db.rebind("SELECT "+networkColumns+" FROM networks WHERE id = ?"), id)
	n, err := scanNetwork(row)
	if err != nil {
		return Network{}, notFound("network", err)
	}
	return n, nil
}

// NetworkBySwitch returns the network bound to the named switch.
func (db *DB) NetworkBySwitch(ctx context.Context, name string) (Network, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, db.rebind("SELECT "+networkColumns+" FROM networks WHERE switch_name = ? AND switch_name <> ''"), name)
	n, err := scanNetwork(row)
	if err != nil {
		return Network{}, notFound("network", err)
	}
	return n, nil
}

// ListNetworks returns all networks ordered by id.
func (db *DB) ListNetworks(ctx context.Context) ([]Network, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT "+networkColumns+" FROM networks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query networks: %w", err)
	}
	defer rows.Close()

	var nets []Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan network: %w", err)
		}
		nets = append(nets, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating networks: %w", err)
	}

	return nets, nil
}
