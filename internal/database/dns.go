package database

import (
	"context"
	"fmt"
	"net/netip"
)

// DNSServer is an authority server bound to one IP and one root domain.
type DNSServer struct {
	ID          int64      `json:"id"`
	Addr        netip.Addr `json:"ip_addr"`
	Description string     `json:"description"`
	Domain      string     `json:"domain"`
}

// Delegation kinds.
const (
	DelegationSubdomain = "subdomain"
	DelegationRoot      = "root"
	DelegationExternal  = "external"
)

// Delegation records NS/glue installed in a parent server's zone.
type Delegation struct {
	ID       int64      `json:"id"`
	Kind     string     `json:"kind"`
	FQDN     string     `json:"fqdn"`
	NSAddr   netip.Addr `json:"ns_addr"`
	ParentID int64      `json:"parent_id"`
	ChildID  int64      `json:"child_id"`
}

func scanDNSServer(row scanner) (DNSServer, error) {
	var (
		s   DNSServer
		raw string
	)
	if err := row.Scan(&s.ID, &raw, &s.Description, &s.Domain); err != nil {
		return s, err
	}
	s.Addr, _ = netip.ParseAddr(raw)
	return s, nil
}

func scanDelegation(row scanner) (Delegation, error) {
	var (
		d   Delegation
		raw string
	)
	if err := row.Scan(&d.ID, &d.Kind, &d.FQDN, &raw, &d.ParentID, &d.ChildID); err != nil {
		return d, err
	}
	d.NSAddr, _ = netip.ParseAddr(raw)
	return d, nil
}

// InsertDNSServer stores a server and returns its id.
func (db *DB) InsertDNSServer(ctx context.Context, s DNSServer) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.insertID(ctx, "dns server", `
		INSERT INTO dns_servers (ip_addr, description, domain)
		VALUES (?, ?, ?)
		RETURNING id
	`, s.Addr.String(), s.Description, s.Domain)
}

// DeleteDNSServer removes a server row and its forwarders.
func (db *DB) DeleteDNSServer(ctx context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM dns_forwarders WHERE server_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete forwarders: %w", err)
	}
	return db.deleteOne(ctx, "dns server", "DELETE FROM dns_servers WHERE id = ?", id)
}

// GetDNSServer returns the server with the given id.
func (db *DB) GetDNSServer(ctx context.Context, id int64) (DNSServer, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, db.rebind("SELECT id, ip_addr, description, domain FROM dns_servers WHERE id = ?"), id)
	s, err := scanDNSServer(row)
	if err != nil {
		return DNSServer{}, notFound("dns server", err)
	}
	return s, nil
}

// DNSServerByDomain returns the server authoritative for domain.
func (db *DB) DNSServerByDomain(ctx context.Context, domain string) (DNSServer, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, db.rebind("SELECT id, ip_addr, description, domain FROM dns_servers WHERE domain = ?"), domain)
	s, err := scanDNSServer(row)
	if err != nil {
		return DNSServer{}, notFound("dns server", err)
	}
	return s, nil
}

// ListDNSServers returns all servers ordered by id.
func (db *DB) ListDNSServers(ctx context.Context) ([]DNSServer, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT id, ip_addr, description, domain FROM dns_servers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query dns servers: %w", err)
	}
	defer rows.Close()

	var out []DNSServer
	for rows.Next() {
		s, err := scanDNSServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dns server: %w", err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dns servers: %w", err)
	}

	return out, nil
}

// InsertDelegation stores a delegation and returns its id.
func (db *DB) InsertDelegation(ctx context.Context, d Delegation) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.insertID(ctx, "delegation", `
		INSERT INTO dns_delegations (kind, fqdn, ns_addr, parent_id, child_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, d.Kind, d.FQDN, d.NSAddr.String(), d.ParentID, d.ChildID)
}

// DeleteDelegation removes a delegation by id.
func (db *DB) DeleteDelegation(ctx context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.deleteOne(ctx, "delegation", "DELETE FROM dns_delegations WHERE id = ?", id)
}

const delegationColumns = "id, kind, fqdn, ns_addr, parent_id, child_id"

// GetDelegation returns the delegation with the given id.
func (db *DB) GetDelegation(ctx context.Context, id int64) (Delegation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, db.rebind("SELECT "+delegationColumns+" FROM dns_delegations WHERE id = ?"), id)
	d, err := scanDelegation(row)
	if err != nil {
		return Delegation{}, notFound("delegation", err)
	}
	return d, nil
}

// DelegationByChild returns the delegation of the given kind whose child server is childID.
func (db *DB) DelegationByChild(ctx context.Context, kind string, childID int64) (Delegation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, db.rebind("SELECT "+delegationColumns+" FROM dns_delegations WHERE kind = ? AND child_id = ?"), kind, childID)
	d, err := scanDelegation(row)
	if err != nil {
		return Delegation{}, notFound("delegation", err)
	}
	return d, nil
}

// ListDelegations returns all delegations ordered by id.
func (db *DB) ListDelegations(ctx context.Context) ([]Delegation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT "+delegationColumns+" FROM dns_delegations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query delegations: %w", err)
	}
	defer rows.Close()

	var out []Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delegation: %w", err)
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delegations: %w", err)
	}

	return out, nil
}

// InsertForwarder adds an upstream resolver to a server.
func (db *DB) InsertForwarder(ctx context.Context, serverID int64, addr netip.Addr) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, db.rebind("INSERT INTO dns_forwarders (server_id, ip_addr) VALUES (?, ?)"), serverID, addr.String())
	if err != nil {
		return fmt.Errorf("failed to insert forwarder %s: %w", addr, err)
	}
	return nil
}

// DeleteForwarder removes an upstream resolver from a server.
func (db *DB) DeleteForwarder(ctx context.Context, serverID int64, addr netip.Addr) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.deleteOne(ctx, "forwarder", "DELETE FROM dns_forwarders WHERE server_id = ? AND ip_addr = ?", serverID, addr.String())
}

// ListForwarders returns a server's upstream resolvers in insertion order.
func (db *DB) ListForwarders(ctx context.Context, serverID int64) ([]netip.Addr, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, db.rebind("SELECT ip_addr FROM dns_forwarders WHERE server_id = ? ORDER BY created_at, ip_addr"), serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query forwarders: %w", err)
	}
	defer rows.Close()

	var out []netip.Addr
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan forwarder: %w", err)
		}
		if a, err := netip.ParseAddr(raw); err == nil {
			out = append(out, a)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forwarders: %w", err)
	}

	return out, nil
}
