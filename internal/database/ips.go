package database

import (
	"context"
	"fmt"
	"net/netip"
)

// IPReservation is a single address reserved inside a network.
type IPReservation struct {
	ID          int64      `json:"id"`
	Addr        netip.Addr `json:"ip_addr"`
	NetworkID   int64      `json:"network_id"`
	Description string     `json:"description"`
}

func scanIP(row scanner) (IPReservation, error) {
	var (
		r   IPReservation
		raw string
	)
	if err := row.Scan(&r.ID, &raw, &r.NetworkID, &r.Description); err != nil {
		return r, err
	}
	a, err := netip.ParseAddr(raw)
	if err != nil {
		return r, fmt.Errorf("reservation %d has invalid address %q: %w", r.ID, raw, err)
	}
	r.Addr = a
	return r, nil
}

// InsertIP stores a reservation and returns its id.
func (db *DB) InsertIP(ctx context.Context, r IPReservation) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.insertID(ctx, "ip reservation", `
		INSERT INTO ip_reservations (ip_addr, network_id, description)
		VALUES (?, ?, ?)
		RETURNING id
	`, r.Addr.String(), r.NetworkID, r.Description)
}

// DeleteIP removes the reservation for addr.
func (db *DB) DeleteIP(ctx context.Context, addr netip.Addr) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.deleteOne(ctx, "ip reservation", "DELETE FROM ip_reservations WHERE ip_addr = ?", addr.String())
}

// GetIP returns the reservation for addr.
func (db *DB) GetIP(ctx context.Context, addr netip.Addr) (IPReservation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, ip_addr, network_id, description
		FROM ip_reservations
		WHERE ip_addr = ?
	`), addr.String())
	r, err := scanIP(row)
	if err != nil {
		return IPReservation{}, notFound("ip reservation", err)
	}
	return r, nil
}

// ListIPs returns all reservations ordered by id.
func (db *DB) ListIPs(ctx context.Context) ([]IPReservation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, ip_addr, network_id, description
		FROM ip_reservations
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip reservations: %w", err)
	}
	defer rows.Close()

	var out []IPReservation
	for rows.Next() {
		r, err := scanIP(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ip reservation: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ip reservations: %w", err)
	}

	return out, nil
}
