// Package nameserver drives the authoritative DNS daemons running inside
// lab units: reloading zones after edits and reading back the live state.
package nameserver

import (
	"context"
	"net/netip"
)

// Target identifies one running name server.
type Target struct {
	ID   int64
	Addr netip.Addr
	Unit string
	// Dir is the host directory mounted as the daemon's configuration root.
	Dir string
}

// Control reloads and inspects name servers.
type Control interface {
	// Reload asks the daemon to reload zone, or all zones when zone is "".
	Reload(ctx context.Context, t Target, zone string) error
	// LiveSerial returns the SOA serial the daemon currently serves for zone.
	LiveSerial(ctx context.Context, t Target, zone string) (uint32, error)
	// Lookup asks the daemon for name/rrtype and returns the answer records
	// in presentation format.
	Lookup(ctx context.Context, t Target, name, rrtype string) ([]string, error)
}
