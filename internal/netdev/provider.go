// Package netdev manages the virtual switches (bridges) that back allocated
// networks and the ports that connect compute units to them.
package netdev

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/netip"
)

// PortSpec describes a unit's port on a bridge.
type PortSpec struct {
	// Unit is the compute unit name.
	Unit string
	// PID is the unit's init process, used to enter its network namespace.
	PID int
	// Addr is the address assigned inside the unit, with the network's length.
	Addr netip.Prefix
	// Gateway becomes the unit's default route when valid.
	Gateway netip.Addr
}

// Provider creates bridges and ports. All methods are idempotent where the
// underlying tool allows it.
type Provider interface {
	EnsureBridge(ctx context.Context, name string) error
	SetAddress(ctx context.Context, bridge string, addr netip.Prefix) error
	DeleteBridge(ctx context.Context, name string) error
	AttachPort(ctx context.Context, bridge string, port PortSpec) error
	DetachPort(ctx context.Context, bridge, unit string) error
}

// vethNames returns the host and peer interface names for a unit's port.
// Names stay within the 15 byte interface name limit.
func vethNames(bridge, unit string) (host, peer string) {
	sum := sha1.Sum([]byte(bridge + "/" + unit))
	h := hex.EncodeToString(sum[:])[:10]
	return "lb" + h, "lp" + h
}
