package delegation

import (
	"context"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/jroosing/labnet/internal/compensate"
	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/errs"
)

// Host is the pair of records written by AddHost.
type Host struct {
	FQDN    string     `json:"fqdn"`
	Addr    netip.Addr `json:"ip_addr"`
	Forward ZoneRef    `json:"forward"`
	Reverse ZoneRef    `json:"reverse"`
}

// zoneFor picks the zone of s that should hold name: the longest existing
// zone of the given direction that encloses name, else the server's root
// domain.
func (e *Engine) zoneFor(ctx context.Context, s database.DNSServer, name, dir string) (string, error) {
	zones, err := e.ListZones(ctx, s.ID)
	if err != nil {
		return "", err
	}
	fq := dns.Fqdn(normalizeDomain(name))
	best, bestLabels := s.Domain, -1
	for _, z := range zones {
		if z.Direction != dir || !dns.IsSubDomain(dns.Fqdn(z.Zone), fq) {
			continue
		}
		if n := dns.CountLabel(dns.Fqdn(z.Zone)); n > bestLabels {
			best, bestLabels = z.Zone, n
		}
	}
	return best, nil
}

// ensureZone creates zoneName on s when missing and autocreate is set.
// It reports whether the zone was created.
func (e *Engine) ensureZone(ctx context.Context, s database.DNSServer, zoneName, dir string, autocreate bool) (bool, error) {
	if e.zoneExists(s.ID, zoneName, dir) {
		return false, nil
	}
	if !autocreate {
		return false, errs.New(errs.NotFound, "Zone %s (%s) does not exist on server %d", normalizeDomain(zoneName), dir, s.ID)
	}
	if _, err := e.AddZone(ctx, s.ID, zoneName, dir); err != nil {
		return false, err
	}
	return true, nil
}

// SmartAddRecord adds a record for fqdn on the server whose root domain is
// the longest suffix of fqdn.
func (e *Engine) SmartAddRecord(ctx context.Context, fqdn, rrtype, value, direction string, autocreate bool) (ZoneRef, error) {
	dir, err := directionArg(direction)
	if err != nil {
		return ZoneRef{}, err
	}
	s, err := e.authority(ctx, fqdn)
	if err != nil {
		return ZoneRef{}, err
	}
	zoneName, err := e.zoneFor(ctx, s, fqdn, dir)
	if err != nil {
		return ZoneRef{}, err
	}
	if _, err := e.ensureZone(ctx, s, zoneName, dir, autocreate); err != nil {
		return ZoneRef{}, err
	}
	return e.AddRecord(ctx, s.ID, zoneName, dir, rrtype, dns.Fqdn(normalizeDomain(fqdn)), value)
}

// SmartRemoveRecord removes a record added by SmartAddRecord.
func (e *Engine) SmartRemoveRecord(ctx context.Context, fqdn, rrtype, value, direction string) (ZoneRef, error) {
	dir, err := directionArg(direction)
	if err != nil {
		return ZoneRef{}, err
	}
	s, err := e.authority(ctx, fqdn)
	if err != nil {
		return ZoneRef{}, err
	}
	zoneName, err := e.zoneFor(ctx, s, fqdn, dir)
	if err != nil {
		return ZoneRef{}, err
	}
	return e.RemoveRecord(ctx, s.ID, zoneName, dir, rrtype, dns.Fqdn(normalizeDomain(fqdn)), value)
}

// reverseOf splits the reverse name of addr into its /24 zone and the
// owner label inside it: 10.0.0.9 -> ("0.0.10.in-addr.arpa", "9").
func reverseOf(addr netip.Addr) (zoneName, owner string, err error) {
	if !addr.Is4() {
		return "", "", errs.New(errs.Validation, "'%s' is not an IPv4 address", addr)
	}
	rev, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", "", errs.Wrap(errs.Validation, err, "reverse name of %s", addr)
	}
	owner, rest, _ := strings.Cut(strings.TrimSuffix(rev, "."), ".")
	return rest, owner, nil
}

// AddHost adds fqdn's A record on its authoritative server and the
// matching PTR record in the reverse zone on the lowest-id server,
// creating that reverse zone when needed.
func (e *Engine) AddHost(ctx context.Context, fqdn string, addr netip.Addr) (Host, error) {
	revZone, owner, err := reverseOf(addr)
	if err != nil {
		return Host{}, err
	}
	fqdn = normalizeDomain(fqdn)
	primary, err := e.primary(ctx)
	if err != nil {
		return Host{}, err
	}

	var undo compensate.Stack
	fail := func(err error) (Host, error) {
		if rerr := undo.Rollback(ctx, e.logger); rerr != nil {
			e.logger.Error("add_host rollback incomplete", "fqdn", fqdn, "err", rerr)
		}
		return Host{}, err
	}

	fwd, err := e.SmartAddRecord(ctx, fqdn, "A", addr.String(), dirForward, false)
	if err != nil {
		return Host{}, err
	}
	undo.Push("forward record", func(ctx context.Context) error {
		_, err := e.RemoveRecord(ctx, fwd.Server, fwd.Zone, dirForward, "A", dns.Fqdn(fqdn), addr.String())
		return err
	})

	created, err := e.ensureZone(ctx, primary, revZone, dirReverse, true)
	if err != nil {
		return fail(err)
	}
	if created {
		undo.Push("reverse zone", func(ctx context.Context) error {
			return e.RemoveZone(ctx, primary.ID, revZone, dirReverse)
		})
	}

	// A failed confirm leaves the PTR written, so the undo is pushed first.
	undo.Push("reverse record", func(ctx context.Context) error {
		_, err := e.RemoveRecord(ctx, primary.ID, revZone, dirReverse, "PTR", owner, dns.Fqdn(fqdn))
		if errs.Is(err, errs.NotFound) {
			return nil
		}
		return err
	})
	rev, err := e.AddRecord(ctx, primary.ID, revZone, dirReverse, "PTR", owner, dns.Fqdn(fqdn))
	if err != nil {
		return fail(err)
	}

	return Host{FQDN: fqdn, Addr: addr, Forward: fwd, Reverse: rev}, nil
}

// RemoveHost removes the A and PTR records written by AddHost.
func (e *Engine) RemoveHost(ctx context.Context, fqdn string, addr netip.Addr) error {
	revZone, owner, err := reverseOf(addr)
	if err != nil {
		return err
	}
	fqdn = normalizeDomain(fqdn)
	primary, err := e.primary(ctx)
	if err != nil {
		return err
	}
	if _, err := e.SmartRemoveRecord(ctx, fqdn, "A", addr.String(), dirForward); err != nil {
		return err
	}
	if _, err := e.RemoveRecord(ctx, primary.ID, revZone, dirReverse, "PTR", owner, dns.Fqdn(fqdn)); err != nil {
		return err
	}
	return nil
}
