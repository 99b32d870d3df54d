package delegation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/miekg/dns"

	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/zone"
)

// ZoneRef names one zone file of a server.
type ZoneRef struct {
	Server    int64  `json:"server_id"`
	Zone      string `json:"zone"`
	Direction string `json:"direction"`
	Serial    uint32 `json:"serial"`
}

// Record is a zone record in presentation form.
type Record struct {
	Name  string `json:"name"`
	TTL   uint32 `json:"ttl"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

func recordOf(rr dns.RR) Record {
	h := rr.Header()
	return Record{
		Name:  h.Name,
		TTL:   h.Ttl,
		Type:  dns.TypeToString[h.Rrtype],
		Value: strings.TrimPrefix(rr.String(), h.String()),
	}
}

// qualify makes name absolute within origin. "@" is the apex, names
// ending in "." are already absolute, and names equal to or ending with
// the zone are treated as written out in full.
func qualify(name, origin string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	origin = dns.Fqdn(strings.ToLower(origin))
	switch {
	case name == "@" || name == "":
		return origin
	case strings.HasSuffix(name, "."):
		return name
	case origin == ".":
		return name + "."
	}
	bare := strings.TrimSuffix(origin, ".")
	if name == bare || strings.HasSuffix(name, "."+bare) {
		return name + "."
	}
	return name + "." + origin
}

func directionArg(s string) (string, error) {
	dir, ok := parseDirection(s)
	if !ok {
		return "", errs.New(errs.Validation, "Invalid zone direction '%s'", s)
	}
	return dir, nil
}

// loadZone opens the zone file of zoneName on server id.
func (e *Engine) loadZone(id int64, zoneName, dir string) (*zone.Zone, string, error) {
	path := e.zonePath(id, zoneName, dir)
	z, err := zone.LoadFile(normalizeDomain(zoneName), path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", errs.New(errs.NotFound, "Zone %s (%s) does not exist on server %d", normalizeDomain(zoneName), dir, id)
	}
	if err != nil {
		return nil, "", fileErr(err, "load zone %s", zoneName)
	}
	return z, path, nil
}

func (e *Engine) zoneExists(id int64, zoneName, dir string) bool {
	_, err := os.Stat(e.zonePath(id, zoneName, dir))
	return err == nil
}

// AddZone creates a zone on server id with an SOA, an apex NS record and
// glue for the server itself, then loads it into the daemon.
func (e *Engine) AddZone(ctx context.Context, id int64, zoneName, direction string) (ZoneRef, error) {
	dir, err := directionArg(direction)
	if err != nil {
		return ZoneRef{}, err
	}
	s, err := e.server(ctx, id)
	if err != nil {
		return ZoneRef{}, err
	}
	zoneName = normalizeDomain(zoneName)
	if _, ok := dns.IsDomainName(zoneName); !ok {
		return ZoneRef{}, errs.New(errs.Validation, "'%s' is not a valid zone name", zoneName)
	}
	if e.zoneExists(id, zoneName, dir) {
		return ZoneRef{}, errs.New(errs.Conflict, "Zone already exists")
	}

	origin := dns.Fqdn(zoneName)
	ns := qualify("ns1", origin)
	z := zone.New(origin, zone.SOAParams{Ns: ns})
	nsRR, err := zone.NewRR(origin, origin, z.DefaultTTL, "NS", ns)
	if err != nil {
		return ZoneRef{}, errs.Wrap(errs.Internal, err, "build NS record")
	}
	glue, err := zone.NewRR(origin, ns, z.DefaultTTL, "A", s.Addr.String())
	if err != nil {
		return ZoneRef{}, errs.Wrap(errs.Internal, err, "build glue record")
	}
	_ = z.Add(nsRR)
	_ = z.Add(glue)

	path := e.zonePath(id, zoneName, dir)
	if err := z.Save(path, false); err != nil {
		return ZoneRef{}, fileErr(err, "write zone %s", zoneName)
	}
	if err := writeFile(e.zoneConfPath(id, zoneName, dir), zoneConfText(zoneName, dir)); err != nil {
		os.Remove(path)
		return ZoneRef{}, fileErr(err, "write zone configuration %s", zoneName)
	}
	if err := e.addInclude(id, zoneName, dir); err != nil {
		os.Remove(path)
		os.Remove(e.zoneConfPath(id, zoneName, dir))
		return ZoneRef{}, fileErr(err, "update named.conf of server %d", id)
	}

	// New zones need a configuration reload, not just a zone reload
	err = e.ns.Reload(ctx, e.target(s), "")
	if err == nil {
		err = e.confirm(ctx, s, zoneName, z.Serial())
	}
	if err != nil {
		e.discardZone(context.WithoutCancel(ctx), s, zoneName, dir)
		return ZoneRef{}, err
	}

	e.logger.Info("zone added", "server", id, "zone", zoneName, "direction", dir)
	return ZoneRef{Server: id, Zone: zoneName, Direction: dir, Serial: z.Serial()}, nil
}

// discardZone undoes a zone that never came up: its include, files and
// whatever the daemon loaded. Failures are only logged.
func (e *Engine) discardZone(ctx context.Context, s database.DNSServer, zoneName, dir string) {
	if err := e.removeInclude(s.ID, zoneName, dir); err != nil {
		e.logger.Warn("failed to drop zone include", "server", s.ID, "zone", zoneName, "err", err)
	}
	os.Remove(e.zonePath(s.ID, zoneName, dir))
	os.Remove(e.zoneConfPath(s.ID, zoneName, dir))
	if err := e.ns.Reload(ctx, e.target(s), ""); err != nil {
		e.logger.Warn("reload after discarding zone failed", "server", s.ID, "zone", zoneName, "err", err)
	}
}

// RemoveZone deletes a zone's file and configuration and reloads the server.
func (e *Engine) RemoveZone(ctx context.Context, id int64, zoneName, direction string) error {
	dir, err := directionArg(direction)
	if err != nil {
		return err
	}
	s, err := e.server(ctx, id)
	if err != nil {
		return err
	}
	zoneName = normalizeDomain(zoneName)
	if !e.zoneExists(id, zoneName, dir) {
		return errs.New(errs.NotFound, "Zone %s (%s) does not exist on server %d", zoneName, dir, id)
	}
	if err := e.removeInclude(id, zoneName, dir); err != nil {
		return fileErr(err, "update named.conf of server %d", id)
	}
	for _, p := range []string{e.zonePath(id, zoneName, dir), e.zoneConfPath(id, zoneName, dir)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fileErr(err, "remove %s", filepath.Base(p))
		}
	}
	if err := e.ns.Reload(ctx, e.target(s), ""); err != nil {
		return err
	}
	e.logger.Info("zone removed", "server", id, "zone", zoneName, "direction", dir)
	return nil
}

// ListZones returns the zones of server id.
func (e *Engine) ListZones(ctx context.Context, id int64) ([]ZoneRef, error) {
	if _, err := e.server(ctx, id); err != nil {
		return nil, err
	}
	files, err := zone.DiscoverZoneFiles(filepath.Join(e.serverDir(id), "zones"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fileErr(err, "list zones of server %d", id)
	}
	out := make([]ZoneRef, 0, len(files))
	for _, f := range files {
		ext := filepath.Ext(f)
		name := strings.TrimSuffix(filepath.Base(f), ext)
		if name == "root" {
			name = "."
		}
		ref := ZoneRef{Server: id, Zone: name, Direction: strings.TrimPrefix(ext, ".")}
		if z, err := zone.LoadFile(name, f); err == nil {
			ref.Serial = z.Serial()
		}
		out = append(out, ref)
	}
	return out, nil
}

// ListRecords returns the records of one zone, SOA first.
func (e *Engine) ListRecords(ctx context.Context, id int64, zoneName, direction string) ([]Record, error) {
	dir, err := directionArg(direction)
	if err != nil {
		return nil, err
	}
	if _, err := e.server(ctx, id); err != nil {
		return nil, err
	}
	z, _, err := e.loadZone(id, zoneName, dir)
	if err != nil {
		return nil, err
	}
	out := []Record{recordOf(z.SOA())}
	for _, rr := range z.Records() {
		out = append(out, recordOf(rr))
	}
	return out, nil
}

// AddRecord adds one record, bumps the serial and waits for the daemon to
// serve it.
func (e *Engine) AddRecord(ctx context.Context, id int64, zoneName, direction, rrtype, name, value string) (ZoneRef, error) {
	return e.editRecord(ctx, id, zoneName, direction, rrtype, name, value, true)
}

// RemoveRecord removes one record, bumps the serial and waits for the
// daemon to serve the change.
func (e *Engine) RemoveRecord(ctx context.Context, id int64, zoneName, direction, rrtype, name, value string) (ZoneRef, error) {
	return e.editRecord(ctx, id, zoneName, direction, rrtype, name, value, false)
}

func (e *Engine) editRecord(ctx context.Context, id int64, zoneName, direction, rrtype, name, value string, add bool) (ZoneRef, error) {
	dir, err := directionArg(direction)
	if err != nil {
		return ZoneRef{}, err
	}
	rrtype = strings.ToUpper(rrtype)
	if t, ok := dns.StringToType[rrtype]; !ok || t == dns.TypeSOA {
		return ZoneRef{}, errs.New(errs.Validation, "unsupported record type '%s'", rrtype)
	}
	s, err := e.server(ctx, id)
	if err != nil {
		return ZoneRef{}, err
	}
	z, path, err := e.loadZone(id, zoneName, dir)
	if err != nil {
		return ZoneRef{}, err
	}

	owner := qualify(name, z.Origin)
	rr, err := zone.NewRR(z.Origin, owner, z.DefaultTTL, rrtype, value)
	if err != nil {
		return ZoneRef{}, errs.Wrap(errs.Validation, err, "invalid %s record for %s", rrtype, owner)
	}
	if !dns.IsSubDomain(z.Origin, owner) {
		return ZoneRef{}, errs.New(errs.Validation, "%s is outside zone %s", owner, z.Origin)
	}

	if add {
		if err := z.Add(rr); errors.Is(err, zone.ErrRecordExists) {
			return ZoneRef{}, errs.New(errs.Conflict, "Record already exists")
		} else if err != nil {
			return ZoneRef{}, errs.Wrap(errs.Validation, err, "add record")
		}
	} else if err := z.Remove(rr); err != nil {
		return ZoneRef{}, errs.New(errs.NotFound, "Record %s %s %s not found in zone %s", owner, rrtype, value, z.Origin)
	}

	if err := z.Save(path, true); err != nil {
		return ZoneRef{}, fileErr(err, "write zone %s", z.Origin)
	}
	ref := ZoneRef{Server: id, Zone: normalizeDomain(zoneName), Direction: dir, Serial: z.Serial()}
	if err := e.reloadZone(ctx, s, ref.Zone, ref.Serial); err != nil {
		return ref, err
	}

	verb := "record removed"
	if add {
		verb = "record added"
	}
	e.logger.Info(verb, "server", id, "zone", ref.Zone, "name", owner, "type", rrtype, "serial", ref.Serial)
	return ref, nil
}

// Query asks server id's daemon for name/rrtype.
func (e *Engine) Query(ctx context.Context, id int64, name, rrtype string) ([]string, error) {
	s, err := e.server(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.ns.Lookup(ctx, e.target(s), name, rrtype)
}

// removeIfPresent deletes a forward record, ignoring a missing one.
func (e *Engine) removeIfPresent(ctx context.Context, s database.DNSServer, zoneName, rrtype, name, value string) error {
	_, err := e.RemoveRecord(ctx, s.ID, zoneName, dirForward, rrtype, name, value)
	if errs.Is(err, errs.NotFound) {
		return nil
	}
	return err
}
