// Package zone reads, edits and writes master-format zone files.
//
// A Zone holds its SOA separately from the other records so the serial can
// be bumped on save. Records are kept in file order and indexed by owner
// name for lookups. Parsing and presentation use github.com/miekg/dns.
package zone

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

var (
	ErrRecordExists   = errors.New("record already exists")
	ErrRecordNotFound = errors.New("record not found")
)

// DefaultTTL applies to records created without an explicit TTL.
const DefaultTTL uint32 = 3600

// SOAParams seeds the SOA of a new zone. Zero fields take defaults.
type SOAParams struct {
	Ns      string
	Mbox    string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minttl  uint32
}

type Zone struct {
	Origin     string
	DefaultTTL uint32

	soa     *dns.SOA
	records []dns.RR

	// owner name (lowercase fqdn) -> indices into records
	nameIndex map[string][]int
}

// New creates an empty zone for origin with a seeded SOA.
func New(origin string, p SOAParams) *Zone {
	origin = dns.Fqdn(strings.ToLower(origin))
	if p.Ns == "" {
		p.Ns = under("ns1", origin)
	}
	if p.Mbox == "" {
		p.Mbox = under("admin", origin)
	}
	if p.Serial == 0 {
		p.Serial = 1
	}
	if p.Refresh == 0 {
		p.Refresh = 604800
	}
	if p.Retry == 0 {
		p.Retry = 86400
	}
	if p.Expire == 0 {
		p.Expire = 2419200
	}
	if p.Minttl == 0 {
		p.Minttl = 300
	}
	soa := &dns.SOA{
		Hdr:     dns.RR_Header{Name: origin, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: DefaultTTL},
		Ns:      dns.Fqdn(p.Ns),
		Mbox:    dns.Fqdn(p.Mbox),
		Serial:  p.Serial,
		Refresh: p.Refresh,
		Retry:   p.Retry,
		Expire:  p.Expire,
		Minttl:  p.Minttl,
	}
	z := &Zone{Origin: origin, DefaultTTL: DefaultTTL, soa: soa}
	z.buildIndex()
	return z
}

// under returns label as a child of origin.
func under(label, origin string) string {
	if origin == "." {
		return label + "."
	}
	return label + "." + origin
}

// LoadFile parses the zone file at path.
func LoadFile(origin, path string) (*Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(origin, f, path)
}

// ParseText parses zone text with the given default origin.
func ParseText(origin, text string) (*Zone, error) {
	return Parse(origin, strings.NewReader(text), "")
}

// Parse reads master-format records from r. The zone must contain an SOA
// at its origin.
func Parse(origin string, r io.Reader, file string) (*Zone, error) {
	origin = dns.Fqdn(strings.ToLower(origin))
	z := &Zone{Origin: origin, DefaultTTL: DefaultTTL}

	zp := dns.NewZoneParser(r, origin, file)
	zp.SetDefaultTTL(DefaultTTL)
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		if soa, isSOA := rr.(*dns.SOA); isSOA && strings.EqualFold(soa.Hdr.Name, origin) {
			z.soa = soa
			continue
		}
		z.records = append(z.records, rr)
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("parse zone %s: %w", origin, err)
	}
	if z.soa == nil {
		return nil, fmt.Errorf("zone %s has no SOA record", origin)
	}
	z.DefaultTTL = z.soa.Hdr.Ttl
	z.buildIndex()
	return z, nil
}

func (z *Zone) buildIndex() {
	z.nameIndex = make(map[string][]int, len(z.records))
	for i, rr := range z.records {
		key := strings.ToLower(rr.Header().Name)
		z.nameIndex[key] = append(z.nameIndex[key], i)
	}
}

// SOA returns the zone's SOA record.
func (z *Zone) SOA() *dns.SOA {
	return z.soa
}

func (z *Zone) Serial() uint32 {
	return z.soa.Serial
}

// BumpSerial advances the serial by one in serial-number arithmetic,
// skipping zero.
func (z *Zone) BumpSerial() uint32 {
	z.soa.Serial++
	if z.soa.Serial == 0 {
		z.soa.Serial = 1
	}
	return z.soa.Serial
}

// ContainsName reports whether name is at or below the zone origin.
func (z *Zone) ContainsName(name string) bool {
	return dns.IsSubDomain(z.Origin, dns.Fqdn(name))
}

// NameExists reports whether any non-SOA record is owned by name.
func (z *Zone) NameExists(name string) bool {
	return len(z.nameIndex[strings.ToLower(dns.Fqdn(name))]) > 0
}

// Lookup returns the records of rrtype owned by name. dns.TypeANY matches all.
func (z *Zone) Lookup(name string, rrtype uint16) []dns.RR {
	if rrtype == dns.TypeSOA {
		if strings.EqualFold(dns.Fqdn(name), z.Origin) {
			return []dns.RR{z.soa}
		}
		return nil
	}
	var out []dns.RR
	for _, idx := range z.nameIndex[strings.ToLower(dns.Fqdn(name))] {
		rr := z.records[idx]
		if rrtype == dns.TypeANY || rr.Header().Rrtype == rrtype {
			out = append(out, rr)
		}
	}
	return out
}

// Records returns every record except the SOA, in file order.
func (z *Zone) Records() []dns.RR {
	return append([]dns.RR(nil), z.records...)
}

// Names returns the distinct owner names, sorted.
func (z *Zone) Names() []string {
	names := make([]string, 0, len(z.nameIndex))
	for n := range z.nameIndex {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Add appends rr unless an identical record exists.
func (z *Zone) Add(rr dns.RR) error {
	if rr.Header().Rrtype == dns.TypeSOA {
		return fmt.Errorf("cannot add a second SOA to %s", z.Origin)
	}
	for _, idx := range z.nameIndex[strings.ToLower(rr.Header().Name)] {
		if dns.IsDuplicate(z.records[idx], rr) {
			return ErrRecordExists
		}
	}
	z.records = append(z.records, rr)
	key := strings.ToLower(rr.Header().Name)
	z.nameIndex[key] = append(z.nameIndex[key], len(z.records)-1)
	return nil
}

// Remove deletes the record identical to rr, ignoring TTL.
func (z *Zone) Remove(rr dns.RR) error {
	for _, idx := range z.nameIndex[strings.ToLower(rr.Header().Name)] {
		if dns.IsDuplicate(z.records[idx], rr) {
			z.records = append(z.records[:idx], z.records[idx+1:]...)
			z.buildIndex()
			return nil
		}
	}
	return ErrRecordNotFound
}

// RemoveName deletes every record owned by name and returns how many.
func (z *Zone) RemoveName(name string) int {
	key := strings.ToLower(dns.Fqdn(name))
	n := len(z.nameIndex[key])
	if n == 0 {
		return 0
	}
	kept := z.records[:0]
	for _, rr := range z.records {
		if !strings.EqualFold(rr.Header().Name, key) {
			kept = append(kept, rr)
		}
	}
	z.records = kept
	z.buildIndex()
	return n
}

// WriteTo writes the zone in master format.
func (z *Zone) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "$ORIGIN %s\n", z.Origin)
	fmt.Fprintf(&b, "$TTL %d\n", z.DefaultTTL)
	b.WriteString(z.soa.String())
	b.WriteByte('\n')
	for _, rr := range z.records {
		b.WriteString(rr.String())
		b.WriteByte('\n')
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Save writes the zone to path atomically. With autoSerial the serial is
// bumped first.
func (z *Zone) Save(path string, autoSerial bool) error {
	if autoSerial {
		z.BumpSerial()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".zone-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := z.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// NewRR builds a record from presentation fields. owner must be absolute;
// relative names inside value are qualified with origin.
func NewRR(origin, owner string, ttl uint32, rrtype, value string) (dns.RR, error) {
	line := fmt.Sprintf("%s %d IN %s %s", owner, ttl, strings.ToUpper(rrtype), value)
	zp := dns.NewZoneParser(strings.NewReader(line), dns.Fqdn(origin), "")
	rr, ok := zp.Next()
	if err := zp.Err(); err != nil {
		return nil, err
	}
	if !ok || rr == nil {
		return nil, fmt.Errorf("empty record for %s", owner)
	}
	return rr, nil
}

// DiscoverZoneFiles returns the forward and reverse zone files in dir,
// sorted by name.
func DiscoverZoneFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".fwd", ".rev":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
