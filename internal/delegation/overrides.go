package delegation

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/errs"
)

// Override forces a name to resolve to an address on the primary server.
type Override struct {
	FQDN string     `json:"fqdn"`
	Addr netip.Addr `json:"ip_addr"`
}

func overrideLine(fqdn string, addr netip.Addr) string {
	return fmt.Sprintf("%s IN A %s", normalizeDomain(fqdn), addr)
}

// parseOverride reads "<fqdn> IN A <ip>" lines; anything else is not an
// override.
func parseOverride(line string) (Override, bool) {
	f := strings.Fields(line)
	if len(f) != 4 || f[1] != "IN" || f[2] != "A" || f[0] == "@" {
		return Override{}, false
	}
	addr, err := netip.ParseAddr(f[3])
	if err != nil {
		return Override{}, false
	}
	return Override{FQDN: f[0], Addr: addr}, true
}

func (e *Engine) readOverrides(s database.DNSServer) ([]string, error) {
	raw, err := os.ReadFile(e.overridePath(s.ID))
	if errors.Is(err, os.ErrNotExist) {
		return strings.Split(strings.TrimSuffix(overrideTemplate, "\n"), "\n"), nil
	}
	if err != nil {
		return nil, fileErr(err, "read overrides")
	}
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n"), nil
}

func (e *Engine) writeOverrides(ctx context.Context, s database.DNSServer, lines []string) error {
	path := e.overridePath(s.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fileErr(err, "write overrides")
	}
	if err := writeFile(path, strings.Join(lines, "\n")+"\n"); err != nil {
		return fileErr(err, "write overrides")
	}
	return e.ns.Reload(ctx, e.target(s), overrideZone)
}

// AddOverride appends an override unless the same line already exists.
func (e *Engine) AddOverride(ctx context.Context, fqdn string, addr netip.Addr) (Override, error) {
	s, err := e.primary(ctx)
	if err != nil {
		return Override{}, err
	}
	lines, err := e.readOverrides(s)
	if err != nil {
		return Override{}, err
	}
	line := overrideLine(fqdn, addr)
	o := Override{FQDN: normalizeDomain(fqdn), Addr: addr}
	for _, l := range lines {
		if strings.TrimSpace(l) == line {
			return o, nil
		}
	}
	if err := e.writeOverrides(ctx, s, append(lines, line)); err != nil {
		return Override{}, err
	}
	e.logger.Info("override added", "fqdn", o.FQDN, "ip_addr", addr)
	return o, nil
}

// RemoveOverride drops the matching override line.
func (e *Engine) RemoveOverride(ctx context.Context, fqdn string, addr netip.Addr) error {
	s, err := e.primary(ctx)
	if err != nil {
		return err
	}
	lines, err := e.readOverrides(s)
	if err != nil {
		return err
	}
	line := overrideLine(fqdn, addr)
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != line {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(lines) {
		return errs.New(errs.NotFound, "Override %s -> %s not found", normalizeDomain(fqdn), addr)
	}
	if err := e.writeOverrides(ctx, s, kept); err != nil {
		return err
	}
	e.logger.Info("override removed", "fqdn", normalizeDomain(fqdn), "ip_addr", addr)
	return nil
}

// ListOverrides returns the overrides in file order.
func (e *Engine) ListOverrides(ctx context.Context) ([]Override, error) {
	s, err := e.primary(ctx)
	if err != nil {
		return nil, err
	}
	lines, err := e.readOverrides(s)
	if err != nil {
		return nil, err
	}
	out := []Override{}
	for _, l := range lines {
		if o, ok := parseOverride(l); ok {
			out = append(out, o)
		}
	}
	return out, nil
}
