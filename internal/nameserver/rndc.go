package nameserver

import (
	"context"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
)

// Runner executes a host command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// RNDC reloads BIND with rndc and reads live state over DNS.
type RNDC struct {
	path    string
	key     string
	port    int
	timeout time.Duration
	run     Runner
	logger  *slog.Logger
}

// NewRNDC creates a controller. A nil run executes rndc with os/exec.
func NewRNDC(cfg config.DNSConfig, logger *slog.Logger, run Runner) *RNDC {
	if run == nil {
		run = execRunner
	}
	return &RNDC{
		path:    cfg.RNDCPath,
		key:     cfg.RNDCKey,
		port:    cfg.QueryPort,
		timeout: cfg.QueryTimeout,
		run:     run,
		logger:  logging.Component(logger, "nameserver"),
	}
}

func (c *RNDC) Reload(ctx context.Context, t Target, zone string) error {
	args := []string{"-s", t.Addr.String()}
	if c.key != "" {
		args = append(args, "-k", c.key)
	}
	args = append(args, "reload")
	if zone != "" {
		args = append(args, zoneArg(zone))
	}

	out, err := c.run(ctx, c.path, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return errs.New(errs.ExternalTool, "reload of server %d failed: %s", t.ID, msg)
	}
	c.logger.Debug("reloaded", "server", t.ID, "zone", zone)
	return nil
}

// zoneArg formats a zone name for rndc, which wants no trailing dot except
// for the root.
func zoneArg(zone string) string {
	if zone == "." {
		return zone
	}
	return strings.TrimSuffix(zone, ".")
}

func (c *RNDC) exchange(ctx context.Context, t Target, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = false

	client := &dns.Client{Net: "udp", Timeout: c.timeout}
	addr := net.JoinHostPort(t.Addr.String(), strconv.Itoa(c.port))
	resp, _, err := client.ExchangeContext(ctx, m, addr)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalTool, err, "query %s %s on server %d", name, dns.TypeToString[qtype], t.ID)
	}
	return resp, nil
}

func (c *RNDC) LiveSerial(ctx context.Context, t Target, zone string) (uint32, error) {
	resp, err := c.exchange(ctx, t, zone, dns.TypeSOA)
	if err != nil {
		return 0, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return 0, errs.New(errs.ExternalTool, "server %d answered %s for SOA %s", t.ID, dns.RcodeToString[resp.Rcode], zone)
	}
	for _, rr := range resp.Answer {
		if soa, ok := rr.(*dns.SOA); ok {
			return soa.Serial, nil
		}
	}
	return 0, errs.New(errs.ExternalTool, "server %d returned no SOA for %s", t.ID, zone)
}

func (c *RNDC) Lookup(ctx context.Context, t Target, name, rrtype string) ([]string, error) {
	qtype, ok := dns.StringToType[strings.ToUpper(rrtype)]
	if !ok {
		return nil, errs.New(errs.Validation, "unknown record type '%s'", rrtype)
	}
	resp, err := c.exchange(ctx, t, name, qtype)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Answer)+len(resp.Ns))
	for _, rr := range resp.Answer {
		out = append(out, rr.String())
	}
	// Referrals carry the delegation in the authority section
	if len(resp.Answer) == 0 {
		for _, rr := range resp.Ns {
			out = append(out, rr.String())
		}
	}
	return out, nil
}
