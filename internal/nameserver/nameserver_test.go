package nameserver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
	"github.com/jroosing/labnet/internal/zone"
)

var (
	_ Control = (*RNDC)(nil)
	_ Control = (*Memory)(nil)
)

// serveSOA starts a UDP DNS server on 127.0.0.1 answering SOA queries for
// test. with the given serial.
func serveSOA(t *testing.T, serial uint32) int {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc("test.", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Authoritative = true
		if r.Question[0].Qtype == dns.TypeSOA {
			m.Answer = append(m.Answer, &dns.SOA{
				Hdr:    dns.RR_Header{Name: "test.", Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 60},
				Ns:     "ns1.test.",
				Mbox:   "admin.test.",
				Serial: serial,
			})
		}
		_ = w.WriteMsg(m)
	})
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeRefused)
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().(*net.UDPAddr).Port
}

func newRNDC(port int, run Runner) *RNDC {
	return NewRNDC(config.DNSConfig{
		RNDCPath:     "rndc",
		RNDCKey:      "/etc/labnet/rndc.key",
		QueryPort:    port,
		QueryTimeout: time.Second,
	}, logging.Discard(), run)
}

var local = Target{ID: 1, Addr: netip.MustParseAddr("127.0.0.1")}

func TestRNDC_LiveSerial(t *testing.T) {
	port := serveSOA(t, 2024)
	serial, err := newRNDC(port, nil).LiveSerial(context.Background(), local, "test")
	require.NoError(t, err)
	assert.Equal(t, uint32(2024), serial)
}

func TestRNDC_LiveSerialRefused(t *testing.T) {
	port := serveSOA(t, 1)
	_, err := newRNDC(port, nil).LiveSerial(context.Background(), local, "other")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ExternalTool))
	assert.Contains(t, err.Error(), "REFUSED")
}

func TestRNDC_Lookup(t *testing.T) {
	port := serveSOA(t, 9)
	out, err := newRNDC(port, nil).Lookup(context.Background(), local, "test", "soa")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "ns1.test.")

	_, err = newRNDC(port, nil).Lookup(context.Background(), local, "test", "BOGUS")
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestRNDC_ReloadCommand(t *testing.T) {
	var got []string
	c := newRNDC(53, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		got = append(got, name+" "+strings.Join(args, " "))
		return nil, nil
	})
	target := Target{ID: 3, Addr: netip.MustParseAddr("10.0.0.2")}

	require.NoError(t, c.Reload(context.Background(), target, "test."))
	require.NoError(t, c.Reload(context.Background(), target, "."))
	require.NoError(t, c.Reload(context.Background(), target, ""))

	assert.Equal(t, []string{
		"rndc -s 10.0.0.2 -k /etc/labnet/rndc.key reload test",
		"rndc -s 10.0.0.2 -k /etc/labnet/rndc.key reload .",
		"rndc -s 10.0.0.2 -k /etc/labnet/rndc.key reload",
	}, got)
}

func TestRNDC_ReloadFailure(t *testing.T) {
	c := newRNDC(53, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("rndc: connect failed: 10.0.0.2#953: connection refused\n"), errors.New("exit status 1")
	})
	err := c.Reload(context.Background(), Target{ID: 3, Addr: netip.MustParseAddr("10.0.0.2")}, "test")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ExternalTool))
	assert.Contains(t, err.Error(), "connection refused")
}

func writeZone(t *testing.T, dir, file, origin string, serial uint32, extra ...string) {
	t.Helper()
	z := zone.New(origin, zone.SOAParams{Serial: serial})
	for _, line := range extra {
		rr, err := dns.NewRR(line)
		require.NoError(t, err)
		require.NoError(t, z.Add(rr))
	}
	require.NoError(t, z.Save(filepath.Join(dir, "zones", file), false))
}

func TestMemory_ReloadAndLag(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := Target{ID: 1, Dir: dir}
	m := NewMemory()

	writeZone(t, dir, "test.fwd", "test", 1)
	writeZone(t, dir, "root.fwd", ".", 1)
	require.NoError(t, m.Reload(ctx, target, ""))

	s, err := m.LiveSerial(ctx, target, "test")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s)
	s, err = m.LiveSerial(ctx, target, ".")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s)

	m.SetLag(2)
	writeZone(t, dir, "test.fwd", "test", 2)
	require.NoError(t, m.Reload(ctx, target, "test"))

	var seen []uint32
	for i := 0; i < 4; i++ {
		s, err := m.LiveSerial(ctx, target, "test.")
		require.NoError(t, err)
		seen = append(seen, s)
	}
	assert.Equal(t, []uint32{1, 1, 2, 2}, seen)
	assert.Equal(t, []string{"1:", "1:test"}, m.Reloads())
}

func TestMemory_StuckAndFailing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := Target{ID: 1, Dir: dir}
	m := NewMemory()

	writeZone(t, dir, "test.fwd", "test", 1)
	m.SetStuck(true)
	require.NoError(t, m.Reload(ctx, target, "test"))
	_, err := m.LiveSerial(ctx, target, "test")
	assert.True(t, errs.Is(err, errs.ExternalTool))

	m.SetStuck(false)
	m.FailReload(errors.New("rndc: connection refused"))
	assert.Error(t, m.Reload(ctx, target, "test"))
}

func TestMemory_LookupClosestZone(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := Target{ID: 1, Dir: dir}
	m := NewMemory()

	writeZone(t, dir, "test.fwd", "test", 1,
		"sub.test. 3600 IN NS ns1.sub.test.",
		"ns1.sub.test. 3600 IN A 10.0.0.3",
		"www.test. 3600 IN A 10.0.0.5",
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zones", "override.rpz"), []byte("junk"), 0o644))
	require.NoError(t, m.Reload(ctx, target, ""))

	out, err := m.Lookup(ctx, target, "www.test", "A")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "10.0.0.5")

	out, err = m.Lookup(ctx, target, "sub.test", "A")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "ns1.sub.test.")

	out, err = m.Lookup(ctx, target, "example.com", "A")
	require.NoError(t, err)
	assert.Empty(t, out)
}
