package netdev

import (
	"context"
	"log/slog"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
)

// Runner executes a host command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// OVS drives Open vSwitch bridges with ovs-vsctl and wires unit ports as
// veth pairs moved into the unit's network namespace.
type OVS struct {
	vsctl   string
	ip      string
	nsenter string
	run     Runner
	logger  *slog.Logger
}

// NewOVS creates an OVS provider. A nil run uses ExecRunner.
func NewOVS(cfg config.SwitchConfig, logger *slog.Logger, run Runner) *OVS {
	if run == nil {
		run = ExecRunner
	}
	return &OVS{
		vsctl:   cfg.OVSVsctl,
		ip:      cfg.IPCmd,
		nsenter: cfg.Nsenter,
		run:     run,
		logger:  logging.Component(logger, "netdev"),
	}
}

func (o *OVS) exec(ctx context.Context, name string, args ...string) error {
	out, err := o.run(ctx, name, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		o.logger.Debug("command failed", "cmd", name, "args", args, "output", msg, "err", err)
		if msg == "" {
			msg = err.Error()
		}
		return errs.New(errs.ExternalTool, "%s %s: %s", name, strings.Join(args, " "), msg)
	}
	return nil
}

func (o *OVS) EnsureBridge(ctx context.Context, name string) error {
	if err := o.exec(ctx, o.vsctl, "--may-exist", "add-br", name); err != nil {
		return err
	}
	return o.exec(ctx, o.ip, "link", "set", name, "up")
}

func (o *OVS) SetAddress(ctx context.Context, bridge string, addr netip.Prefix) error {
	return o.exec(ctx, o.ip, "addr", "replace", addr.String(), "dev", bridge)
}

func (o *OVS) DeleteBridge(ctx context.Context, name string) error {
	return o.exec(ctx, o.vsctl, "--if-exists", "del-br", name)
}

// AttachPort creates a veth pair, plugs the host end into bridge and moves
// the peer into the unit's namespace as eth0.
func (o *OVS) AttachPort(ctx context.Context, bridge string, port PortSpec) error {
	if port.PID <= 0 {
		return errs.New(errs.ExternalTool, "unit %s has no running process to attach", port.Unit)
	}
	host, peer := vethNames(bridge, port.Unit)
	pid := strconv.Itoa(port.PID)

	if err := o.exec(ctx, o.ip, "link", "add", host, "type", "veth", "peer", "name", peer); err != nil {
		return err
	}

	inNS := func(args ...string) []string {
		return append([]string{"-t", pid, "-n", o.ip}, args...)
	}
	steps := [][]string{
		{o.vsctl, "--may-exist", "add-port", bridge, host, "--", "set", "interface", host, "external_ids:container_id=" + port.Unit},
		{o.ip, "link", "set", host, "up"},
		{o.ip, "link", "set", peer, "netns", pid},
		append([]string{o.nsenter}, inNS("link", "set", peer, "name", "eth0")...),
		append([]string{o.nsenter}, inNS("addr", "add", port.Addr.String(), "dev", "eth0")...),
		append([]string{o.nsenter}, inNS("link", "set", "eth0", "up")...),
		append([]string{o.nsenter}, inNS("link", "set", "lo", "up")...),
	}
	if port.Gateway.IsValid() {
		steps = append(steps, append([]string{o.nsenter}, inNS("route", "replace", "default", "via", port.Gateway.String())...))
	}

	for _, step := range steps {
		if err := o.exec(ctx, step[0], step[1:]...); err != nil {
			o.cleanupPort(ctx, bridge, host)
			return err
		}
	}
	o.logger.Info("port attached", "bridge", bridge, "unit", port.Unit, "addr", port.Addr, "iface", host)
	return nil
}

func (o *OVS) DetachPort(ctx context.Context, bridge, unit string) error {
	host, _ := vethNames(bridge, unit)
	if err := o.exec(ctx, o.vsctl, "--if-exists", "del-port", bridge, host); err != nil {
		return err
	}
	// Deleting the host end removes the peer too. It is already gone when
	// the unit's namespace was destroyed first.
	if err := o.exec(ctx, o.ip, "link", "del", host); err != nil && !strings.Contains(err.Error(), "Cannot find device") {
		return err
	}
	return nil
}

func (o *OVS) cleanupPort(ctx context.Context, bridge, host string) {
	_ = o.exec(ctx, o.vsctl, "--if-exists", "del-port", bridge, host)
	_ = o.exec(ctx, o.ip, "link", "del", host)
}
