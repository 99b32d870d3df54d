package allocator

import (
	"context"

	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
)

// Module names.
const (
	NetModule = "netreserve"
	IPModule  = "ipreserve"
)

type netModule struct{ a *Allocator }

type ipModule struct{ a *Allocator }

// Networks returns the netreserve module.
func (a *Allocator) Networks() dispatch.Module { return netModule{a} }

// IPs returns the ipreserve module.
func (a *Allocator) IPs() dispatch.Module { return ipModule{a} }

func (m netModule) Name() string { return NetModule }

func (m netModule) Check(ctx context.Context) error {
	return m.a.db.Migrate(database.SetNetreserve)
}

func (m netModule) Functions() []dispatch.Function {
	a := m.a
	return []dispatch.Function{
		{
			Name: "add_network",
			Desc: "Allocate a network and provision its switch",
			Params: []dispatch.Param{
				dispatch.P("net_addr", dispatch.TypeNetwork),
				dispatch.P("description", dispatch.TypeText),
				dispatch.Opt("switch", dispatch.TypeSimple),
			},
			Mutating: true,
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				return a.AddNetwork(ctx, args.Prefix("net_addr"), args.String("description"), args.String("switch"), false)
			},
		},
		{
			Name: "add_hop_network",
			Desc: "Allocate a router-mediated network with a DHCP range",
			Params: []dispatch.Param{
				dispatch.P("net_addr", dispatch.TypeNetwork),
				dispatch.P("description", dispatch.TypeText),
				dispatch.Opt("switch", dispatch.TypeSimple),
			},
			Mutating: true,
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				return a.AddNetwork(ctx, args.Prefix("net_addr"), args.String("description"), args.String("switch"), true)
			},
		},
		{
			Name:     "remove_network",
			Desc:     "Release a network and tear down its switch",
			Params:   []dispatch.Param{dispatch.P("id", dispatch.TypeInteger)},
			Mutating: true,
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				return nil, a.RemoveNetwork(ctx, args.Int("id"))
			},
		},
		{
			Name:   "get_network",
			Desc:   "Show a network",
			Params: []dispatch.Param{dispatch.P("id", dispatch.TypeInteger)},
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				n, err := a.db.GetNetwork(ctx, args.Int("id"))
				if err != nil {
					return nil, storeErr(err, "Network %d not found", args.Int("id"))
				}
				return n, nil
			},
		},
		{
			Name: "list_networks",
			Desc: "List allocated networks",
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				nets, err := a.db.ListNetworks(ctx)
				if err != nil {
					return nil, errs.Wrap(errs.Internal, err, "store")
				}
				if nets == nil {
					nets = []database.Network{}
				}
				return nets, nil
			},
		},
		{
			Name:   "get_ip_network",
			Desc:   "Find the network containing an IP",
			Params: []dispatch.Param{dispatch.P("ip_addr", dispatch.TypeIP)},
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				return a.NetworkFor(ctx, args.Addr("ip_addr"))
			},
		},
		{
			Name:   "get_ip_switch",
			Desc:   "Find the switch serving an IP",
			Params: []dispatch.Param{dispatch.P("ip_addr", dispatch.TypeIP)},
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				n, err := a.NetworkFor(ctx, args.Addr("ip_addr"))
				if err != nil {
					return nil, err
				}
				return n.Switch, nil
			},
		},
		{
			Name:   "get_network_by_switch",
			Desc:   "Find the network bound to a switch",
			Params: []dispatch.Param{dispatch.P("switch", dispatch.TypeSimple)},
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				n, err := a.db.NetworkBySwitch(ctx, args.String("switch"))
				if err != nil {
					return nil, storeErr(err, "No network uses switch '%s'", args.String("switch"))
				}
				return n, nil
			},
		},
	}
}

func (m ipModule) Name() string { return IPModule }

// Check migrates the reservation table and re-provisions switches that
// drifted while labnet was down.
func (m ipModule) Check(ctx context.Context) error {
	if err := m.a.db.Migrate(database.SetIPReserve); err != nil {
		return err
	}
	m.a.SelfHeal(ctx)
	return nil
}

func (m ipModule) Functions() []dispatch.Function {
	a := m.a
	return []dispatch.Function{
		{
			Name: "add_ip",
			Desc: "Reserve an IP inside an allocated network",
			Params: []dispatch.Param{
				dispatch.P("ip_addr", dispatch.TypeIP),
				dispatch.P("description", dispatch.TypeText),
			},
			Mutating: true,
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				return a.AddIP(ctx, args.Addr("ip_addr"), args.String("description"))
			},
		},
		{
			Name:     "remove_ip",
			Desc:     "Release a reserved IP",
			Params:   []dispatch.Param{dispatch.P("ip_addr", dispatch.TypeIP)},
			Mutating: true,
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				return nil, a.RemoveIP(ctx, args.Addr("ip_addr"))
			},
		},
		{
			Name:   "get_ip",
			Desc:   "Show a reservation",
			Params: []dispatch.Param{dispatch.P("ip_addr", dispatch.TypeIP)},
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				r, err := a.db.GetIP(ctx, args.Addr("ip_addr"))
				if err != nil {
					return nil, storeErr(err, "IP %s is not allocated", args.Addr("ip_addr"))
				}
				return r, nil
			},
		},
		{
			Name: "list_ips",
			Desc: "List reserved IPs",
			Run: func(ctx context.Context, args dispatch.Args) (any, error) {
				ips, err := a.db.ListIPs(ctx)
				if err != nil {
					return nil, errs.Wrap(errs.Internal, err, "store")
				}
				if ips == nil {
					ips = []database.IPReservation{}
				}
				return ips, nil
			},
		},
	}
}
