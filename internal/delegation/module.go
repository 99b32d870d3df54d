package delegation

import (
	"context"
	"os"

	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
)

var directions = []string{"fwd", "rev", "forward", "reverse"}

func (e *Engine) Name() string { return ModuleName }

// Check migrates the dns tables and creates the server directory root.
func (e *Engine) Check(ctx context.Context) error {
	if err := e.db.Migrate(database.SetDNS); err != nil {
		return err
	}
	if err := os.MkdirAll(e.baseDir, 0o755); err != nil {
		return errs.Wrap(errs.Internal, err, "create %s", e.baseDir)
	}
	return nil
}

// Resources reports every server's unit state.
func (e *Engine) Resources(ctx context.Context) ([]dispatch.Resource, error) {
	list, err := e.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.Resource, 0, len(list))
	for _, s := range list {
		out = append(out, dispatch.Resource{ID: s.ID, Name: s.Domain, State: s.State})
	}
	return out, nil
}

func (e *Engine) Lifecycle() (start, stop string) {
	return "start_server", "stop_server"
}

func ok(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return true, nil
}

var (
	pID        = dispatch.P("id", dispatch.TypeInteger)
	pIP        = dispatch.P("ip_addr", dispatch.TypeIP)
	pFQDN      = dispatch.P("fqdn", dispatch.TypeText)
	pZone      = dispatch.P("zone", dispatch.TypeText)
	pDirection = dispatch.Enum("direction", directions...)
	pType      = dispatch.P("type", dispatch.TypeSimple)
	pName      = dispatch.P("name", dispatch.TypeText)
	pValue     = dispatch.P("value", dispatch.TypeAdvText)
)

func (e *Engine) Functions() []dispatch.Function {
	return []dispatch.Function{
		{
			Name: "add_server",
			Desc: "Add a DNS server",
			Params: []dispatch.Param{
				pIP,
				dispatch.P("description", dispatch.TypeText),
				dispatch.P("domain", dispatch.TypeText),
			},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.AddServer(ctx, a.Addr("ip_addr"), a.String("description"), a.String("domain"))
			},
		},
		{
			Name:     "remove_server",
			Desc:     "Remove a DNS server",
			Params:   []dispatch.Param{pID},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.RemoveServer(ctx, a.Int("id")))
			},
		},
		{
			Name:     "start_server",
			Desc:     "Start a DNS server",
			Params:   []dispatch.Param{pID},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.StartServer(ctx, a.Int("id")))
			},
		},
		{
			Name:     "stop_server",
			Desc:     "Stop a DNS server",
			Params:   []dispatch.Param{pID},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.StopServer(ctx, a.Int("id")))
			},
		},
		{
			Name:   "get_server",
			Desc:   "Get info on a DNS server",
			Params: []dispatch.Param{pID},
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.GetServer(ctx, a.Int("id"))
			},
		},
		{
			Name: "list_servers",
			Desc: "View all DNS servers",
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.ListServers(ctx)
			},
		},
		{
			Name:     "add_zone",
			Desc:     "Add a DNS zone",
			Params:   []dispatch.Param{pID, pZone, pDirection},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.AddZone(ctx, a.Int("id"), a.String("zone"), a.String("direction"))
			},
		},
		{
			Name:     "remove_zone",
			Desc:     "Remove a DNS zone",
			Params:   []dispatch.Param{pID, pZone, pDirection},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.RemoveZone(ctx, a.Int("id"), a.String("zone"), a.String("direction")))
			},
		},
		{
			Name:   "list_zones",
			Desc:   "List the zones of a DNS server",
			Params: []dispatch.Param{pID},
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.ListZones(ctx, a.Int("id"))
			},
		},
		{
			Name:   "list_records",
			Desc:   "List the records of a zone",
			Params: []dispatch.Param{pID, pZone, pDirection},
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.ListRecords(ctx, a.Int("id"), a.String("zone"), a.String("direction"))
			},
		},
		{
			Name:     "add_record",
			Desc:     "Add a record to a DNS server",
			Params:   []dispatch.Param{pID, pZone, pDirection, pType, pName, pValue},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.AddRecord(ctx, a.Int("id"), a.String("zone"), a.String("direction"), a.String("type"), a.String("name"), a.String("value"))
			},
		},
		{
			Name:     "remove_record",
			Desc:     "Remove a record from a DNS server",
			Params:   []dispatch.Param{pID, pZone, pDirection, pType, pName, pValue},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.RemoveRecord(ctx, a.Int("id"), a.String("zone"), a.String("direction"), a.String("type"), a.String("name"), a.String("value"))
			},
		},
		{
			Name: "smart_add_record",
			Desc: "Add a record on the server authoritative for its name",
			Params: []dispatch.Param{
				pFQDN, pType, pValue, pDirection,
				dispatch.Opt("autocreate", dispatch.TypeBool),
			},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.SmartAddRecord(ctx, a.String("fqdn"), a.String("type"), a.String("value"), a.String("direction"), a.Bool("autocreate"))
			},
		},
		{
			Name:     "smart_remove_record",
			Desc:     "Remove a record from the server authoritative for its name",
			Params:   []dispatch.Param{pFQDN, pType, pValue, pDirection},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.SmartRemoveRecord(ctx, a.String("fqdn"), a.String("type"), a.String("value"), a.String("direction"))
			},
		},
		{
			Name:     "add_host",
			Desc:     "Add forward and reverse records for a host",
			Params:   []dispatch.Param{pFQDN, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.AddHost(ctx, a.String("fqdn"), a.Addr("ip_addr"))
			},
		},
		{
			Name:     "remove_host",
			Desc:     "Remove the forward and reverse records of a host",
			Params:   []dispatch.Param{pFQDN, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.RemoveHost(ctx, a.String("fqdn"), a.Addr("ip_addr")))
			},
		},
		{
			Name:     "smart_add_subdomain_server",
			Desc:     "Create a server for a subdomain and delegate to it",
			Params:   []dispatch.Param{pFQDN, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.SmartAddSubdomainServer(ctx, a.String("fqdn"), a.Addr("ip_addr"))
			},
		},
		{
			Name:     "smart_remove_subdomain_server",
			Desc:     "Remove a subdomain server and its delegation",
			Params:   []dispatch.Param{pID},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.SmartRemoveSubdomainServer(ctx, a.Int("id")))
			},
		},
		{
			Name:     "smart_add_root_server",
			Desc:     "Create a server for a top-level domain and delegate to it from the root",
			Params:   []dispatch.Param{dispatch.P("root", dispatch.TypeText), pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.SmartAddRootServer(ctx, a.String("root"), a.Addr("ip_addr"))
			},
		},
		{
			Name:     "smart_remove_root_server",
			Desc:     "Remove a top-level domain server and its delegation",
			Params:   []dispatch.Param{pID},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.SmartRemoveRootServer(ctx, a.Int("id")))
			},
		},
		{
			Name:     "smart_add_external_subdomain",
			Desc:     "Delegate a subdomain to an unmanaged name server",
			Params:   []dispatch.Param{pFQDN, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.SmartAddExternalSubdomain(ctx, a.String("fqdn"), a.Addr("ip_addr"))
			},
		},
		{
			Name:     "smart_remove_external_subdomain",
			Desc:     "Remove an external delegation",
			Params:   []dispatch.Param{pID},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.SmartRemoveExternalSubdomain(ctx, a.Int("id")))
			},
		},
		{
			Name: "list_delegations",
			Desc: "List delegations",
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.ListDelegations(ctx)
			},
		},
		{
			Name:     "add_override",
			Desc:     "Force a name to resolve to an address",
			Params:   []dispatch.Param{pFQDN, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.AddOverride(ctx, a.String("fqdn"), a.Addr("ip_addr"))
			},
		},
		{
			Name:     "remove_override",
			Desc:     "Remove a name override",
			Params:   []dispatch.Param{pFQDN, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.RemoveOverride(ctx, a.String("fqdn"), a.Addr("ip_addr")))
			},
		},
		{
			Name: "list_overrides",
			Desc: "List name overrides",
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.ListOverrides(ctx)
			},
		},
		{
			Name:     "add_forwarder",
			Desc:     "Add an upstream resolver to a DNS server",
			Params:   []dispatch.Param{pID, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.AddForwarder(ctx, a.Int("id"), a.Addr("ip_addr")))
			},
		},
		{
			Name:     "remove_forwarder",
			Desc:     "Remove an upstream resolver from a DNS server",
			Params:   []dispatch.Param{pID, pIP},
			Mutating: true,
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return ok(e.RemoveForwarder(ctx, a.Int("id"), a.Addr("ip_addr")))
			},
		},
		{
			Name:   "list_forwarders",
			Desc:   "List the upstream resolvers of a DNS server",
			Params: []dispatch.Param{pID},
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.ListForwarders(ctx, a.Int("id"))
			},
		},
		{
			Name: "query",
			Desc: "Ask a DNS server's daemon for a name",
			Params: []dispatch.Param{
				pID,
				dispatch.P("name", dispatch.TypeText),
				dispatch.P("type", dispatch.TypeSimple),
			},
			Run: func(ctx context.Context, a dispatch.Args) (any, error) {
				return e.Query(ctx, a.Int("id"), a.String("name"), a.String("type"))
			},
		},
	}
}

