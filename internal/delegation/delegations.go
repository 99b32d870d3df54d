package delegation

import (
	"context"
	"errors"
	"net/netip"

	"github.com/miekg/dns"

	"github.com/jroosing/labnet/internal/compensate"
	"github.com/jroosing/labnet/internal/database"
	"github.com/jroosing/labnet/internal/errs"
)

// glue is the pair of records a parent zone carries for a delegated name.
type glue struct {
	fqdn string // absolute
	ns   string // absolute
	addr string
}

func glueFor(fqdn string, addr netip.Addr) glue {
	f := dns.Fqdn(normalizeDomain(fqdn))
	return glue{fqdn: f, ns: "ns1." + f, addr: addr.String()}
}

// installGlue writes the NS and A glue for g into zoneName on parent.
func (e *Engine) installGlue(ctx context.Context, parent database.DNSServer, zoneName string, g glue, undo *compensate.Stack) error {
	// Undo steps go first: a failed confirm leaves the record written.
	undo.Push("NS glue", func(ctx context.Context) error {
		return e.removeIfPresent(ctx, parent, zoneName, "NS", g.fqdn, g.ns)
	})
	if _, err := e.AddRecord(ctx, parent.ID, zoneName, dirForward, "NS", g.fqdn, g.ns); err != nil {
		return err
	}
	undo.Push("A glue", func(ctx context.Context) error {
		return e.removeIfPresent(ctx, parent, zoneName, "A", g.ns, g.addr)
	})
	if _, err := e.AddRecord(ctx, parent.ID, zoneName, dirForward, "A", g.ns, g.addr); err != nil {
		return err
	}
	return nil
}

// removeGlue deletes exactly the records installGlue wrote.
func (e *Engine) removeGlue(ctx context.Context, parent database.DNSServer, zoneName string, g glue) error {
	if err := e.removeIfPresent(ctx, parent, zoneName, "A", g.ns, g.addr); err != nil {
		return err
	}
	return e.removeIfPresent(ctx, parent, zoneName, "NS", g.fqdn, g.ns)
}

// delegate installs a delegation of fqdn to addr in the zone of parent.
// For server-backed kinds it first creates the child server and its zone.
func (e *Engine) delegate(ctx context.Context, kind, fqdn string, addr netip.Addr, parent database.DNSServer) (database.Delegation, error) {
	fqdn = normalizeDomain(fqdn)
	if fqdn == "." || fqdn == normalizeDomain(parent.Domain) {
		return database.Delegation{}, errs.New(errs.Validation, "%s cannot be delegated from %s", fqdn, parent.Domain)
	}

	var undo compensate.Stack
	fail := func(err error) (database.Delegation, error) {
		if rerr := undo.Rollback(ctx, e.logger); rerr != nil {
			e.logger.Error("delegation rollback incomplete", "fqdn", fqdn, "err", rerr)
		}
		return database.Delegation{}, err
	}

	d := database.Delegation{Kind: kind, FQDN: fqdn, NSAddr: addr, ParentID: parent.ID}
	if kind != database.DelegationExternal {
		child, err := e.AddServer(ctx, addr, kind+" server for "+fqdn, fqdn)
		if err != nil {
			return database.Delegation{}, err
		}
		undo.Push("child server", func(ctx context.Context) error { return e.RemoveServer(ctx, child.ID) })
		if _, err := e.AddZone(ctx, child.ID, fqdn, dirForward); err != nil {
			return fail(err)
		}
		d.ChildID = child.ID
	}

	zoneName, err := e.zoneFor(ctx, parent, fqdn, dirForward)
	if err != nil {
		return fail(err)
	}
	created, err := e.ensureZone(ctx, parent, zoneName, dirForward, true)
	if err != nil {
		return fail(err)
	}
	if created {
		undo.Push("parent zone", func(ctx context.Context) error {
			return e.RemoveZone(ctx, parent.ID, zoneName, dirForward)
		})
	}
	if err := e.installGlue(ctx, parent, zoneName, glueFor(fqdn, addr), &undo); err != nil {
		return fail(err)
	}

	d.ID, err = e.db.InsertDelegation(ctx, d)
	if err != nil {
		return fail(errs.Wrap(errs.Internal, err, "store"))
	}
	e.logger.Info("delegation added", "id", d.ID, "kind", kind, "fqdn", fqdn, "parent", parent.ID, "child", d.ChildID)
	return d, nil
}

// undelegate removes the glue of d from its parent, deletes the row and,
// for server-backed kinds, the child server.
func (e *Engine) undelegate(ctx context.Context, d database.Delegation) error {
	if d.ChildID != 0 {
		all, err := e.db.ListDelegations(ctx)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "store")
		}
		for _, other := range all {
			if other.ParentID == d.ChildID {
				return errs.New(errs.Conflict, "DNS server %d still delegates %s", d.ChildID, other.FQDN)
			}
		}
	}
	parent, err := e.server(ctx, d.ParentID)
	if err != nil {
		return err
	}
	zoneName, err := e.zoneFor(ctx, parent, d.FQDN, dirForward)
	if err != nil {
		return err
	}
	if err := e.removeGlue(ctx, parent, zoneName, glueFor(d.FQDN, d.NSAddr)); err != nil {
		return err
	}
	if err := e.db.DeleteDelegation(ctx, d.ID); err != nil {
		return storeErr(err, "Delegation %d not found", d.ID)
	}
	if d.ChildID != 0 {
		if err := e.RemoveServer(ctx, d.ChildID); err != nil {
			return err
		}
	}
	e.logger.Info("delegation removed", "id", d.ID, "kind", d.Kind, "fqdn", d.FQDN)
	return nil
}

// rejectTaken fails when a server already owns fqdn.
func (e *Engine) rejectTaken(ctx context.Context, fqdn string) error {
	_, err := e.db.DNSServerByDomain(ctx, normalizeDomain(fqdn))
	switch {
	case err == nil:
		return errs.New(errs.Conflict, "Domain already exists")
	case errors.Is(err, database.ErrNotFound):
		return nil
	default:
		return errs.Wrap(errs.Internal, err, "store")
	}
}

// SmartAddSubdomainServer creates a server for fqdn and delegates fqdn to
// it from the server currently authoritative for it.
func (e *Engine) SmartAddSubdomainServer(ctx context.Context, fqdn string, addr netip.Addr) (database.Delegation, error) {
	if err := e.rejectTaken(ctx, fqdn); err != nil {
		return database.Delegation{}, err
	}
	parent, err := e.authority(ctx, fqdn)
	if err != nil {
		return database.Delegation{}, err
	}
	return e.delegate(ctx, database.DelegationSubdomain, fqdn, addr, parent)
}

// SmartAddRootServer creates a server for a top-level domain and
// delegates it from the root server.
func (e *Engine) SmartAddRootServer(ctx context.Context, root string, addr netip.Addr) (database.Delegation, error) {
	if err := e.rejectTaken(ctx, root); err != nil {
		return database.Delegation{}, err
	}
	parent, err := e.db.DNSServerByDomain(ctx, ".")
	if err != nil {
		return database.Delegation{}, storeErr(err, "No root DNS server exists")
	}
	return e.delegate(ctx, database.DelegationRoot, root, addr, parent)
}

// SmartAddExternalSubdomain delegates fqdn to a name server labnet does
// not manage.
func (e *Engine) SmartAddExternalSubdomain(ctx context.Context, fqdn string, addr netip.Addr) (database.Delegation, error) {
	if err := e.rejectTaken(ctx, fqdn); err != nil {
		return database.Delegation{}, err
	}
	parent, err := e.authority(ctx, fqdn)
	if err != nil {
		return database.Delegation{}, err
	}
	return e.delegate(ctx, database.DelegationExternal, fqdn, addr, parent)
}

// removeByChild removes the delegation of kind whose child server is id.
func (e *Engine) removeByChild(ctx context.Context, kind string, id int64) error {
	d, err := e.db.DelegationByChild(ctx, kind, id)
	if err != nil {
		return storeErr(err, "DNS server %d is not a %s server", id, kind)
	}
	return e.undelegate(ctx, d)
}

// SmartRemoveSubdomainServer undoes SmartAddSubdomainServer for child
// server id.
func (e *Engine) SmartRemoveSubdomainServer(ctx context.Context, id int64) error {
	return e.removeByChild(ctx, database.DelegationSubdomain, id)
}

// SmartRemoveRootServer undoes SmartAddRootServer for child server id.
func (e *Engine) SmartRemoveRootServer(ctx context.Context, id int64) error {
	return e.removeByChild(ctx, database.DelegationRoot, id)
}

// SmartRemoveExternalSubdomain removes external delegation id.
func (e *Engine) SmartRemoveExternalSubdomain(ctx context.Context, id int64) error {
	d, err := e.db.GetDelegation(ctx, id)
	if err != nil {
		return storeErr(err, "Delegation %d not found", id)
	}
	if d.Kind != database.DelegationExternal {
		return errs.New(errs.Validation, "Delegation %d is a %s delegation", id, d.Kind)
	}
	return e.undelegate(ctx, d)
}

// ListDelegations returns every delegation ordered by id.
func (e *Engine) ListDelegations(ctx context.Context) ([]database.Delegation, error) {
	list, err := e.db.ListDelegations(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "store")
	}
	if list == nil {
		list = []database.Delegation{}
	}
	return list, nil
}
