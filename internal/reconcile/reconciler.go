// Package reconcile tears kernel state back down and compares declared
// topology against what the kernel actually holds. Teardown is best effort:
// every object is attempted even when earlier deletions fail, an object
// that is already gone counts as success, and failures are aggregated
// rather than aborting the sweep.
package reconcile

import (
	"errors"
	"fmt"

	"grimm.is/vpcsim/internal/logging"
	"grimm.is/vpcsim/internal/metrics"
	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/topology"
)

// Reconciler removes kernel objects for declared entities and reports drift
// between the store and the kernel.
type Reconciler struct {
	adapter netops.Adapter
	store   *topology.Store
	namer   netops.Namer
	logger  *logging.Logger
}

// New creates a Reconciler.
func New(adapter netops.Adapter, store *topology.Store, namer netops.Namer, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		adapter: adapter,
		store:   store,
		namer:   namer,
		logger:  logger.WithComponent("reconcile"),
	}
}

// deleteLink removes a link, treating an already-absent link as success.
func (r *Reconciler) deleteLink(name string) error {
	if err := r.adapter.DeleteLink(name); !netops.IsBenignDelete(err) {
		return err
	}
	return nil
}

// teardownSubnet removes a subnet's kernel objects: the host-side veth (its
// namespace peer goes with it), the namespace (its filter table goes with
// it) and the gateway address held by the VPC bridge.
func (r *Reconciler) teardownSubnet(sub *topology.Subnet) error {
	var errs []error

	if err := r.deleteLink(r.namer.VethHost(sub.VPC, sub.Name)); err != nil {
		errs = append(errs, fmt.Errorf("subnet %s/%s veth: %w", sub.VPC, sub.Name, err))
	}

	ns := r.namer.Namespace(sub.VPC, sub.Name)
	if err := r.adapter.DeleteNamespace(ns); !netops.IsBenignDelete(err) {
		errs = append(errs, fmt.Errorf("subnet %s/%s namespace: %w", sub.VPC, sub.Name, err))
	}

	if gw, err := sub.GatewayCIDR(); err == nil {
		err := r.adapter.RemoveAddress("", r.namer.Bridge(sub.VPC), gw)
		if !netops.IsBenignDelete(err) {
			errs = append(errs, fmt.Errorf("subnet %s/%s gateway address: %w", sub.VPC, sub.Name, err))
		}
	}

	return errors.Join(errs...)
}

// teardownPeering removes the veth link joining two VPC bridges.
func (r *Reconciler) teardownPeering(p *topology.Peering) error {
	endA, _ := r.namer.PeeringVeths(p.A, p.B)
	if err := r.deleteLink(endA); err != nil {
		return fmt.Errorf("peering %s<->%s: %w", p.A, p.B, err)
	}
	return nil
}

// RemovePeering deletes a single peering's veth link and its declaration.
func (r *Reconciler) RemovePeering(a, b string) error {
	var found *topology.Peering
	for _, p := range r.store.ListPeerings() {
		if (p.A == a && p.B == b) || (p.A == b && p.B == a) {
			found = p
			break
		}
	}
	if found == nil {
		return topology.NewValidationError("peering-exists",
			"no peering declared between %q and %q", a, b)
	}

	r.store.SetPeeringState(found.A, found.B, topology.StateDeprovisioning)
	if err := r.teardownPeering(found); err != nil {
		return err
	}
	return r.store.RemovePeering(found.A, found.B)
}

// TeardownVPC removes one VPC and everything hanging off it: peerings that
// reference it, its subnets, its bridge, and finally the store entries. The
// store entry survives a partial kernel failure so a later cleanup can
// retry.
func (r *Reconciler) TeardownVPC(name string) error {
	v, ok := r.store.GetVPC(name)
	if !ok {
		return topology.NewValidationError("vpc-exists", "VPC %q is not declared", name)
	}

	r.store.SetVPCState(name, topology.StateDeprovisioning)
	r.logger.Info("tearing down vpc", "name", name)

	var errs []error
	for _, p := range r.store.PeeringsOf(name) {
		if err := r.teardownPeering(p); err != nil {
			errs = append(errs, err)
		} else {
			r.store.RemovePeering(p.A, p.B)
		}
	}
	for _, sub := range r.store.ListSubnets(name) {
		if err := r.teardownSubnet(sub); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		bridge := r.namer.Bridge(v.Name)
		if err := r.adapter.DeleteBridge(bridge); !netops.IsBenignDelete(err) {
			errs = append(errs, fmt.Errorf("vpc %s bridge: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("teardown vpc %s: %w", name, errors.Join(errs...))
	}

	r.store.RemoveVPC(name)
	r.logger.Info("vpc torn down", "name", name)
	return nil
}

// CleanupAll removes every declared entity's kernel objects in reverse
// dependency order: peerings, then subnets, then bridges. Every object is
// attempted regardless of earlier failures; the aggregate error reports
// everything that could not be removed.
func (r *Reconciler) CleanupAll() error {
	metrics.Get().CleanupRuns.Inc()
	r.logger.Info("cleaning up all managed objects")

	var errs []error

	for _, p := range r.store.ListPeerings() {
		r.store.SetPeeringState(p.A, p.B, topology.StateDeprovisioning)
		if err := r.teardownPeering(p); err != nil {
			errs = append(errs, err)
		} else {
			r.store.RemovePeering(p.A, p.B)
		}
	}

	for _, v := range r.store.ListVPCs() {
		r.store.SetVPCState(v.Name, topology.StateDeprovisioning)
		failed := false
		for _, sub := range r.store.ListSubnets(v.Name) {
			if err := r.teardownSubnet(sub); err != nil {
				errs = append(errs, err)
				failed = true
			} else {
				r.store.RemoveSubnet(v.Name, sub.Name)
			}
		}
		if err := r.adapter.DeleteBridge(r.namer.Bridge(v.Name)); !netops.IsBenignDelete(err) {
			errs = append(errs, fmt.Errorf("vpc %s bridge: %w", v.Name, err))
			failed = true
		}
		if !failed {
			r.store.RemoveVPC(v.Name)
		}
	}

	if len(errs) > 0 {
		metrics.Get().CleanupFailures.Inc()
		return fmt.Errorf("cleanup: %w", errors.Join(errs...))
	}
	r.logger.Info("cleanup complete")
	return nil
}
