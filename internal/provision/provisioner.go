// Package provision turns Topology Store entries into kernel objects. Every
// multi-step sequence is a step list: creation order is namespace, link
// objects, addresses, routes; a failure part way triggers reverse-order
// rollback of the completed steps and removal of the store entry, so a
// retry starts clean.
package provision

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/vpcsim/internal/logging"
	"grimm.is/vpcsim/internal/metrics"
	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/topology"
)

// Provisioner maps declared entities onto kernel objects. All operations are
// serialized through one mutex: the kernel's namespace/bridge state is a
// single shared mutable resource.
type Provisioner struct {
	mu       sync.Mutex
	adapter  netops.Adapter
	store    *topology.Store
	namer    netops.Namer
	linkWait time.Duration
	logger   *logging.Logger
}

// New creates a Provisioner.
func New(adapter netops.Adapter, store *topology.Store, namer netops.Namer, linkWait time.Duration, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Provisioner{
		adapter:  adapter,
		store:    store,
		namer:    namer,
		linkWait: linkWait,
		logger:   logger.WithComponent("provisioner"),
	}
}

// step is one kernel mutation with its inverse. Steps whose effect is
// subsumed by an earlier undo (deleting a veth removes its peer) have a nil
// undo.
type step struct {
	name string
	do   func() error
	undo func() error
}

// runSteps executes steps in order. On failure it undoes the completed
// steps in exact reverse order and returns the original failure.
func (p *Provisioner) runSteps(opID, entity string, steps []step) error {
	var done []step
	for _, st := range steps {
		err := st.do()
		if netops.IsBenignCreate(err) {
			if err != nil {
				p.logger.Debug("object already exists, adopting", "op", opID, "entity", entity, "step", st.name)
			}
			done = append(done, st)
			continue
		}
		p.logger.Error("provisioning step failed, rolling back",
			"op", opID, "entity", entity, "step", st.name, "error", err)
		p.rollback(opID, entity, done)
		return fmt.Errorf("%s: step %s: %w", entity, st.name, err)
	}
	return nil
}

// rollback undoes completed steps newest-first. An object that vanished
// between its create and the rollback is a real inconsistency, so it is
// logged loudly, but the remaining undos still run.
func (p *Provisioner) rollback(opID, entity string, done []step) {
	metrics.Get().RollbackTotal.WithLabelValues(entity).Inc()
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(); err != nil {
			if errors.Is(err, netops.ErrNotFound) {
				p.logger.Error("rollback found object already gone; kernel state was mutated externally",
					"op", opID, "entity", entity, "step", st.name, "error", err)
			} else {
				p.logger.Error("rollback step failed",
					"op", opID, "entity", entity, "step", st.name, "error", err)
			}
		}
	}
}

// CreateVPC declares the VPC and creates its bridge. If the bridge cannot
// be created the declaration is removed so a retry starts clean. Re-creating
// a VPC with the CIDR it already has is a no-op; the same name with a
// different CIDR is a validation error.
func (p *Provisioner) CreateVPC(name, cidr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.store.GetVPC(name); ok && existing.CIDR == cidr {
		p.logger.Info("vpc already exists, skipping", "name", name, "cidr", cidr)
		metrics.Get().ProvisionTotal.WithLabelValues("vpc", "noop").Inc()
		return nil
	}

	if _, err := p.store.DeclareVPC(name, cidr); err != nil {
		metrics.Get().ProvisionTotal.WithLabelValues("vpc", "validation-error").Inc()
		return err
	}

	opID := uuid.NewString()
	bridge := p.namer.Bridge(name)
	p.logger.Info("creating vpc", "op", opID, "name", name, "cidr", cidr, "bridge", bridge)

	if err := p.adapter.CreateBridge(bridge); !netops.IsBenignCreate(err) {
		p.store.RemoveVPC(name)
		metrics.Get().ProvisionTotal.WithLabelValues("vpc", "error").Inc()
		return fmt.Errorf("vpc %s: step create-bridge: %w", name, err)
	}

	p.store.SetVPCState(name, topology.StatePresent)
	metrics.Get().ProvisionTotal.WithLabelValues("vpc", "ok").Inc()
	p.logger.Info("vpc created", "op", opID, "name", name)
	return nil
}

// AddSubnet declares the subnet and provisions its namespace, veth pair,
// addresses and default route. Any step failing rolls back this subnet
// only, never the whole VPC.
func (p *Provisioner) AddSubnet(vpcName, name, cidr string, kind topology.SubnetKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, err := p.store.DeclareSubnet(vpcName, name, cidr, kind)
	if err != nil {
		metrics.Get().ProvisionTotal.WithLabelValues("subnet", "validation-error").Inc()
		return err
	}

	gatewayCIDR, err := sub.GatewayCIDR()
	if err == nil {
		_, err = sub.HostCIDR()
	}
	if err != nil {
		p.store.RemoveSubnet(vpcName, name)
		metrics.Get().ProvisionTotal.WithLabelValues("subnet", "validation-error").Inc()
		return topology.NewValidationError("subnet-cidr", "%v", err)
	}
	hostCIDR, _ := sub.HostCIDR()
	gatewayIP, _ := sub.GatewayIP()

	opID := uuid.NewString()
	ns := p.namer.Namespace(vpcName, name)
	vethHost := p.namer.VethHost(vpcName, name)
	vethPeer := p.namer.VethPeer(vpcName, name)
	bridge := p.namer.Bridge(vpcName)
	entity := fmt.Sprintf("subnet %s/%s", vpcName, name)

	p.logger.Info("adding subnet",
		"op", opID, "vpc", vpcName, "name", name, "cidr", cidr, "kind", kind, "namespace", ns)

	steps := []step{
		{
			name: "create-namespace",
			do:   func() error { return p.adapter.CreateNamespace(ns) },
			undo: func() error { return p.adapter.DeleteNamespace(ns) },
		},
		{
			name: "create-veth",
			do:   func() error { return p.adapter.CreateVethPair(vethHost, vethPeer) },
			undo: func() error { return p.adapter.DeleteLink(vethHost) },
		},
		{
			// Deleting the host end during rollback removes the moved
			// peer with it.
			name: "move-veth-to-namespace",
			do:   func() error { return p.adapter.MoveLinkToNamespace(vethPeer, ns) },
		},
		{
			name: "attach-to-bridge",
			do:   func() error { return p.adapter.AttachToBridge(vethHost, bridge) },
		},
		{
			name: "assign-gateway-address",
			do:   func() error { return p.adapter.AssignAddress("", bridge, gatewayCIDR) },
			undo: func() error { return p.adapter.RemoveAddress("", bridge, gatewayCIDR) },
		},
		{
			name: "assign-subnet-address",
			do:   func() error { return p.adapter.AssignAddress(ns, vethPeer, hostCIDR) },
		},
		{
			name: "host-link-up",
			do:   func() error { return p.adapter.SetLinkUp("", vethHost) },
		},
		{
			name: "namespace-link-up",
			do:   func() error { return p.adapter.SetLinkUp(ns, vethPeer) },
		},
		{
			name: "wait-link-up",
			do:   func() error { return p.adapter.WaitLinkUp(ns, vethPeer, p.linkWait) },
		},
		{
			name: "add-default-route",
			do:   func() error { return p.adapter.AddDefaultRoute(ns, gatewayIP.String()) },
		},
	}

	if err := p.runSteps(opID, entity, steps); err != nil {
		p.store.RemoveSubnet(vpcName, name)
		metrics.Get().ProvisionTotal.WithLabelValues("subnet", "error").Inc()
		return err
	}

	p.store.SetSubnetState(vpcName, name, topology.StatePresent)
	metrics.Get().ProvisionTotal.WithLabelValues("subnet", "ok").Inc()
	p.logger.Info("subnet added", "op", opID, "vpc", vpcName, "name", name)
	return nil
}

// PeerVPCs declares the peering and links the two VPC bridges with a veth
// pair. The pair is unordered and only one link is ever created for it.
func (p *Provisioner) PeerVPCs(a, b string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	peering, err := p.store.DeclarePeering(a, b)
	if err != nil {
		metrics.Get().ProvisionTotal.WithLabelValues("peering", "validation-error").Inc()
		return err
	}

	opID := uuid.NewString()
	endA, endB := p.namer.PeeringVeths(peering.A, peering.B)
	bridgeA := p.namer.Bridge(peering.A)
	bridgeB := p.namer.Bridge(peering.B)
	entity := fmt.Sprintf("peering %s<->%s", peering.A, peering.B)

	p.logger.Info("peering vpcs", "op", opID, "a", peering.A, "b", peering.B)

	steps := []step{
		{
			name: "create-peering-veth",
			do:   func() error { return p.adapter.CreateVethPair(endA, endB) },
			undo: func() error { return p.adapter.DeleteLink(endA) },
		},
		{
			name: "attach-end-a",
			do:   func() error { return p.adapter.AttachToBridge(endA, bridgeA) },
		},
		{
			name: "attach-end-b",
			do:   func() error { return p.adapter.AttachToBridge(endB, bridgeB) },
		},
		{
			name: "end-a-up",
			do:   func() error { return p.adapter.SetLinkUp("", endA) },
		},
		{
			name: "end-b-up",
			do:   func() error { return p.adapter.SetLinkUp("", endB) },
		},
	}

	if err := p.runSteps(opID, entity, steps); err != nil {
		p.store.RemovePeering(peering.A, peering.B)
		metrics.Get().ProvisionTotal.WithLabelValues("peering", "error").Inc()
		return err
	}

	p.store.SetPeeringState(peering.A, peering.B, topology.StatePresent)
	metrics.Get().ProvisionTotal.WithLabelValues("peering", "ok").Inc()
	p.logger.Info("vpcs peered", "op", opID, "a", peering.A, "b", peering.B)
	return nil
}

// ApplyManifest provisions a whole declared topology in document order:
// VPCs, then each VPC's subnets, then peerings.
func (p *Provisioner) ApplyManifest(m *topology.Manifest) error {
	for _, v := range m.VPCs {
		if err := p.CreateVPC(v.Name, v.CIDR); err != nil {
			return err
		}
		for _, sub := range v.Subnets {
			kind, err := topology.ParseSubnetKind(sub.Kind)
			if err != nil {
				return err
			}
			if err := p.AddSubnet(v.Name, sub.Name, sub.CIDR, kind); err != nil {
				return err
			}
		}
	}
	for _, peer := range m.Peerings {
		if err := p.PeerVPCs(peer.A, peer.B); err != nil {
			return err
		}
	}
	return nil
}
