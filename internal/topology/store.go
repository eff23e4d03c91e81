package topology

import (
	"sort"
	"sync"

	"grimm.is/vpcsim/internal/logging"
	"grimm.is/vpcsim/internal/validation"
)

// Store is the in-memory registry of declared entities, optionally mirrored
// to SQLite. All validation happens here, synchronously, before the caller
// issues any kernel operation.
type Store struct {
	mu       sync.RWMutex
	vpcs     map[string]*VPC
	peerings map[string]*Peering
	persist  persister
	logger   *logging.Logger
}

// persister mirrors store mutations to durable storage. The no-op persister
// keeps the store purely in-memory.
type persister interface {
	save(kind, name string, v any) error
	remove(kind, name string) error
	close() error
}

type nopPersister struct{}

func (nopPersister) save(string, string, any) error { return nil }
func (nopPersister) remove(string, string) error    { return nil }
func (nopPersister) close() error                   { return nil }

// NewStore creates an in-memory store.
func NewStore(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		vpcs:     make(map[string]*VPC),
		peerings: make(map[string]*Peering),
		persist:  nopPersister{},
		logger:   logger.WithComponent("topology"),
	}
}

// Close releases the persistence backend, if any.
func (s *Store) Close() error {
	return s.persist.close()
}

// DeclareVPC validates and registers a VPC. The returned entity starts in
// the provisioning state.
func (s *Store) DeclareVPC(name, cidr string) (*VPC, error) {
	if err := validation.ValidateIdentifier(name); err != nil {
		return nil, NewValidationError("vpc-name", "%v", err)
	}
	if _, err := validation.ValidateCIDR(cidr); err != nil {
		return nil, NewValidationError("vpc-cidr", "%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vpcs[name]; ok {
		return nil, NewValidationError("vpc-unique", "VPC %q is already declared", name)
	}

	v := &VPC{
		Name:    name,
		CIDR:    cidr,
		State:   StateProvisioning,
		Subnets: make(map[string]*Subnet),
	}
	s.vpcs[name] = v
	if err := s.persist.save("vpc", name, v); err != nil {
		delete(s.vpcs, name)
		return nil, err
	}
	s.logger.Debug("vpc declared", "name", name, "cidr", cidr)
	return v, nil
}

// DeclareSubnet validates and registers a subnet under an existing VPC.
func (s *Store) DeclareSubnet(vpcName, name, cidr string, kind SubnetKind) (*Subnet, error) {
	if err := validation.ValidateIdentifier(name); err != nil {
		return nil, NewValidationError("subnet-name", "%v", err)
	}
	subnetNet, err := validation.ValidateCIDR(cidr)
	if err != nil {
		return nil, NewValidationError("subnet-cidr", "%v", err)
	}
	if kind != KindPublic && kind != KindPrivate {
		return nil, NewValidationError("subnet-kind", "unknown subnet kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vpcs[vpcName]
	if !ok {
		return nil, NewValidationError("vpc-exists", "VPC %q is not declared", vpcName)
	}
	if _, ok := v.Subnets[name]; ok {
		return nil, NewValidationError("subnet-unique", "subnet %q already declared in VPC %q", name, vpcName)
	}

	vpcNet, err := validation.ValidateCIDR(v.CIDR)
	if err != nil {
		return nil, NewValidationError("vpc-cidr", "%v", err)
	}
	if !validation.CIDRContains(vpcNet, subnetNet) {
		return nil, NewValidationError("subnet-containment",
			"subnet CIDR %s is not contained in VPC %q CIDR %s", cidr, vpcName, v.CIDR)
	}
	for _, sibling := range v.Subnets {
		siblingNet, err := validation.ValidateCIDR(sibling.CIDR)
		if err != nil {
			continue
		}
		if validation.CIDROverlaps(subnetNet, siblingNet) {
			return nil, NewValidationError("subnet-overlap",
				"subnet CIDR %s overlaps sibling subnet %q (%s)", cidr, sibling.Name, sibling.CIDR)
		}
	}

	sub := &Subnet{
		VPC:   vpcName,
		Name:  name,
		CIDR:  cidr,
		Kind:  kind,
		State: StateProvisioning,
	}
	v.Subnets[name] = sub
	if err := s.persist.save("vpc", vpcName, v); err != nil {
		delete(v.Subnets, name)
		return nil, err
	}
	s.logger.Debug("subnet declared", "vpc", vpcName, "name", name, "cidr", cidr, "kind", kind)
	return sub, nil
}

// DeclarePeering validates and registers a peering between two existing
// VPCs. The pair is unordered: (a,b) and (b,a) are the same relation.
func (s *Store) DeclarePeering(a, b string) (*Peering, error) {
	if a == b {
		return nil, NewValidationError("peering-distinct", "cannot peer VPC %q with itself", a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{a, b} {
		if _, ok := s.vpcs[name]; !ok {
			return nil, NewValidationError("vpc-exists", "VPC %q is not declared", name)
		}
	}

	ca, cb := peeringKey(a, b)
	p := &Peering{A: ca, B: cb, State: StateProvisioning}
	if _, ok := s.peerings[p.Key()]; ok {
		return nil, NewValidationError("peering-unique", "peering between %q and %q already declared", ca, cb)
	}

	s.peerings[p.Key()] = p
	if err := s.persist.save("peering", p.Key(), p); err != nil {
		delete(s.peerings, p.Key())
		return nil, err
	}
	s.logger.Debug("peering declared", "a", ca, "b", cb)
	return p, nil
}

// RemoveVPC drops a VPC, cascading to its subnets and any peerings that
// reference it.
func (s *Store) RemoveVPC(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vpcs[name]; !ok {
		return NewValidationError("vpc-exists", "VPC %q is not declared", name)
	}
	delete(s.vpcs, name)
	s.persist.remove("vpc", name)
	for key, p := range s.peerings {
		if p.A == name || p.B == name {
			delete(s.peerings, key)
			s.persist.remove("peering", key)
		}
	}
	s.logger.Debug("vpc removed", "name", name)
	return nil
}

// RemoveSubnet drops a single subnet from its VPC.
func (s *Store) RemoveSubnet(vpcName, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vpcs[vpcName]
	if !ok {
		return NewValidationError("vpc-exists", "VPC %q is not declared", vpcName)
	}
	if _, ok := v.Subnets[name]; !ok {
		return NewValidationError("subnet-exists", "subnet %q is not declared in VPC %q", name, vpcName)
	}
	delete(v.Subnets, name)
	return s.persist.save("vpc", vpcName, v)
}

// RemovePeering drops a peering by its unordered pair.
func (s *Store) RemovePeering(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ca, cb := peeringKey(a, b)
	key := ca + "|" + cb
	if _, ok := s.peerings[key]; !ok {
		return NewValidationError("peering-exists", "no peering declared between %q and %q", ca, cb)
	}
	delete(s.peerings, key)
	s.persist.remove("peering", key)
	return nil
}

// GetVPC returns a declared VPC.
func (s *Store) GetVPC(name string) (*VPC, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vpcs[name]
	return v, ok
}

// GetSubnet returns a declared subnet by VPC and subnet name.
func (s *Store) GetSubnet(vpcName, name string) (*Subnet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vpcs[vpcName]
	if !ok {
		return nil, false
	}
	sub, ok := v.Subnets[name]
	return sub, ok
}

// FindSubnet locates a subnet by name alone, for policy documents that name
// only the subnet. Fails if the name is ambiguous across VPCs.
func (s *Store) FindSubnet(name string) (*Subnet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Subnet
	for _, v := range s.vpcs {
		if sub, ok := v.Subnets[name]; ok {
			if found != nil {
				return nil, NewValidationError("subnet-ambiguous",
					"subnet %q exists in both VPC %q and VPC %q; qualify as vpc/subnet", name, found.VPC, sub.VPC)
			}
			found = sub
		}
	}
	if found == nil {
		return nil, NewValidationError("subnet-exists", "subnet %q is not declared", name)
	}
	return found, nil
}

// ListVPCs returns declared VPCs sorted by name.
func (s *Store) ListVPCs() []*VPC {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*VPC, 0, len(s.vpcs))
	for _, v := range s.vpcs {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListSubnets returns a VPC's subnets sorted by name.
func (s *Store) ListSubnets(vpcName string) []*Subnet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vpcs[vpcName]
	if !ok {
		return nil
	}
	out := make([]*Subnet, 0, len(v.Subnets))
	for _, sub := range v.Subnets {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListPeerings returns declared peerings sorted by key.
func (s *Store) ListPeerings() []*Peering {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Peering, 0, len(s.peerings))
	for _, p := range s.peerings {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// PeeringsOf returns peerings referencing the given VPC.
func (s *Store) PeeringsOf(vpcName string) []*Peering {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Peering
	for _, p := range s.peerings {
		if p.A == vpcName || p.B == vpcName {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// SetVPCState transitions a VPC's lifecycle state.
func (s *Store) SetVPCState(name string, state EntityState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vpcs[name]; ok {
		v.State = state
		s.persist.save("vpc", name, v)
	}
}

// SetSubnetState transitions a subnet's lifecycle state.
func (s *Store) SetSubnetState(vpcName, name string, state EntityState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vpcs[vpcName]; ok {
		if sub, ok := v.Subnets[name]; ok {
			sub.State = state
			s.persist.save("vpc", vpcName, v)
		}
	}
}

// SetPeeringState transitions a peering's lifecycle state.
func (s *Store) SetPeeringState(a, b string, state EntityState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ca, cb := peeringKey(a, b)
	if p, ok := s.peerings[ca+"|"+cb]; ok {
		p.State = state
		s.persist.save("peering", p.Key(), p)
	}
}

// SetSubnetPolicy records whether a subnet currently has a policy applied.
func (s *Store) SetSubnetPolicy(vpcName, name string, applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vpcs[vpcName]; ok {
		if sub, ok := v.Subnets[name]; ok {
			sub.HasPolicy = applied
			s.persist.save("vpc", vpcName, v)
		}
	}
}
