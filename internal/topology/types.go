// Package topology is the declared-state registry: VPCs, subnets and
// peerings keyed by name, validated before any kernel call is made. The
// store is the single source of truth for what should exist; the kernel is
// the source of truth for what does exist.
package topology

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// EntityState tracks where an entity is in its provisioning lifecycle.
// Rollback after a partial failure is the provisioning -> absent transition,
// not a special case.
type EntityState string

const (
	StateProvisioning   EntityState = "provisioning"
	StatePresent        EntityState = "present"
	StateDeprovisioning EntityState = "deprovisioning"
)

// SubnetKind distinguishes public from private subnets.
type SubnetKind string

const (
	KindPublic  SubnetKind = "public"
	KindPrivate SubnetKind = "private"
)

// ParseSubnetKind validates a kind string.
func ParseSubnetKind(s string) (SubnetKind, error) {
	switch SubnetKind(s) {
	case KindPublic, KindPrivate:
		return SubnetKind(s), nil
	default:
		return "", NewValidationError("subnet-kind", "unknown subnet kind %q (want public or private)", s)
	}
}

// VPC is a logical isolated network backed by one bridge.
type VPC struct {
	Name    string             `json:"name"`
	CIDR    string             `json:"cidr"`
	State   EntityState        `json:"state"`
	Subnets map[string]*Subnet `json:"subnets"`
}

// Subnet is an address range inside a VPC, backed by one namespace and one
// veth pair.
type Subnet struct {
	VPC       string      `json:"vpc"`
	Name      string      `json:"name"`
	CIDR      string      `json:"cidr"`
	Kind      SubnetKind  `json:"kind"`
	State     EntityState `json:"state"`
	HasPolicy bool        `json:"has_policy"`
}

// Peering is an unordered connectivity relation between two VPCs, stored
// canonically with A < B.
type Peering struct {
	A     string      `json:"a"`
	B     string      `json:"b"`
	State EntityState `json:"state"`
}

// Key returns the canonical identifier for the peering.
func (p *Peering) Key() string { return p.A + "|" + p.B }

// peeringKey canonicalizes an unordered VPC pair.
func peeringKey(a, b string) (string, string) {
	if b < a {
		a, b = b, a
	}
	return a, b
}

// GatewayIP returns the subnet's gateway address: the first usable host
// address of the CIDR, held by the VPC bridge.
func (s *Subnet) GatewayIP() (net.IP, error) {
	return nthIP(s.CIDR, 1)
}

// HostIP returns the address assigned to the namespace-side veth end: the
// second usable host address of the CIDR.
func (s *Subnet) HostIP() (net.IP, error) {
	return nthIP(s.CIDR, 2)
}

// GatewayCIDR returns the gateway address with the subnet's prefix length,
// in the form netlink expects.
func (s *Subnet) GatewayCIDR() (string, error) {
	return nthCIDR(s.CIDR, 1)
}

// HostCIDR returns the namespace-side address with the subnet's prefix length.
func (s *Subnet) HostCIDR() (string, error) {
	return nthCIDR(s.CIDR, 2)
}

func nthIP(cidr string, n uint32) (net.IP, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	ip4 := ipNet.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("invalid CIDR %q: not IPv4", cidr)
	}
	base := binary.BigEndian.Uint32(ip4)
	out := make(net.IP, 4)
	binary.BigEndian.PutUint32(out, base+n)
	if !ipNet.Contains(out) {
		return nil, fmt.Errorf("CIDR %q too small for host offset %d", cidr, n)
	}
	return out, nil
}

func nthCIDR(cidr string, n uint32) (string, error) {
	ip, err := nthIP(cidr, n)
	if err != nil {
		return "", err
	}
	_, ipNet, _ := net.ParseCIDR(cidr)
	ones, _ := ipNet.Mask.Size()
	return fmt.Sprintf("%s/%d", ip, ones), nil
}

// ValidationError reports a violated model invariant. It is always returned
// before any kernel operation is attempted.
type ValidationError struct {
	Invariant string
	msg       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Invariant, e.msg)
}

// NewValidationError builds a ValidationError naming the violated invariant.
func NewValidationError(invariant, format string, args ...any) *ValidationError {
	return &ValidationError{
		Invariant: invariant,
		msg:       fmt.Sprintf(format, args...),
	}
}

// IsValidation reports whether err is a model validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
