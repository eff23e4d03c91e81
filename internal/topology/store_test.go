package topology

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareVPC(t *testing.T) {
	s := NewStore(nil)

	v, err := s.DeclareVPC("vpc1", "10.0.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, StateProvisioning, v.State)

	_, err = s.DeclareVPC("vpc1", "10.1.0.0/16")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = s.DeclareVPC("bad name", "10.2.0.0/16")
	assert.True(t, IsValidation(err))

	_, err = s.DeclareVPC("vpc2", "10.0.0.5/16")
	assert.True(t, IsValidation(err), "non-network address must be rejected")
}

func TestDeclareSubnetContainment(t *testing.T) {
	s := NewStore(nil)
	_, err := s.DeclareVPC("vpc1", "10.0.0.0/16")
	require.NoError(t, err)

	_, err = s.DeclareSubnet("vpc1", "public", "10.0.1.0/24", KindPublic)
	require.NoError(t, err)

	// Outside the VPC CIDR.
	_, err = s.DeclareSubnet("vpc1", "bad", "10.1.0.0/24", KindPrivate)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	// Overlapping a sibling.
	_, err = s.DeclareSubnet("vpc1", "overlap", "10.0.1.128/25", KindPrivate)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	// Duplicate name.
	_, err = s.DeclareSubnet("vpc1", "public", "10.0.2.0/24", KindPublic)
	assert.True(t, IsValidation(err))

	// Unknown VPC.
	_, err = s.DeclareSubnet("nope", "x", "10.0.3.0/24", KindPrivate)
	assert.True(t, IsValidation(err))
}

func TestDeclarePeeringUnordered(t *testing.T) {
	s := NewStore(nil)
	s.DeclareVPC("vpc1", "10.0.0.0/16")
	s.DeclareVPC("vpc2", "10.1.0.0/16")

	p, err := s.DeclarePeering("vpc2", "vpc1")
	require.NoError(t, err)
	assert.Equal(t, "vpc1", p.A)
	assert.Equal(t, "vpc2", p.B)

	// Same relation in either order is a duplicate.
	_, err = s.DeclarePeering("vpc1", "vpc2")
	assert.True(t, IsValidation(err))
	_, err = s.DeclarePeering("vpc2", "vpc1")
	assert.True(t, IsValidation(err))

	_, err = s.DeclarePeering("vpc1", "vpc1")
	assert.True(t, IsValidation(err))

	_, err = s.DeclarePeering("vpc1", "ghost")
	assert.True(t, IsValidation(err))
}

func TestRemoveVPCCascades(t *testing.T) {
	s := NewStore(nil)
	s.DeclareVPC("vpc1", "10.0.0.0/16")
	s.DeclareVPC("vpc2", "10.1.0.0/16")
	s.DeclareSubnet("vpc1", "a", "10.0.1.0/24", KindPrivate)
	s.DeclarePeering("vpc1", "vpc2")

	require.NoError(t, s.RemoveVPC("vpc1"))

	_, ok := s.GetVPC("vpc1")
	assert.False(t, ok)
	assert.Empty(t, s.ListPeerings(), "peerings referencing the VPC must cascade")

	err := s.RemoveVPC("vpc1")
	assert.True(t, IsValidation(err))
}

func TestFindSubnet(t *testing.T) {
	s := NewStore(nil)
	s.DeclareVPC("vpc1", "10.0.0.0/16")
	s.DeclareVPC("vpc2", "10.1.0.0/16")
	s.DeclareSubnet("vpc1", "public", "10.0.1.0/24", KindPublic)

	sub, err := s.FindSubnet("public")
	require.NoError(t, err)
	assert.Equal(t, "vpc1", sub.VPC)

	_, err = s.FindSubnet("ghost")
	assert.True(t, IsValidation(err))

	// Ambiguous across VPCs.
	s.DeclareSubnet("vpc2", "public", "10.1.1.0/24", KindPublic)
	_, err = s.FindSubnet("public")
	assert.True(t, IsValidation(err))
}

func TestSubnetAddressing(t *testing.T) {
	sub := &Subnet{CIDR: "10.0.1.0/24"}

	gw, err := sub.GatewayIP()
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.1", gw.String())

	host, err := sub.HostIP()
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.2", host.String())

	gwCIDR, err := sub.GatewayCIDR()
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.1/24", gwCIDR)

	hostCIDR, err := sub.HostCIDR()
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.2/24", hostCIDR)
}

func TestPersistentStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.db")

	s, err := NewPersistentStore(path, nil)
	require.NoError(t, err)
	_, err = s.DeclareVPC("vpc1", "10.0.0.0/16")
	require.NoError(t, err)
	_, err = s.DeclareSubnet("vpc1", "public", "10.0.1.0/24", KindPublic)
	require.NoError(t, err)
	_, err = s.DeclareVPC("vpc2", "10.1.0.0/16")
	require.NoError(t, err)
	_, err = s.DeclarePeering("vpc1", "vpc2")
	require.NoError(t, err)
	s.SetVPCState("vpc1", StatePresent)
	s.SetSubnetState("vpc1", "public", StatePresent)
	require.NoError(t, s.Close())

	// Reopen and verify the declared model survived the process boundary.
	s2, err := NewPersistentStore(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	v, ok := s2.GetVPC("vpc1")
	require.True(t, ok)
	assert.Equal(t, StatePresent, v.State)
	sub, ok := s2.GetSubnet("vpc1", "public")
	require.True(t, ok)
	assert.Equal(t, KindPublic, sub.Kind)
	assert.Equal(t, StatePresent, sub.State)
	assert.Len(t, s2.ListPeerings(), 1)
}

func TestPersistentStoreCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib", "vpcsim", "topology.db")

	s, err := NewPersistentStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DeclareVPC("vpc1", "10.0.0.0/16")
	require.NoError(t, err)
}

func TestPersistentStoreRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.db")

	s, err := NewPersistentStore(path, nil)
	require.NoError(t, err)
	s.DeclareVPC("vpc1", "10.0.0.0/16")
	require.NoError(t, s.RemoveVPC("vpc1"))
	require.NoError(t, s.Close())

	s2, err := NewPersistentStore(path, nil)
	require.NoError(t, err)
	defer s2.Close()
	assert.Empty(t, s2.ListVPCs())
}
