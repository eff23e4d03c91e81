package reconcile

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/policy"
	"grimm.is/vpcsim/internal/provision"
	"grimm.is/vpcsim/internal/topology"
)

// buildTopology provisions two peered VPCs with subnets through the real
// provisioner so the fake holds a realistic object graph.
func buildTopology(t *testing.T) (*Reconciler, *netops.FakeAdapter, *topology.Store) {
	t.Helper()
	fake := netops.NewFakeAdapter()
	store := topology.NewStore(nil)
	p := provision.New(fake, store, netops.DefaultNamer, time.Second, nil)

	require.NoError(t, p.CreateVPC("prod", "10.0.0.0/16"))
	require.NoError(t, p.AddSubnet("prod", "web", "10.0.1.0/24", topology.KindPublic))
	require.NoError(t, p.AddSubnet("prod", "db", "10.0.2.0/24", topology.KindPrivate))
	require.NoError(t, p.CreateVPC("dev", "10.1.0.0/16"))
	require.NoError(t, p.AddSubnet("dev", "sandbox", "10.1.1.0/24", topology.KindPrivate))
	require.NoError(t, p.PeerVPCs("prod", "dev"))

	return New(fake, store, netops.DefaultNamer, nil), fake, store
}

func TestCleanupAllRemovesEverything(t *testing.T) {
	r, fake, store := buildTopology(t)

	require.NoError(t, r.CleanupAll())

	assert.Empty(t, fake.Namespaces)
	assert.Empty(t, fake.Bridges)
	assert.Empty(t, fake.Links)
	assert.Empty(t, fake.Filters)
	assert.Empty(t, store.ListVPCs())
	assert.Empty(t, store.ListPeerings())
}

func TestCleanupAllRemovesAppliedPolicies(t *testing.T) {
	r, fake, store := buildTopology(t)
	eng := policy.NewEngine(fake, store, netops.DefaultNamer, false, nil)
	require.NoError(t, eng.Apply(&policy.Document{
		Subnet:  "prod/web",
		Ingress: []policy.Rule{{Protocol: "tcp", Port: 443, Action: "allow"}},
	}))
	require.Len(t, fake.Filters, 1)

	require.NoError(t, r.CleanupAll())

	assert.Empty(t, fake.Filters, "filter tables die with their namespaces")
}

func TestCleanupAllIsIdempotent(t *testing.T) {
	r, _, _ := buildTopology(t)
	require.NoError(t, r.CleanupAll())
	require.NoError(t, r.CleanupAll())
}

func TestCleanupAllContinuesPastFailures(t *testing.T) {
	r, fake, store := buildTopology(t)
	namer := netops.DefaultNamer

	// One namespace refuses to die; everything else must still go.
	stuck := namer.Namespace("prod", "web")
	fake.FailOn["delete-namespace:"+stuck] = errors.New("device or resource busy")

	err := r.CleanupAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prod/web")

	// The other namespaces and the unaffected VPC are gone.
	assert.False(t, fake.Namespaces[namer.Namespace("prod", "db")])
	assert.False(t, fake.Namespaces[namer.Namespace("dev", "sandbox")])
	assert.False(t, fake.Bridges[namer.Bridge("dev")])
	_, ok := store.GetVPC("dev")
	assert.False(t, ok)

	// The failed subnet's declaration survives for a retry.
	_, ok = store.GetSubnet("prod", "web")
	assert.True(t, ok)
	_, ok = store.GetVPC("prod")
	assert.True(t, ok)

	// Retry finishes the job once the namespace is deletable again.
	delete(fake.FailOn, "delete-namespace:"+stuck)
	require.NoError(t, r.CleanupAll())
	assert.Empty(t, fake.Namespaces)
	assert.Empty(t, store.ListVPCs())
}

func TestCleanupAllToleratesAlreadyGoneObjects(t *testing.T) {
	r, fake, store := buildTopology(t)
	namer := netops.DefaultNamer

	// Someone deleted kernel objects behind our back.
	require.NoError(t, fake.DeleteNamespace(namer.Namespace("prod", "web")))
	require.NoError(t, fake.DeleteLink(namer.VethHost("prod", "db")))

	require.NoError(t, r.CleanupAll())
	assert.Empty(t, store.ListVPCs())
}

func TestTeardownVPC(t *testing.T) {
	r, fake, store := buildTopology(t)
	namer := netops.DefaultNamer

	require.NoError(t, r.TeardownVPC("dev"))

	assert.False(t, fake.Bridges[namer.Bridge("dev")])
	assert.False(t, fake.Namespaces[namer.Namespace("dev", "sandbox")])
	_, ok := store.GetVPC("dev")
	assert.False(t, ok)

	// The peering that referenced dev is gone, on both ends.
	endA, endB := namer.PeeringVeths("prod", "dev")
	assert.NotContains(t, fake.Links, endA)
	assert.NotContains(t, fake.Links, endB)
	assert.Empty(t, store.ListPeerings())

	// prod is untouched.
	_, ok = store.GetVPC("prod")
	assert.True(t, ok)
	assert.True(t, fake.Bridges[namer.Bridge("prod")])
	assert.True(t, fake.Namespaces[namer.Namespace("prod", "web")])
}

func TestTeardownVPCUnknown(t *testing.T) {
	r, _, _ := buildTopology(t)
	err := r.TeardownVPC("nope")
	require.Error(t, err)
	assert.True(t, topology.IsValidation(err))
}

func TestTeardownVPCPartialFailureKeepsDeclaration(t *testing.T) {
	r, fake, store := buildTopology(t)
	namer := netops.DefaultNamer
	fake.FailOn["delete-namespace:"+namer.Namespace("dev", "sandbox")] = errors.New("device or resource busy")

	err := r.TeardownVPC("dev")
	require.Error(t, err)

	v, ok := store.GetVPC("dev")
	require.True(t, ok)
	assert.Equal(t, topology.StateDeprovisioning, v.State)

	// Bridge deletion is withheld while subnets remain.
	assert.True(t, fake.Bridges[namer.Bridge("dev")])

	delete(fake.FailOn, "delete-namespace:"+namer.Namespace("dev", "sandbox"))
	require.NoError(t, r.TeardownVPC("dev"))
	_, ok = store.GetVPC("dev")
	assert.False(t, ok)
}

func TestDiffInSync(t *testing.T) {
	r, _, _ := buildTopology(t)
	diff, err := r.Diff()
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestDiffDetectsMissingKernelObject(t *testing.T) {
	r, fake, _ := buildTopology(t)
	namer := netops.DefaultNamer
	require.NoError(t, fake.DeleteNamespace(namer.Namespace("prod", "web")))

	diff, err := r.Diff()
	require.NoError(t, err)
	require.NotEmpty(t, diff)
	assert.Contains(t, diff, "-namespace "+namer.Namespace("prod", "web"))
}

func TestDiffDetectsForeignManagedObject(t *testing.T) {
	r, fake, _ := buildTopology(t)
	require.NoError(t, fake.CreateNamespace("vs-ghost-subnet"))

	diff, err := r.Diff()
	require.NoError(t, err)
	assert.Contains(t, diff, "+namespace vs-ghost-subnet")
}

func TestDiffIgnoresUnmanagedObjects(t *testing.T) {
	r, fake, _ := buildTopology(t)
	require.NoError(t, fake.CreateNamespace("docker-netns"))
	require.NoError(t, fake.CreateBridge("docker0"))

	diff, err := r.Diff()
	require.NoError(t, err)
	assert.Empty(t, diff)

	// And they survive cleanup.
	require.NoError(t, r.CleanupAll())
	assert.True(t, fake.Namespaces["docker-netns"])
	assert.True(t, fake.Bridges["docker0"])
}

func TestDiffShowsAppliedPolicy(t *testing.T) {
	r, fake, store := buildTopology(t)
	namer := netops.DefaultNamer
	eng := policy.NewEngine(fake, store, namer, false, nil)
	require.NoError(t, eng.Apply(&policy.Document{
		Subnet:  "prod/web",
		Ingress: []policy.Rule{{Protocol: "tcp", Port: 22, Action: "allow"}},
	}))

	// Declared and live both show the filter: still in sync.
	diff, err := r.Diff()
	require.NoError(t, err)
	assert.Empty(t, diff)

	// Kernel-side table removed behind our back: drift.
	require.NoError(t, fake.DeleteFilterTable(namer.Namespace("prod", "web")))
	diff, err = r.Diff()
	require.NoError(t, err)
	assert.True(t, strings.Contains(diff, "-filter "+namer.Namespace("prod", "web")))
}
