package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/policy"
	"grimm.is/vpcsim/internal/provision"
	"grimm.is/vpcsim/internal/reconcile"
	"grimm.is/vpcsim/internal/topology"
)

// TestFullLifecycle drives the whole stack against the fake adapter: build a
// two-VPC peered topology, lock down a subnet with a policy, confirm probes
// and drift detection work, then tear everything down.
func TestFullLifecycle(t *testing.T) {
	fake := netops.NewFakeAdapter()
	store := topology.NewStore(nil)
	namer := netops.DefaultNamer
	prov := provision.New(fake, store, namer, time.Second, nil)

	// Topology: prod (web, db) peered with dev (sandbox).
	require.NoError(t, prov.CreateVPC("prod", "10.0.0.0/16"))
	require.NoError(t, prov.AddSubnet("prod", "web", "10.0.1.0/24", topology.KindPublic))
	require.NoError(t, prov.AddSubnet("prod", "db", "10.0.2.0/24", topology.KindPrivate))
	require.NoError(t, prov.CreateVPC("dev", "10.1.0.0/16"))
	require.NoError(t, prov.AddSubnet("dev", "sandbox", "10.1.1.0/24", topology.KindPrivate))
	require.NoError(t, prov.PeerVPCs("prod", "dev"))

	// Lock down web: SSH in, HTTP explicitly dropped, everything else falls
	// through to the default-deny chain policy.
	eng := policy.NewEngine(fake, store, namer, false, nil)
	require.NoError(t, eng.Apply(&policy.Document{
		Subnet: "prod/web",
		Ingress: []policy.Rule{
			{Protocol: "tcp", Port: 22, Action: "allow"},
			{Protocol: "tcp", Port: 80, Action: "deny"},
		},
	}))

	webNS := namer.Namespace("prod", "web")
	filter := fake.Filters[webNS]
	require.NotNil(t, filter)
	assert.False(t, filter.DefaultAccept)
	require.Len(t, filter.Rules, 2)
	assert.Equal(t, netops.FilterRule{Protocol: "tcp", Port: 22, Action: netops.VerdictAccept}, filter.Rules[0])
	assert.Equal(t, netops.FilterRule{Protocol: "tcp", Port: 80, Action: netops.VerdictDrop}, filter.Rules[1])

	// Every subnet gateway answers its probe, each from inside its own
	// namespace.
	prober := NewProber(fake, store, namer, time.Second, nil)
	pinged := map[string]bool{}
	prober.ping = func(addr string, _ time.Duration) error {
		pinged[addr] = true
		return nil
	}
	results := prober.VerifyAll()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.OK(), r.String())
	}
	assert.Equal(t, map[string]bool{"10.0.1.1": true, "10.0.2.1": true, "10.1.1.1": true}, pinged)

	// SSH dial from the sandbox succeeds, from a torn namespace it cannot.
	sandbox, ok := store.GetSubnet("dev", "sandbox")
	require.True(t, ok)
	prober.dial = func(addr string, _ time.Duration) error { return nil }
	res := prober.CheckTCP(sandbox, "10.0.1.2", 22)
	assert.True(t, res.OK())

	// Declared and live state agree.
	rec := reconcile.New(fake, store, namer, nil)
	diff, err := rec.Diff()
	require.NoError(t, err)
	assert.Empty(t, diff)

	// Re-applying a changed document leaves exactly the new set.
	require.NoError(t, eng.Apply(&policy.Document{
		Subnet:  "prod/web",
		Ingress: []policy.Rule{{Protocol: "tcp", Port: 443, Action: "allow"}},
	}))
	filter = fake.Filters[webNS]
	require.Len(t, filter.Rules, 1)
	assert.Equal(t, uint16(443), filter.Rules[0].Port)

	// Full teardown leaves no managed object behind and is repeatable.
	require.NoError(t, rec.CleanupAll())
	assert.Empty(t, fake.Namespaces)
	assert.Empty(t, fake.Bridges)
	assert.Empty(t, fake.Links)
	assert.Empty(t, fake.Filters)
	assert.Empty(t, store.ListVPCs())
	require.NoError(t, rec.CleanupAll())
}
