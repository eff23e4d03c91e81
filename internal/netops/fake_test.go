package netops

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeAdapterIdempotencySemantics(t *testing.T) {
	f := NewFakeAdapter()

	require.NoError(t, f.CreateBridge("vsb-a"))
	err := f.CreateBridge("vsb-a")
	require.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, f.DeleteBridge("vsb-a"))
	err = f.DeleteBridge("vsb-a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFakeAdapterVethPeerDeletion(t *testing.T) {
	f := NewFakeAdapter()
	require.NoError(t, f.CreateVethPair("vsh1", "vsn1"))

	require.NoError(t, f.DeleteLink("vsh1"))

	// Deleting one end removes the peer, like the kernel does.
	err := f.DeleteLink("vsn1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFakeAdapterNamespaceTeardown(t *testing.T) {
	f := NewFakeAdapter()
	require.NoError(t, f.CreateNamespace("vs-vpc1-public"))
	require.NoError(t, f.CreateVethPair("vsh1", "vsn1"))
	require.NoError(t, f.MoveLinkToNamespace("vsn1", "vs-vpc1-public"))
	require.NoError(t, f.ReplaceFilterRules("vs-vpc1-public", []FilterRule{
		{Protocol: "tcp", Port: 22, Action: VerdictAccept},
	}, false))

	require.NoError(t, f.DeleteNamespace("vs-vpc1-public"))

	links, err := f.ListLinks("vs-vpc1-public")
	require.NoError(t, err)
	require.Empty(t, links)

	_, err = f.ListFilterRules("vs-vpc1-public")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFakeAdapterErrorInjection(t *testing.T) {
	f := NewFakeAdapter()
	f.FailOn["create-bridge:vsb-bad"] = errors.New("operation not permitted")

	err := f.CreateBridge("vsb-bad")
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, f.CreateBridge("vsb-good"))
}

func TestFakeAdapterReplaceFilterRulesReplaces(t *testing.T) {
	f := NewFakeAdapter()
	require.NoError(t, f.CreateNamespace("ns"))

	first := []FilterRule{{Protocol: "tcp", Port: 22, Action: VerdictAccept}}
	second := []FilterRule{
		{Protocol: "tcp", Port: 443, Action: VerdictAccept},
		{Protocol: "tcp", Port: 80, Action: VerdictDrop},
	}
	require.NoError(t, f.ReplaceFilterRules("ns", first, false))
	require.NoError(t, f.ReplaceFilterRules("ns", second, false))

	got, err := f.ListFilterRules("ns")
	require.NoError(t, err)
	require.Equal(t, second, got)
}
