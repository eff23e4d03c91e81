// Package netops is the single boundary between the simulator and live kernel
// networking state. It wraps namespace, bridge, veth, address and nftables
// operations behind the Adapter interface and returns typed failures
// (ErrAlreadyExists, ErrNotFound, ErrPermissionDenied, ErrKernelRejected) so
// callers can implement idempotent provisioning and cleanup. No other package
// is allowed to touch kernel networking objects directly.
package netops

import "time"

// FilterRule is one packet-filter rule as the adapter understands it.
// Protocol is tcp, udp, icmp or any; Port is meaningful for tcp/udp only.
type FilterRule struct {
	Protocol string
	Port     uint16
	Action   string // accept | drop
}

// Verdicts for FilterRule.Action.
const (
	VerdictAccept = "accept"
	VerdictDrop   = "drop"
)

// Adapter wraps the kernel-level operations the simulator depends on.
// Namespace arguments name a named network namespace; the empty string means
// the host namespace. All operations are safe to retry: creates fail with
// ErrAlreadyExists and deletes with ErrNotFound rather than corrupting state.
type Adapter interface {
	// Namespaces
	CreateNamespace(name string) error
	DeleteNamespace(name string) error
	NamespaceExists(name string) (bool, error)
	ListNamespaces() ([]string, error)

	// Bridges
	CreateBridge(name string) error
	DeleteBridge(name string) error

	// Veth pairs and link plumbing
	CreateVethPair(name, peer string) error
	DeleteLink(name string) error
	MoveLinkToNamespace(link, ns string) error
	AttachToBridge(link, bridge string) error
	SetLinkUp(ns, link string) error
	WaitLinkUp(ns, link string, timeout time.Duration) error
	ListLinks(ns string) ([]string, error)

	// Addressing and routing
	AssignAddress(ns, link, cidr string) error
	RemoveAddress(ns, link, cidr string) error
	AddDefaultRoute(ns, gateway string) error

	// RunInNamespace executes fn with the calling thread switched into the
	// named namespace. Used for socket-level probes that have no
	// handle-based API.
	RunInNamespace(ns string, fn func() error) error

	// Packet filtering (nftables table inside a subnet namespace).
	// ReplaceFilterRules replaces the whole ingress rule set in one atomic
	// commit; the chain policy becomes drop unless defaultAccept is set.
	ReplaceFilterRules(ns string, rules []FilterRule, defaultAccept bool) error
	DeleteFilterTable(ns string) error
	ListFilterRules(ns string) ([]FilterRule, error)
}
