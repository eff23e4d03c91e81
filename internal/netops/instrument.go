package netops

import (
	"errors"
	"time"

	"grimm.is/vpcsim/internal/metrics"
)

// Instrument wraps an Adapter so every kernel operation is counted, and
// failures are counted by operation and error kind.
func Instrument(inner Adapter) Adapter {
	return &instrumentedAdapter{inner: inner}
}

type instrumentedAdapter struct {
	inner Adapter
}

func (a *instrumentedAdapter) observe(op string, err error) error {
	metrics.Get().KernelOpsTotal.WithLabelValues(op).Inc()
	if err != nil {
		metrics.Get().KernelOpsFailed.WithLabelValues(op, kindName(err)).Inc()
	}
	return err
}

func kindName(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return "already-exists"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission-denied"
	case errors.Is(err, ErrKernelRejected):
		return "kernel-rejected"
	default:
		return "unknown"
	}
}

func (a *instrumentedAdapter) CreateNamespace(name string) error {
	return a.observe("create-namespace", a.inner.CreateNamespace(name))
}

func (a *instrumentedAdapter) DeleteNamespace(name string) error {
	return a.observe("delete-namespace", a.inner.DeleteNamespace(name))
}

func (a *instrumentedAdapter) NamespaceExists(name string) (bool, error) {
	ok, err := a.inner.NamespaceExists(name)
	return ok, a.observe("namespace-exists", err)
}

func (a *instrumentedAdapter) ListNamespaces() ([]string, error) {
	names, err := a.inner.ListNamespaces()
	return names, a.observe("list-namespaces", err)
}

func (a *instrumentedAdapter) CreateBridge(name string) error {
	return a.observe("create-bridge", a.inner.CreateBridge(name))
}

func (a *instrumentedAdapter) DeleteBridge(name string) error {
	return a.observe("delete-bridge", a.inner.DeleteBridge(name))
}

func (a *instrumentedAdapter) CreateVethPair(name, peer string) error {
	return a.observe("create-veth", a.inner.CreateVethPair(name, peer))
}

func (a *instrumentedAdapter) DeleteLink(name string) error {
	return a.observe("delete-link", a.inner.DeleteLink(name))
}

func (a *instrumentedAdapter) MoveLinkToNamespace(link, ns string) error {
	return a.observe("move-link", a.inner.MoveLinkToNamespace(link, ns))
}

func (a *instrumentedAdapter) AttachToBridge(link, bridge string) error {
	return a.observe("attach-to-bridge", a.inner.AttachToBridge(link, bridge))
}

func (a *instrumentedAdapter) SetLinkUp(ns, link string) error {
	return a.observe("link-up", a.inner.SetLinkUp(ns, link))
}

func (a *instrumentedAdapter) WaitLinkUp(ns, link string, timeout time.Duration) error {
	return a.observe("wait-link-up", a.inner.WaitLinkUp(ns, link, timeout))
}

func (a *instrumentedAdapter) ListLinks(ns string) ([]string, error) {
	links, err := a.inner.ListLinks(ns)
	return links, a.observe("list-links", err)
}

func (a *instrumentedAdapter) AssignAddress(ns, link, cidr string) error {
	return a.observe("assign-address", a.inner.AssignAddress(ns, link, cidr))
}

func (a *instrumentedAdapter) RemoveAddress(ns, link, cidr string) error {
	return a.observe("remove-address", a.inner.RemoveAddress(ns, link, cidr))
}

func (a *instrumentedAdapter) AddDefaultRoute(ns, gateway string) error {
	return a.observe("add-route", a.inner.AddDefaultRoute(ns, gateway))
}

func (a *instrumentedAdapter) RunInNamespace(ns string, fn func() error) error {
	return a.observe("run-in-namespace", a.inner.RunInNamespace(ns, fn))
}

func (a *instrumentedAdapter) ReplaceFilterRules(ns string, rules []FilterRule, defaultAccept bool) error {
	return a.observe("replace-filter-rules", a.inner.ReplaceFilterRules(ns, rules, defaultAccept))
}

func (a *instrumentedAdapter) DeleteFilterTable(ns string) error {
	return a.observe("delete-filter-table", a.inner.DeleteFilterTable(ns))
}

func (a *instrumentedAdapter) ListFilterRules(ns string) ([]FilterRule, error) {
	rules, err := a.inner.ListFilterRules(ns)
	return rules, a.observe("list-filter-rules", err)
}
