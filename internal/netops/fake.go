package netops

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FakeAdapter is an in-memory Adapter that models just enough kernel
// semantics for unit tests and dry runs: object existence, veth peer
// deletion, namespace-scoped links and per-namespace filter tables. Every
// successful mutation is appended to Ops so tests can assert ordering.
type FakeAdapter struct {
	mu         sync.Mutex
	Namespaces map[string]bool
	Bridges    map[string]bool
	Links      map[string]*FakeLink
	Routes     map[string][]string
	Filters    map[string]*FakeFilter
	Ops        []string

	// FailOn injects an error for an operation, keyed by "op" or
	// "op:object". The injected error is classified like a real one.
	FailOn map[string]error
}

// FakeLink models a link: its namespace (empty = host), optional bridge
// master, optional veth peer and admin state.
type FakeLink struct {
	Namespace string
	Master    string
	Peer      string
	Up        bool
	Addrs     []string
}

// FakeFilter models a namespace's ingress filter table.
type FakeFilter struct {
	Rules         []FilterRule
	DefaultAccept bool
}

// NewFakeAdapter returns an empty fake.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Namespaces: make(map[string]bool),
		Bridges:    make(map[string]bool),
		Links:      make(map[string]*FakeLink),
		Routes:     make(map[string][]string),
		Filters:    make(map[string]*FakeFilter),
		FailOn:     make(map[string]error),
	}
}

func (f *FakeAdapter) injected(op, object string) error {
	if err, ok := f.FailOn[op+":"+object]; ok {
		return classify(op, object, err)
	}
	if err, ok := f.FailOn[op]; ok {
		return classify(op, object, err)
	}
	return nil
}

func (f *FakeAdapter) record(op, object string) {
	f.Ops = append(f.Ops, op+" "+object)
}

func (f *FakeAdapter) CreateNamespace(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("create-namespace", name); err != nil {
		return err
	}
	if f.Namespaces[name] {
		return classify("create-namespace", name, ErrAlreadyExists)
	}
	f.Namespaces[name] = true
	f.record("create-namespace", name)
	return nil
}

func (f *FakeAdapter) DeleteNamespace(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("delete-namespace", name); err != nil {
		return err
	}
	if !f.Namespaces[name] {
		return classify("delete-namespace", name, ErrNotFound)
	}
	delete(f.Namespaces, name)
	// The kernel destroys a namespace's links and tables with it.
	for ln, l := range f.Links {
		if l.Namespace == name {
			delete(f.Links, ln)
		}
	}
	delete(f.Filters, name)
	delete(f.Routes, name)
	f.record("delete-namespace", name)
	return nil
}

func (f *FakeAdapter) NamespaceExists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Namespaces[name], nil
}

func (f *FakeAdapter) ListNamespaces() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for n := range f.Namespaces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeAdapter) CreateBridge(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("create-bridge", name); err != nil {
		return err
	}
	if f.Bridges[name] {
		return classify("create-bridge", name, ErrAlreadyExists)
	}
	f.Bridges[name] = true
	f.Links[name] = &FakeLink{Up: true}
	f.record("create-bridge", name)
	return nil
}

func (f *FakeAdapter) DeleteBridge(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("delete-bridge", name); err != nil {
		return err
	}
	if !f.Bridges[name] {
		return classify("delete-bridge", name, ErrNotFound)
	}
	delete(f.Bridges, name)
	delete(f.Links, name)
	for _, l := range f.Links {
		if l.Master == name {
			l.Master = ""
		}
	}
	f.record("delete-bridge", name)
	return nil
}

func (f *FakeAdapter) CreateVethPair(name, peer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("create-veth", name); err != nil {
		return err
	}
	if _, ok := f.Links[name]; ok {
		return classify("create-veth", name, ErrAlreadyExists)
	}
	if _, ok := f.Links[peer]; ok {
		return classify("create-veth", peer, ErrAlreadyExists)
	}
	f.Links[name] = &FakeLink{Peer: peer}
	f.Links[peer] = &FakeLink{Peer: name}
	f.record("create-veth", name)
	return nil
}

func (f *FakeAdapter) DeleteLink(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("delete-link", name); err != nil {
		return err
	}
	l, ok := f.Links[name]
	if !ok {
		return classify("delete-link", name, ErrNotFound)
	}
	delete(f.Links, name)
	// Deleting one veth end removes its peer too.
	if l.Peer != "" {
		delete(f.Links, l.Peer)
	}
	f.record("delete-link", name)
	return nil
}

func (f *FakeAdapter) MoveLinkToNamespace(link, ns string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("move-link", link); err != nil {
		return err
	}
	l, ok := f.Links[link]
	if !ok {
		return classify("move-link", link, ErrNotFound)
	}
	if !f.Namespaces[ns] {
		return classify("move-link", link, fmt.Errorf("%w: namespace %s", ErrNotFound, ns))
	}
	l.Namespace = ns
	f.record("move-link", link)
	return nil
}

func (f *FakeAdapter) AttachToBridge(link, bridge string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("attach-to-bridge", link); err != nil {
		return err
	}
	l, ok := f.Links[link]
	if !ok {
		return classify("attach-to-bridge", link, ErrNotFound)
	}
	if !f.Bridges[bridge] {
		return classify("attach-to-bridge", bridge, ErrNotFound)
	}
	l.Master = bridge
	f.record("attach-to-bridge", link)
	return nil
}

func (f *FakeAdapter) SetLinkUp(ns, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("link-up", link); err != nil {
		return err
	}
	l, ok := f.Links[link]
	if !ok || l.Namespace != ns {
		return classify("link-up", link, ErrNotFound)
	}
	l.Up = true
	f.record("link-up", link)
	return nil
}

func (f *FakeAdapter) WaitLinkUp(ns, link string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("wait-link-up", link); err != nil {
		return err
	}
	l, ok := f.Links[link]
	if !ok || l.Namespace != ns {
		return classify("wait-link-up", link, ErrNotFound)
	}
	if !l.Up {
		return classify("wait-link-up", link,
			fmt.Errorf("%w: link did not come up within %s", ErrKernelRejected, timeout))
	}
	return nil
}

func (f *FakeAdapter) ListLinks(ns string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for n, l := range f.Links {
		if l.Namespace == ns {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeAdapter) AssignAddress(ns, link, cidr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("assign-address", link); err != nil {
		return err
	}
	l, ok := f.Links[link]
	if !ok || l.Namespace != ns {
		return classify("assign-address", link, ErrNotFound)
	}
	for _, a := range l.Addrs {
		if a == cidr {
			return classify("assign-address", link, ErrAlreadyExists)
		}
	}
	l.Addrs = append(l.Addrs, cidr)
	f.record("assign-address", link)
	return nil
}

func (f *FakeAdapter) RemoveAddress(ns, link, cidr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("remove-address", link); err != nil {
		return err
	}
	l, ok := f.Links[link]
	if !ok || l.Namespace != ns {
		return classify("remove-address", link, ErrNotFound)
	}
	for i, a := range l.Addrs {
		if a == cidr {
			l.Addrs = append(l.Addrs[:i], l.Addrs[i+1:]...)
			f.record("remove-address", link)
			return nil
		}
	}
	return classify("remove-address", link, ErrNotFound)
}

func (f *FakeAdapter) RunInNamespace(ns string, fn func() error) error {
	f.mu.Lock()
	if err := f.injected("run-in-namespace", ns); err != nil {
		f.mu.Unlock()
		return err
	}
	if ns != "" && !f.Namespaces[ns] {
		f.mu.Unlock()
		return classify("run-in-namespace", ns, ErrNotFound)
	}
	f.mu.Unlock()
	return fn()
}

func (f *FakeAdapter) AddDefaultRoute(ns, gateway string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("add-route", ns); err != nil {
		return err
	}
	if !f.Namespaces[ns] {
		return classify("add-route", ns, ErrNotFound)
	}
	f.Routes[ns] = append(f.Routes[ns], gateway)
	f.record("add-route", ns)
	return nil
}

func (f *FakeAdapter) ReplaceFilterRules(ns string, rules []FilterRule, defaultAccept bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("replace-filter-rules", ns); err != nil {
		return err
	}
	if !f.Namespaces[ns] {
		return classify("replace-filter-rules", ns, ErrNotFound)
	}
	f.Filters[ns] = &FakeFilter{
		Rules:         append([]FilterRule(nil), rules...),
		DefaultAccept: defaultAccept,
	}
	f.record("replace-filter-rules", ns)
	return nil
}

func (f *FakeAdapter) DeleteFilterTable(ns string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("delete-filter-table", ns); err != nil {
		return err
	}
	if _, ok := f.Filters[ns]; !ok {
		return classify("delete-filter-table", ns, ErrNotFound)
	}
	delete(f.Filters, ns)
	f.record("delete-filter-table", ns)
	return nil
}

func (f *FakeAdapter) ListFilterRules(ns string) ([]FilterRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.Filters[ns]
	if !ok {
		return nil, classify("list-filter-rules", ns, ErrNotFound)
	}
	return append([]FilterRule(nil), fl.Rules...), nil
}
