//go:build linux

package netops

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"grimm.is/vpcsim/internal/logging"
)

// netnsRunDir is where ip-netns and netns.NewNamed mount named namespaces.
const netnsRunDir = "/var/run/netns"

// LinuxAdapter implements Adapter against the live kernel via netlink, netns,
// nftables and ethtool.
type LinuxAdapter struct {
	logger *logging.Logger
	namer  Namer
}

// NewLinuxAdapter returns an adapter that mutates live kernel state.
func NewLinuxAdapter(logger *logging.Logger, namer Namer) *LinuxAdapter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LinuxAdapter{
		logger: logger.WithComponent("netops"),
		namer:  namer,
	}
}

// New returns the platform adapter for this host.
func New(logger *logging.Logger, namer Namer) (Adapter, error) {
	return NewLinuxAdapter(logger, namer), nil
}

// handleFor returns a netlink handle scoped to the given namespace, plus a
// cleanup func. An empty namespace name means the host namespace.
func (a *LinuxAdapter) handleFor(ns string) (*netlink.Handle, func(), error) {
	if ns == "" {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, nil, err
		}
		return h, func() { h.Close() }, nil
	}
	nsh, err := netns.GetFromName(ns)
	if err != nil {
		return nil, nil, err
	}
	h, err := netlink.NewHandleAt(nsh)
	if err != nil {
		nsh.Close()
		return nil, nil, err
	}
	return h, func() { h.Close(); nsh.Close() }, nil
}

// inNamespace runs fn with the current thread switched into the named
// namespace, restoring the original namespace afterwards. Used for
// operations that have no handle-based API (ethtool ioctls).
func inNamespace(ns string, fn func() error) error {
	if ns == "" {
		return fn()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer orig.Close()

	target, err := netns.GetFromName(ns)
	if err != nil {
		return err
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return err
	}
	defer netns.Set(orig)

	return fn()
}

func (a *LinuxAdapter) CreateNamespace(name string) error {
	if _, err := netns.GetFromName(name); err == nil {
		return classify("create-namespace", name, ErrAlreadyExists)
	}

	// NewNamed switches the calling thread into the new namespace, so pin
	// the thread and restore the original before returning.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return classify("create-namespace", name, err)
	}
	defer orig.Close()

	nsh, err := netns.NewNamed(name)
	if err != nil {
		netns.Set(orig)
		return classify("create-namespace", name, err)
	}
	nsh.Close()

	if err := netns.Set(orig); err != nil {
		return classify("create-namespace", name, err)
	}

	// Loopback up inside the new namespace.
	h, done, err := a.handleFor(name)
	if err != nil {
		return classify("create-namespace", name, err)
	}
	defer done()
	if lo, err := h.LinkByName("lo"); err == nil {
		h.LinkSetUp(lo)
	}

	a.logger.Debug("namespace created", "name", name)
	return nil
}

func (a *LinuxAdapter) DeleteNamespace(name string) error {
	if err := netns.DeleteNamed(name); err != nil {
		return classify("delete-namespace", name, err)
	}
	a.logger.Debug("namespace deleted", "name", name)
	return nil
}

func (a *LinuxAdapter) NamespaceExists(name string) (bool, error) {
	nsh, err := netns.GetFromName(name)
	if err != nil {
		if IsBenignDelete(classify("get-namespace", name, err)) {
			return false, nil
		}
		return false, classify("get-namespace", name, err)
	}
	nsh.Close()
	return true, nil
}

func (a *LinuxAdapter) ListNamespaces() ([]string, error) {
	entries, err := os.ReadDir(netnsRunDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, classify("list-namespaces", netnsRunDir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (a *LinuxAdapter) CreateBridge(name string) error {
	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(br); err != nil {
		return classify("create-bridge", name, err)
	}
	if err := netlink.LinkSetUp(br); err != nil {
		return classify("create-bridge", name, err)
	}
	a.logger.Debug("bridge created", "name", name)
	return nil
}

func (a *LinuxAdapter) DeleteBridge(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return classify("delete-bridge", name, err)
	}
	if _, ok := link.(*netlink.Bridge); !ok {
		return classify("delete-bridge", name,
			fmt.Errorf("%w: %s is a %s, not a bridge", ErrKernelRejected, name, link.Type()))
	}
	netlink.LinkSetDown(link)
	if err := netlink.LinkDel(link); err != nil {
		return classify("delete-bridge", name, err)
	}
	a.logger.Debug("bridge deleted", "name", name)
	return nil
}

func (a *LinuxAdapter) CreateVethPair(name, peer string) error {
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		PeerName:  peer,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return classify("create-veth", name, err)
	}

	// Veth pairs have no real hardware; simulated checksum offload produces
	// bad checksums and hanging connections, so turn it off on both ends
	// while they are still in the host namespace.
	a.disableTxOffload(name)
	a.disableTxOffload(peer)

	a.logger.Debug("veth pair created", "name", name, "peer", peer)
	return nil
}

func (a *LinuxAdapter) disableTxOffload(iface string) {
	et, err := ethtool.NewEthtool()
	if err != nil {
		a.logger.Warn("ethtool unavailable, leaving tx offload enabled", "iface", iface, "error", err)
		return
	}
	defer et.Close()
	if err := et.Change(iface, map[string]bool{"tx-checksum-ip-generic": false}); err != nil {
		a.logger.Debug("tx offload not disabled", "iface", iface, "error", err)
	}
}

func (a *LinuxAdapter) DeleteLink(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return classify("delete-link", name, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return classify("delete-link", name, err)
	}
	a.logger.Debug("link deleted", "name", name)
	return nil
}

func (a *LinuxAdapter) MoveLinkToNamespace(link, ns string) error {
	l, err := netlink.LinkByName(link)
	if err != nil {
		return classify("move-link", link, err)
	}
	nsh, err := netns.GetFromName(ns)
	if err != nil {
		return classify("move-link", link, err)
	}
	defer nsh.Close()
	if err := netlink.LinkSetNsFd(l, int(nsh)); err != nil {
		return classify("move-link", link, err)
	}
	a.logger.Debug("link moved", "name", link, "namespace", ns)
	return nil
}

func (a *LinuxAdapter) AttachToBridge(link, bridge string) error {
	l, err := netlink.LinkByName(link)
	if err != nil {
		return classify("attach-to-bridge", link, err)
	}
	br, err := netlink.LinkByName(bridge)
	if err != nil {
		return classify("attach-to-bridge", bridge, err)
	}
	if err := netlink.LinkSetMaster(l, br); err != nil {
		return classify("attach-to-bridge", link, err)
	}
	a.logger.Debug("link attached", "name", link, "bridge", bridge)
	return nil
}

func (a *LinuxAdapter) SetLinkUp(ns, link string) error {
	h, done, err := a.handleFor(ns)
	if err != nil {
		return classify("link-up", link, err)
	}
	defer done()
	l, err := h.LinkByName(link)
	if err != nil {
		return classify("link-up", link, err)
	}
	if err := h.LinkSetUp(l); err != nil {
		return classify("link-up", link, err)
	}
	return nil
}

func (a *LinuxAdapter) WaitLinkUp(ns, link string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		h, done, err := a.handleFor(ns)
		if err != nil {
			return classify("wait-link-up", link, err)
		}
		l, err := h.LinkByName(link)
		done()
		if err != nil {
			return classify("wait-link-up", link, err)
		}
		if l.Attrs().Flags&net.FlagUp != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return classify("wait-link-up", link,
				fmt.Errorf("%w: link did not come up within %s", ErrKernelRejected, timeout))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (a *LinuxAdapter) ListLinks(ns string) ([]string, error) {
	h, done, err := a.handleFor(ns)
	if err != nil {
		return nil, classify("list-links", ns, err)
	}
	defer done()
	links, err := h.LinkList()
	if err != nil {
		return nil, classify("list-links", ns, err)
	}
	var names []string
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	return names, nil
}

func (a *LinuxAdapter) AssignAddress(ns, link, cidr string) error {
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return classify("assign-address", link,
			fmt.Errorf("%w: bad address %q: %v", ErrKernelRejected, cidr, err))
	}
	h, done, err := a.handleFor(ns)
	if err != nil {
		return classify("assign-address", link, err)
	}
	defer done()
	l, err := h.LinkByName(link)
	if err != nil {
		return classify("assign-address", link, err)
	}
	if err := h.AddrAdd(l, addr); err != nil {
		return classify("assign-address", link, err)
	}
	a.logger.Debug("address assigned", "link", link, "namespace", ns, "addr", cidr)
	return nil
}

func (a *LinuxAdapter) RemoveAddress(ns, link, cidr string) error {
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return classify("remove-address", link,
			fmt.Errorf("%w: bad address %q: %v", ErrKernelRejected, cidr, err))
	}
	h, done, err := a.handleFor(ns)
	if err != nil {
		return classify("remove-address", link, err)
	}
	defer done()
	l, err := h.LinkByName(link)
	if err != nil {
		return classify("remove-address", link, err)
	}
	if err := h.AddrDel(l, addr); err != nil {
		return classify("remove-address", link, err)
	}
	a.logger.Debug("address removed", "link", link, "namespace", ns, "addr", cidr)
	return nil
}

func (a *LinuxAdapter) RunInNamespace(ns string, fn func() error) error {
	return inNamespace(ns, fn)
}

func (a *LinuxAdapter) AddDefaultRoute(ns, gateway string) error {
	h, done, err := a.handleFor(ns)
	if err != nil {
		return classify("add-route", ns, err)
	}
	defer done()
	addr, err := netlink.ParseAddr(gateway + "/32")
	if err != nil {
		return classify("add-route", ns,
			fmt.Errorf("%w: bad gateway %q: %v", ErrKernelRejected, gateway, err))
	}
	route := &netlink.Route{
		Scope: netlink.SCOPE_UNIVERSE,
		Gw:    addr.IP,
	}
	if err := h.RouteAdd(route); err != nil {
		return classify("add-route", ns, err)
	}
	a.logger.Debug("default route added", "namespace", ns, "gateway", gateway)
	return nil
}
