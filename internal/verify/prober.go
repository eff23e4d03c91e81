// Package verify probes live connectivity from inside subnet namespaces:
// ICMP to the subnet gateway and, on request, TCP dials to arbitrary
// targets. Probes report what the data path actually does, which is how
// applied policies and peerings are checked end to end.
package verify

import (
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/vpcsim/internal/logging"
	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/topology"
)

// Result is the outcome of one probe.
type Result struct {
	VPC    string
	Subnet string
	Check  string // "ping-gateway" | "tcp"
	Target string
	Err    error
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool { return r.Err == nil }

func (r Result) String() string {
	status := "ok"
	if r.Err != nil {
		status = r.Err.Error()
	}
	return fmt.Sprintf("%s/%s %s %s: %s", r.VPC, r.Subnet, r.Check, r.Target, status)
}

// Prober runs connectivity checks from inside subnet namespaces.
type Prober struct {
	adapter netops.Adapter
	store   *topology.Store
	namer   netops.Namer
	timeout time.Duration
	logger  *logging.Logger

	// Probe implementations, replaceable in tests.
	ping func(addr string, timeout time.Duration) error
	dial func(addr string, timeout time.Duration) error
}

// NewProber creates a Prober with the real ICMP and TCP probes.
func NewProber(adapter netops.Adapter, store *topology.Store, namer netops.Namer, timeout time.Duration, logger *logging.Logger) *Prober {
	if logger == nil {
		logger = logging.Default()
	}
	return &Prober{
		adapter: adapter,
		store:   store,
		namer:   namer,
		timeout: timeout,
		logger:  logger.WithComponent("verify"),
		ping:    icmpPing,
		dial:    tcpDial,
	}
}

// icmpPing sends a handful of ICMP echoes and succeeds if any come back.
func icmpPing(addr string, timeout time.Duration) error {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return fmt.Errorf("ping %s: %w", addr, err)
	}
	// Raw ICMP sockets; the process already needs CAP_NET_ADMIN to exist.
	pinger.SetPrivileged(true)
	pinger.Count = 3
	pinger.Interval = 100 * time.Millisecond
	pinger.Timeout = timeout
	if err := pinger.Run(); err != nil {
		return fmt.Errorf("ping %s: %w", addr, err)
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("ping %s: no reply within %s", addr, timeout)
	}
	return nil
}

func tcpDial(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn.Close()
}

// PingGateway pings the subnet's gateway address from inside the subnet's
// namespace. Success proves the veth pair, bridge attachment, addressing
// and default route are all functional.
func (p *Prober) PingGateway(sub *topology.Subnet) Result {
	res := Result{VPC: sub.VPC, Subnet: sub.Name, Check: "ping-gateway"}

	gw, err := sub.GatewayIP()
	if err != nil {
		res.Err = err
		return res
	}
	res.Target = gw.String()

	ns := p.namer.Namespace(sub.VPC, sub.Name)
	res.Err = p.adapter.RunInNamespace(ns, func() error {
		return p.ping(gw.String(), p.timeout)
	})
	p.logger.Debug("gateway probe", "vpc", sub.VPC, "subnet", sub.Name, "target", res.Target, "ok", res.OK())
	return res
}

// CheckTCP attempts a TCP connection from inside the subnet's namespace to
// host:port. Used to confirm a policy admits or blocks a given port.
func (p *Prober) CheckTCP(sub *topology.Subnet, host string, port uint16) Result {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	res := Result{VPC: sub.VPC, Subnet: sub.Name, Check: "tcp", Target: addr}

	ns := p.namer.Namespace(sub.VPC, sub.Name)
	res.Err = p.adapter.RunInNamespace(ns, func() error {
		return p.dial(addr, p.timeout)
	})
	p.logger.Debug("tcp probe", "vpc", sub.VPC, "subnet", sub.Name, "target", addr, "ok", res.OK())
	return res
}

// VerifyVPC pings every subnet gateway in one VPC.
func (p *Prober) VerifyVPC(vpcName string) ([]Result, error) {
	if _, ok := p.store.GetVPC(vpcName); !ok {
		return nil, topology.NewValidationError("vpc-exists", "VPC %q is not declared", vpcName)
	}
	var out []Result
	for _, sub := range p.store.ListSubnets(vpcName) {
		out = append(out, p.PingGateway(sub))
	}
	return out, nil
}

// VerifyAll pings every subnet gateway in every declared VPC.
func (p *Prober) VerifyAll() []Result {
	var out []Result
	for _, v := range p.store.ListVPCs() {
		for _, sub := range p.store.ListSubnets(v.Name) {
			out = append(out, p.PingGateway(sub))
		}
	}
	return out
}
