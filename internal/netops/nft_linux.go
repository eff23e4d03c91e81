//go:build linux

package netops

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// ingressChain is the chain holding the subnet's ingress rule set.
const ingressChain = "ingress"

// nftConn opens an nftables connection scoped to the given namespace.
func (a *LinuxAdapter) nftConn(ns string) (*nftables.Conn, func(), error) {
	if ns == "" {
		conn, err := nftables.New()
		return conn, func() {}, err
	}
	nsh, err := netns.GetFromName(ns)
	if err != nil {
		return nil, nil, err
	}
	conn, err := nftables.New(nftables.WithNetNSFd(int(nsh)))
	if err != nil {
		nsh.Close()
		return nil, nil, err
	}
	return conn, func() { nsh.Close() }, nil
}

// ReplaceFilterRules replaces the namespace's entire ingress rule set in a
// single netlink commit. Rule order in the chain is document order, so first
// match wins. The chain policy carries the default verdict.
func (a *LinuxAdapter) ReplaceFilterRules(ns string, rules []FilterRule, defaultAccept bool) error {
	conn, done, err := a.nftConn(ns)
	if err != nil {
		return classify("replace-filter-rules", ns, err)
	}
	defer done()

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   a.namer.FilterTable(),
	})
	conn.FlushTable(table)

	policy := nftables.ChainPolicyDrop
	if defaultAccept {
		policy = nftables.ChainPolicyAccept
	}
	chain := conn.AddChain(&nftables.Chain{
		Name:     ingressChain,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})

	for _, r := range rules {
		exprs, err := buildRuleExprs(r)
		if err != nil {
			return classify("replace-filter-rules", ns,
				fmt.Errorf("%w: %v", ErrKernelRejected, err))
		}
		conn.AddRule(&nftables.Rule{
			Table:    table,
			Chain:    chain,
			Exprs:    exprs,
			UserData: encodeRuleComment(r),
		})
	}

	// Single Flush commits the whole replacement atomically; a kernel
	// rejection leaves the previous rule set untouched.
	if err := conn.Flush(); err != nil {
		return classify("replace-filter-rules", ns, err)
	}
	a.logger.Debug("filter rules replaced", "namespace", ns, "rules", len(rules))
	return nil
}

func (a *LinuxAdapter) DeleteFilterTable(ns string) error {
	conn, done, err := a.nftConn(ns)
	if err != nil {
		return classify("delete-filter-table", ns, err)
	}
	defer done()

	tables, err := conn.ListTables()
	if err != nil {
		return classify("delete-filter-table", ns, err)
	}
	name := a.namer.FilterTable()
	for _, t := range tables {
		if t.Name == name && t.Family == nftables.TableFamilyINet {
			conn.DelTable(t)
			if err := conn.Flush(); err != nil {
				return classify("delete-filter-table", ns, err)
			}
			a.logger.Debug("filter table deleted", "namespace", ns)
			return nil
		}
	}
	return classify("delete-filter-table", ns, ErrNotFound)
}

func (a *LinuxAdapter) ListFilterRules(ns string) ([]FilterRule, error) {
	conn, done, err := a.nftConn(ns)
	if err != nil {
		return nil, classify("list-filter-rules", ns, err)
	}
	defer done()

	table := &nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   a.namer.FilterTable(),
	}
	chain := &nftables.Chain{Name: ingressChain, Table: table}
	raw, err := conn.GetRules(table, chain)
	if err != nil {
		return nil, classify("list-filter-rules", ns, err)
	}

	var rules []FilterRule
	for _, r := range raw {
		rules = append(rules, decodeRule(r))
	}
	return rules, nil
}

// buildRuleExprs converts one FilterRule into an nftables expression list:
// optional l4proto match, optional destination port match, then the verdict.
func buildRuleExprs(r FilterRule) ([]expr.Any, error) {
	var exprs []expr.Any

	var proto byte
	switch r.Protocol {
	case "tcp":
		proto = unix.IPPROTO_TCP
	case "udp":
		proto = unix.IPPROTO_UDP
	case "icmp":
		proto = unix.IPPROTO_ICMP
	case "any", "":
		proto = 0
	default:
		return nil, fmt.Errorf("unknown protocol %q", r.Protocol)
	}

	if proto != 0 {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     []byte{proto},
			},
		)
	}

	if r.Port != 0 && (r.Protocol == "tcp" || r.Protocol == "udp") {
		// Transport header: destination port at offset 2, 2 bytes.
		exprs = append(exprs,
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseTransportHeader,
				Offset:       2,
				Len:          2,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.BigEndian.PutUint16(r.Port),
			},
		)
	}

	verdict := expr.VerdictDrop
	if r.Action == VerdictAccept {
		verdict = expr.VerdictAccept
	}
	exprs = append(exprs, &expr.Verdict{Kind: verdict})

	return exprs, nil
}

// encodeRuleComment stores the logical rule in the rule's userdata so
// ListFilterRules can round-trip it without reverse-engineering expressions.
func encodeRuleComment(r FilterRule) []byte {
	return []byte(fmt.Sprintf("%s/%d/%s", r.Protocol, r.Port, r.Action))
}

// decodeRule recovers a FilterRule from a kernel rule, preferring the
// userdata annotation and falling back to expression inspection.
func decodeRule(r *nftables.Rule) FilterRule {
	var out FilterRule
	if parts := strings.Split(string(r.UserData), "/"); len(parts) == 3 {
		if port, err := strconv.ParseUint(parts[1], 10, 16); err == nil {
			return FilterRule{Protocol: parts[0], Port: uint16(port), Action: parts[2]}
		}
	}

	out.Protocol = "any"
	out.Action = VerdictDrop
	for _, e := range r.Exprs {
		switch v := e.(type) {
		case *expr.Cmp:
			switch len(v.Data) {
			case 1:
				switch v.Data[0] {
				case unix.IPPROTO_TCP:
					out.Protocol = "tcp"
				case unix.IPPROTO_UDP:
					out.Protocol = "udp"
				case unix.IPPROTO_ICMP:
					out.Protocol = "icmp"
				}
			case 2:
				out.Port = binaryutil.BigEndian.Uint16(v.Data)
			}
		case *expr.Verdict:
			if v.Kind == expr.VerdictAccept {
				out.Action = VerdictAccept
			}
		}
	}
	return out
}
