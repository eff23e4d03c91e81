package netops

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Namer derives kernel object names deterministically from logical VPC and
// subnet names. Interface names stay within IFNAMSIZ (15 chars) by combining
// a short readable fragment with an FNV-1a hash of the fully qualified
// logical name. Determinism is what makes re-create detectable as
// AlreadyExists and lets cleanup find objects without a persisted mapping.
type Namer struct {
	Prefix string
}

// DefaultNamer uses the standard "vs" prefix.
var DefaultNamer = Namer{Prefix: "vs"}

// Bridge returns the bridge name for a VPC, e.g. "vsb-vpc1-a1b2c3".
func (n Namer) Bridge(vpc string) string {
	return fmt.Sprintf("%sb-%s-%s", n.Prefix, frag(vpc, 4), hash6(vpc))
}

// Namespace returns the namespace name for a subnet. Namespace names are not
// subject to IFNAMSIZ, so they stay fully readable.
func (n Namer) Namespace(vpc, subnet string) string {
	return fmt.Sprintf("%s-%s-%s", n.Prefix, vpc, subnet)
}

// VethHost returns the host-side veth name for a subnet (attached to the
// VPC bridge).
func (n Namer) VethHost(vpc, subnet string) string {
	return n.Prefix + "h" + hash8(vpc+"/"+subnet)
}

// VethPeer returns the namespace-side veth name for a subnet.
func (n Namer) VethPeer(vpc, subnet string) string {
	return n.Prefix + "n" + hash8(vpc+"/"+subnet)
}

// PeeringVeths returns the two veth end names for a peering. The pair is
// canonicalized so (a,b) and (b,a) produce identical names.
func (n Namer) PeeringVeths(a, b string) (string, string) {
	if b < a {
		a, b = b, a
	}
	h := hash8(a + "|" + b)
	return n.Prefix + "p" + h, n.Prefix + "q" + h
}

// FilterTable returns the nftables table name used inside a subnet namespace.
func (n Namer) FilterTable() string {
	return n.Prefix + "-filter"
}

// frag lowercases a logical name, strips everything but alphanumerics, and
// truncates to max chars.
func frag(s string, max int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= max {
			break
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}

func hash8(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

func hash6(s string) string {
	return hash8(s)[:6]
}
