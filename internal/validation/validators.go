// Package validation provides input validators for logical names and CIDRs
// before they are turned into kernel object names.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	// Valid interface name: alphanumeric, dash, underscore, dot, max 15 chars (IFNAMSIZ-1)
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Valid logical identifier: alphanumeric, dash, underscore
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Characters that should never appear in anything handed to the kernel
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
)

// ValidateInterfaceName validates a network interface name.
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}

	if len(name) > 15 {
		return fmt.Errorf("interface name too long (max 15 characters): %s", name)
	}

	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %s (must be alphanumeric with -_.)", name)
	}

	for _, char := range dangerousChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("interface name contains dangerous character: %s", char)
		}
	}

	return nil
}

// ValidateIdentifier validates a logical name (VPC names, subnet names).
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > 63 {
		return fmt.Errorf("identifier too long (max 63 characters): %s", id)
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_)", id)
	}

	return nil
}

// ValidateCIDR validates an IPv4 CIDR block and returns the parsed network.
// The address must be the network address itself (10.0.0.0/16, not 10.0.0.5/16).
func ValidateCIDR(cidr string) (*net.IPNet, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("invalid CIDR %q: only IPv4 is supported", cidr)
	}
	if !ip.Equal(ipNet.IP) {
		return nil, fmt.Errorf("invalid CIDR %q: address is not the network address (want %s)", cidr, ipNet)
	}
	return ipNet, nil
}

// CIDRContains reports whether outer fully contains inner.
func CIDRContains(outer, inner *net.IPNet) bool {
	outerOnes, _ := outer.Mask.Size()
	innerOnes, _ := inner.Mask.Size()
	return outerOnes <= innerOnes && outer.Contains(inner.IP)
}

// CIDROverlaps reports whether the two networks share any addresses.
func CIDROverlaps(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}
