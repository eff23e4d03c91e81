package validation

import (
	"testing"
)

func TestValidateInterfaceName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"vs-br-vpc1", true},
		{"eth0.100", true},
		{"", false},
		{"way-too-long-interface-name", false},
		{"bad;name", false},
		{"bad name", false},
	}

	for _, tc := range tests {
		err := ValidateInterfaceName(tc.name)
		if tc.valid && err != nil {
			t.Errorf("ValidateInterfaceName(%q) = %v, want nil", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateInterfaceName(%q) = nil, want error", tc.name)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"vpc1", true},
		{"my_subnet-2", true},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
	}

	for _, tc := range tests {
		err := ValidateIdentifier(tc.id)
		if tc.valid && err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v, want nil", tc.id, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateIdentifier(%q) = nil, want error", tc.id)
		}
	}
}

func TestValidateCIDR(t *testing.T) {
	tests := []struct {
		cidr  string
		valid bool
	}{
		{"10.0.0.0/16", true},
		{"192.168.1.0/24", true},
		{"10.0.0.5/16", false}, // not the network address
		{"2001:db8::/32", false},
		{"10.0.0.0", false},
		{"not-a-cidr", false},
	}

	for _, tc := range tests {
		_, err := ValidateCIDR(tc.cidr)
		if tc.valid && err != nil {
			t.Errorf("ValidateCIDR(%q) = %v, want nil", tc.cidr, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateCIDR(%q) = nil, want error", tc.cidr)
		}
	}
}

func TestCIDRContains(t *testing.T) {
	vpc, _ := ValidateCIDR("10.0.0.0/16")
	inside, _ := ValidateCIDR("10.0.1.0/24")
	outside, _ := ValidateCIDR("10.1.0.0/24")

	if !CIDRContains(vpc, inside) {
		t.Error("expected 10.0.0.0/16 to contain 10.0.1.0/24")
	}
	if CIDRContains(vpc, outside) {
		t.Error("expected 10.0.0.0/16 not to contain 10.1.0.0/24")
	}
	if CIDRContains(inside, vpc) {
		t.Error("expected 10.0.1.0/24 not to contain 10.0.0.0/16")
	}
}

func TestCIDROverlaps(t *testing.T) {
	a, _ := ValidateCIDR("10.0.1.0/24")
	b, _ := ValidateCIDR("10.0.1.128/25")
	c, _ := ValidateCIDR("10.0.2.0/24")

	if !CIDROverlaps(a, b) {
		t.Error("expected overlap between 10.0.1.0/24 and 10.0.1.128/25")
	}
	if CIDROverlaps(a, c) {
		t.Error("expected no overlap between 10.0.1.0/24 and 10.0.2.0/24")
	}
}
