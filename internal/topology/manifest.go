package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Manifest is a declarative topology file: every VPC, subnet and peering to
// create in one command. Entries are applied in document order.
type Manifest struct {
	VPCs     []ManifestVPC     `yaml:"vpcs"`
	Peerings []ManifestPeering `yaml:"peerings"`
}

// ManifestVPC declares one VPC and its subnets.
type ManifestVPC struct {
	Name    string           `yaml:"name"`
	CIDR    string           `yaml:"cidr"`
	Subnets []ManifestSubnet `yaml:"subnets"`
}

// ManifestSubnet declares one subnet.
type ManifestSubnet struct {
	Name string `yaml:"name"`
	CIDR string `yaml:"cidr"`
	Kind string `yaml:"kind"`
}

// ManifestPeering declares one unordered VPC pair.
type ManifestPeering struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// LoadManifest reads and decodes a YAML topology manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML topology manifest from bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	for i, v := range m.VPCs {
		if v.Name == "" || v.CIDR == "" {
			return nil, NewValidationError("manifest-vpc", "vpcs[%d] needs both name and cidr", i)
		}
		for j, sub := range v.Subnets {
			if sub.Name == "" || sub.CIDR == "" {
				return nil, NewValidationError("manifest-subnet",
					"vpcs[%d].subnets[%d] needs both name and cidr", i, j)
			}
			if sub.Kind == "" {
				m.VPCs[i].Subnets[j].Kind = string(KindPrivate)
			} else if _, err := ParseSubnetKind(sub.Kind); err != nil {
				return nil, err
			}
		}
	}
	for i, p := range m.Peerings {
		if p.A == "" || p.B == "" {
			return nil, NewValidationError("manifest-peering", "peerings[%d] needs both a and b", i)
		}
	}
	return &m, nil
}
