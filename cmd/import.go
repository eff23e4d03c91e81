package cmd

import (
	"fmt"

	"grimm.is/vpcsim/internal/topology"
)

// RunImport provisions a whole topology from a YAML manifest in document
// order: VPCs, then subnets, then peerings. Provisioning stops at the first
// failing entity; already-provisioned entities stay up.
func RunImport(configFile, manifestFile string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	m, err := topology.LoadManifest(manifestFile)
	if err != nil {
		return err
	}
	if err := e.provisioner().ApplyManifest(m); err != nil {
		return err
	}

	subnets := 0
	for _, v := range m.VPCs {
		subnets += len(v.Subnets)
	}
	fmt.Printf("Imported %d VPCs, %d subnets, %d peerings from %s\n",
		len(m.VPCs), subnets, len(m.Peerings), manifestFile)
	return nil
}
