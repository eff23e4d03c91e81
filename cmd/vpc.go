package cmd

import (
	"fmt"

	"grimm.is/vpcsim/internal/topology"
)

// RunCreateVPC declares a VPC and provisions its bridge.
func RunCreateVPC(configFile, name, cidr string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.provisioner().CreateVPC(name, cidr); err != nil {
		return err
	}
	fmt.Printf("VPC %s created (%s, bridge %s)\n", name, cidr, e.namer.Bridge(name))
	return nil
}

// RunDeleteVPC tears down one VPC: its peerings, subnets and bridge.
func RunDeleteVPC(configFile, name string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.reconciler().TeardownVPC(name); err != nil {
		return err
	}
	fmt.Printf("VPC %s deleted\n", name)
	return nil
}

// RunAddSubnet declares a subnet and provisions its namespace and veth pair.
func RunAddSubnet(configFile, vpc, name, cidr, kind string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	k, err := topology.ParseSubnetKind(kind)
	if err != nil {
		return err
	}
	if err := e.provisioner().AddSubnet(vpc, name, cidr, k); err != nil {
		return err
	}
	fmt.Printf("Subnet %s/%s created (%s, namespace %s)\n",
		vpc, name, cidr, e.namer.Namespace(vpc, name))
	return nil
}

// RunPeerVPCs connects two VPC bridges with a veth pair.
func RunPeerVPCs(configFile, a, b string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.provisioner().PeerVPCs(a, b); err != nil {
		return err
	}
	fmt.Printf("VPCs %s and %s peered\n", a, b)
	return nil
}

// RunUnpeerVPCs removes the peering link between two VPCs.
func RunUnpeerVPCs(configFile, a, b string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.reconciler().RemovePeering(a, b); err != nil {
		return err
	}
	fmt.Printf("Peering between %s and %s removed\n", a, b)
	return nil
}
