package cmd

import "fmt"

// RunStatus prints the declared topology: every VPC with its subnets and
// kernel object names, and the peering links between VPCs.
func RunStatus(configFile string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	vpcs := e.store.ListVPCs()
	if len(vpcs) == 0 {
		fmt.Println("No VPCs declared")
		return nil
	}

	for _, v := range vpcs {
		fmt.Printf("VPC %s  %s  [%s]  bridge=%s\n", v.Name, v.CIDR, v.State, e.namer.Bridge(v.Name))
		for _, sub := range e.store.ListSubnets(v.Name) {
			policyMark := ""
			if sub.HasPolicy {
				policyMark = "  policy=applied"
			}
			fmt.Printf("  subnet %-12s %-18s %-8s [%s]  ns=%s%s\n",
				sub.Name, sub.CIDR, sub.Kind, sub.State,
				e.namer.Namespace(sub.VPC, sub.Name), policyMark)
		}
	}

	peerings := e.store.ListPeerings()
	if len(peerings) > 0 {
		fmt.Println()
		for _, p := range peerings {
			endA, endB := e.namer.PeeringVeths(p.A, p.B)
			fmt.Printf("peering %s <-> %s  [%s]  links=%s,%s\n", p.A, p.B, p.State, endA, endB)
		}
	}
	return nil
}

// RunDiff prints a unified diff between the declared topology and the
// kernel's managed objects. No output means the two are in sync.
func RunDiff(configFile string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	diff, err := e.reconciler().Diff()
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Println("Kernel state matches declared topology")
		return nil
	}
	fmt.Print(diff)
	return fmt.Errorf("kernel state has drifted from the declared topology")
}
