package cmd

import (
	"fmt"
	"strings"

	"grimm.is/vpcsim/internal/topology"
	"grimm.is/vpcsim/internal/verify"
)

// RunVerify probes live connectivity. With no arguments every subnet
// gateway is pinged from inside its namespace; -vpc limits that to one VPC.
// -subnet probes a single subnet, and with -host/-port additionally
// attempts a TCP connection from inside it, which is how an applied policy
// is checked end to end. A failing probe makes the command fail after all
// probes have run.
func RunVerify(configFile, vpcName, subnetRef, host string, port uint) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	prober := e.prober()
	var results []verify.Result

	switch {
	case subnetRef != "":
		sub, err := resolveSubnet(e.store, subnetRef)
		if err != nil {
			return err
		}
		results = append(results, prober.PingGateway(sub))
		if host != "" {
			results = append(results, prober.CheckTCP(sub, host, uint16(port)))
		}
	case vpcName != "":
		results, err = prober.VerifyVPC(vpcName)
		if err != nil {
			return err
		}
	default:
		results = prober.VerifyAll()
	}

	if len(results) == 0 {
		fmt.Println("No subnets to verify")
		return nil
	}

	failed := 0
	for _, r := range results {
		marker := "ok  "
		if !r.OK() {
			marker = "FAIL"
			failed++
		}
		fmt.Printf("%s  %s\n", marker, r.String())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d probes failed", failed, len(results))
	}
	return nil
}

// resolveSubnet accepts either a bare subnet name or "vpc/subnet".
func resolveSubnet(store *topology.Store, ref string) (*topology.Subnet, error) {
	if vpc, name, ok := strings.Cut(ref, "/"); ok {
		sub, found := store.GetSubnet(vpc, name)
		if !found {
			return nil, topology.NewValidationError("subnet-exists",
				"subnet %q is not declared in VPC %q", name, vpc)
		}
		return sub, nil
	}
	return store.FindSubnet(ref)
}
