package cmd

import (
	"fmt"

	"grimm.is/vpcsim/internal/policy"
)

// RunApplyPolicy loads a policy document and installs its rule set on the
// target subnet, replacing whatever set was applied before.
func RunApplyPolicy(configFile, policyFile string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	doc, err := policy.LoadDocument(policyFile)
	if err != nil {
		return err
	}
	if err := e.engine().Apply(doc); err != nil {
		return err
	}
	fmt.Printf("Policy applied to subnet %s (%d rules, default %s)\n",
		doc.Subnet, len(doc.Ingress), e.cfg.PolicyDefault)
	return nil
}

// RunRevokePolicy removes every rule applied to the named subnet.
func RunRevokePolicy(configFile, subnetRef string) error {
	e, err := newEnv(configFile)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.engine().Revoke(subnetRef); err != nil {
		return err
	}
	fmt.Printf("Policy revoked from subnet %s\n", subnetRef)
	return nil
}
