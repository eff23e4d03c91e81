package policy

import (
	"errors"
	"fmt"
	"strings"

	"grimm.is/vpcsim/internal/logging"
	"grimm.is/vpcsim/internal/metrics"
	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/topology"
)

// Engine applies and revokes security policies. The whole rule set for a
// subnet is replaced in one atomic kernel commit, so re-applying a document
// never doubles rules and a mid-set kernel rejection leaves the previous
// set untouched.
type Engine struct {
	adapter       netops.Adapter
	store         *topology.Store
	namer         netops.Namer
	defaultAccept bool
	logger        *logging.Logger
}

// NewEngine creates a policy engine. defaultAccept selects the verdict for
// traffic no rule matches once a policy is applied.
func NewEngine(adapter netops.Adapter, store *topology.Store, namer netops.Namer, defaultAccept bool, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		adapter:       adapter,
		store:         store,
		namer:         namer,
		defaultAccept: defaultAccept,
		logger:        logger.WithComponent("policy"),
	}
}

// resolve finds the subnet a document targets. The reference is either a
// bare subnet name or "vpc/subnet".
func (e *Engine) resolve(ref string) (*topology.Subnet, error) {
	if vpc, name, ok := strings.Cut(ref, "/"); ok {
		sub, found := e.store.GetSubnet(vpc, name)
		if !found {
			return nil, topology.NewValidationError("subnet-exists",
				"subnet %q is not declared in VPC %q", name, vpc)
		}
		return sub, nil
	}
	return e.store.FindSubnet(ref)
}

// Apply installs the document's rule set on its target subnet, replacing
// any previously applied set.
func (e *Engine) Apply(doc *Document) error {
	if err := doc.Validate(); err != nil {
		metrics.Get().PolicyApplied.WithLabelValues("validation-error").Inc()
		return err
	}

	sub, err := e.resolve(doc.Subnet)
	if err != nil {
		metrics.Get().PolicyApplied.WithLabelValues("validation-error").Inc()
		return err
	}

	ns := e.namer.Namespace(sub.VPC, sub.Name)
	if err := e.adapter.ReplaceFilterRules(ns, doc.FilterRules(), e.defaultAccept); err != nil {
		metrics.Get().PolicyApplied.WithLabelValues("kernel-error").Inc()
		return fmt.Errorf("apply policy to subnet %s/%s: %w", sub.VPC, sub.Name, err)
	}

	e.store.SetSubnetPolicy(sub.VPC, sub.Name, true)
	metrics.Get().PolicyApplied.WithLabelValues("ok").Inc()
	e.logger.Info("policy applied",
		"vpc", sub.VPC, "subnet", sub.Name, "rules", len(doc.Ingress))
	return nil
}

// Revoke removes every filter rule attributed to the subnet. A subnet with
// no rules is not an error.
func (e *Engine) Revoke(subnetRef string) error {
	sub, err := e.resolve(subnetRef)
	if err != nil {
		return err
	}

	ns := e.namer.Namespace(sub.VPC, sub.Name)
	if err := e.adapter.DeleteFilterTable(ns); err != nil && !errors.Is(err, netops.ErrNotFound) {
		return fmt.Errorf("revoke policy on subnet %s/%s: %w", sub.VPC, sub.Name, err)
	}

	e.store.SetSubnetPolicy(sub.VPC, sub.Name, false)
	metrics.Get().PolicyRevoked.Inc()
	e.logger.Info("policy revoked", "vpc", sub.VPC, "subnet", sub.Name)
	return nil
}
