// Package metrics instruments the simulator's kernel operations with
// Prometheus counters. The registry is a process-wide singleton.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all simulator metrics.
type Registry struct {
	// Kernel operations issued through the primitive adapter.
	KernelOpsTotal  *prometheus.CounterVec
	KernelOpsFailed *prometheus.CounterVec

	// Provisioning outcomes.
	ProvisionTotal *prometheus.CounterVec
	RollbackTotal  *prometheus.CounterVec

	// Policy applications.
	PolicyApplied *prometheus.CounterVec
	PolicyRevoked prometheus.Counter

	// Cleanup runs and objects it could not remove.
	CleanupRuns     prometheus.Counter
	CleanupFailures prometheus.Counter
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.KernelOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsim_kernel_ops_total",
		Help: "Kernel operations issued, by operation",
	}, []string{"op"})

	r.KernelOpsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsim_kernel_ops_failed_total",
		Help: "Kernel operations that failed, by operation and error kind",
	}, []string{"op", "kind"})

	r.ProvisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsim_provision_total",
		Help: "Provisioning operations, by entity kind and outcome",
	}, []string{"entity", "outcome"})

	r.RollbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsim_rollback_total",
		Help: "Rollbacks triggered by mid-sequence provisioning failures",
	}, []string{"entity"})

	r.PolicyApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpcsim_policy_applied_total",
		Help: "Policy documents applied, by outcome",
	}, []string{"outcome"})

	r.PolicyRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpcsim_policy_revoked_total",
		Help: "Policy rule sets revoked",
	})

	r.CleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpcsim_cleanup_runs_total",
		Help: "Full cleanup invocations",
	})

	r.CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpcsim_cleanup_failures_total",
		Help: "Objects cleanup could not remove",
	})

	return r
}
