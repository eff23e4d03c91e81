// Package cmd implements the CLI subcommands. Each Run* function is invoked
// from main after flag parsing and owns its own output.
package cmd

import (
	"fmt"
	"time"

	"grimm.is/vpcsim/internal/config"
	"grimm.is/vpcsim/internal/logging"
	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/policy"
	"grimm.is/vpcsim/internal/provision"
	"grimm.is/vpcsim/internal/reconcile"
	"grimm.is/vpcsim/internal/topology"
	"grimm.is/vpcsim/internal/verify"
)

// probeTimeout bounds each connectivity probe in verify.
const probeTimeout = 3 * time.Second

// env wires the shared runtime for one command invocation: configuration,
// logger, topology store and the kernel adapter.
type env struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *topology.Store
	adapter netops.Adapter
	namer   netops.Namer
}

func newEnv(configFile string) (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	logging.SetDefault(logger)

	namer := netops.Namer{Prefix: cfg.NamePrefix}

	adapter, err := netops.New(logger, namer)
	if err != nil {
		return nil, err
	}
	adapter = netops.Instrument(adapter)

	var store *topology.Store
	if cfg.StatePath != "" {
		store, err = topology.NewPersistentStore(cfg.StatePath, logger)
		if err != nil {
			return nil, err
		}
	} else {
		store = topology.NewStore(logger)
	}

	return &env{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		adapter: adapter,
		namer:   namer,
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing topology store", "error", err)
	}
}

func (e *env) provisioner() *provision.Provisioner {
	return provision.New(e.adapter, e.store, e.namer, e.cfg.LinkWait(), e.logger)
}

func (e *env) engine() *policy.Engine {
	return policy.NewEngine(e.adapter, e.store, e.namer, e.cfg.DefaultAccept(), e.logger)
}

func (e *env) reconciler() *reconcile.Reconciler {
	return reconcile.New(e.adapter, e.store, e.namer, e.logger)
}

func (e *env) prober() *verify.Prober {
	return verify.NewProber(e.adapter, e.store, e.namer, probeTimeout, e.logger)
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// RunConfigInit writes a commented default config file.
func RunConfigInit(path string) error {
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
