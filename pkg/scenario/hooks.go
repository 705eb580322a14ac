package scenario

import (
	"context"

	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
)

// Hooks is the capability interface a scenario implements. DefaultHooks
// supplies baseline behavior for everything except the scenario body;
// concrete scenarios embed it and override what they need.
type Hooks interface {
	// NodeCount is the cluster size for this scenario.
	NodeCount(cfg *config.Config) int

	// Options resolves the per-node startup parameters, once, before
	// boot; params are the merged scenario parameters.
	Options(cfg *config.Config, params map[string]interface{}) (cluster.Options, error)

	// SetupNetwork applies the scenario's default topology and settles
	// initial state.
	SetupNetwork(ctx context.Context, env *Env) error

	// Run is the scenario body. Any error it returns, or panic it raises,
	// is captured at the driver boundary and becomes the run's failure
	// cause.
	Run(ctx context.Context, env *Env) error
}

// DefaultHooks wires the cluster as a chain (0-1, 1-2, ...) and settles
// confirmed-chain state across the whole cluster before the body runs.
// Only blocks are synced here; mempools might not converge after
// topology changes and are the scenario's own business.
type DefaultHooks struct{}

func (DefaultHooks) NodeCount(cfg *config.Config) int {
	return cfg.Nodes
}

func (DefaultHooks) Options(cfg *config.Config, params map[string]interface{}) (cluster.Options, error) {
	return cluster.Options{}, nil
}

func (DefaultHooks) SetupNetwork(ctx context.Context, env *Env) error {
	if err := env.Topology.ApplyChain(ctx); err != nil {
		return err
	}
	return env.Barrier.SyncBlocks(ctx, env.Nodes())
}
