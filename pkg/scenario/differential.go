package scenario

import (
	"context"

	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
)

// DifferentialHooks runs node 0 under the candidate build and every
// other node under the reference build, for behavioral-equivalence
// testing. The default topology is fully connected rather than chained,
// so every reference node observes the candidate directly.
type DifferentialHooks struct {
	DefaultHooks

	// Nodes overrides the cluster size; 0 means the differential default
	// of two (one candidate, one reference).
	Nodes int
}

func (h DifferentialHooks) NodeCount(cfg *config.Config) int {
	if h.Nodes > 0 {
		return h.Nodes
	}
	return 2
}

func (h DifferentialHooks) Options(cfg *config.Config, params map[string]interface{}) (cluster.Options, error) {
	n := h.NodeCount(cfg)
	binaries := make(map[int]string, n)
	for i := 0; i < n; i++ {
		binaries[i] = cfg.Binary(i, true)
	}
	return cluster.Options{Binaries: binaries}, nil
}

func (h DifferentialHooks) SetupNetwork(ctx context.Context, env *Env) error {
	if err := env.Topology.ApplyFull(ctx); err != nil {
		return err
	}
	return env.Barrier.SyncBlocks(ctx, env.Nodes())
}
