package scenario

import (
	"context"

	"github.com/imdario/mergo"
	"github.com/mitchellh/mapstructure"

	"github.com/chainharness/chainharness/pkg/barrier"
	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/node"
	"github.com/chainharness/chainharness/pkg/topology"
)

// SyncMode selects which dimensions SyncAll settles.
type SyncMode int

const (
	ModeBoth SyncMode = iota
	ModeBlocks
	ModeMempool
)

// Env is the synchronized cluster handed to the scenario body. It pairs
// topology mutations with the sync scopes that are valid for them, so
// scenario authors cannot accidentally wait on a barrier that has no
// termination guarantee.
type Env struct {
	Config   *config.Config
	Cluster  *cluster.Cluster
	Topology *topology.Controller
	Barrier  *barrier.Barrier

	params map[string]interface{}
}

// Nodes returns the ordered node handles of the cluster.
func (e *Env) Nodes() []*node.Node {
	return e.Cluster.Nodes()
}

// DecodeParams decodes the run's --param key-values into out, leaving
// fields absent from the params at their defaults.
func (e *Env) DecodeParams(out interface{}) error {
	return mapstructure.Decode(e.params, out)
}

// SplitNetwork partitions the cluster down the middle. Deliberately no
// barrier follows: the partitions are now free to diverge.
func (e *Env) SplitNetwork(ctx context.Context) error {
	return e.Topology.Split(ctx, e.Cluster.Size()/2)
}

// JoinNetwork bridges a previously split network and settles blocks
// across the whole cluster. Mempools are not synced here; they might
// never converge after a join.
func (e *Env) JoinNetwork(ctx context.Context) error {
	if err := e.Topology.Join(ctx); err != nil {
		return err
	}
	return e.Barrier.SyncBlocks(ctx, e.Nodes())
}

// SyncAll settles the requested dimensions within each current
// partition. While a split is active this syncs each side separately;
// it never issues a whole-cluster mempool barrier across the boundary.
func (e *Env) SyncAll(ctx context.Context, mode SyncMode) error {
	for _, part := range e.Topology.Partitions() {
		if mode == ModeBoth || mode == ModeBlocks {
			if err := e.Barrier.SyncBlocks(ctx, part); err != nil {
				return err
			}
		}
		if mode == ModeBoth || mode == ModeMempool {
			if err := e.Barrier.SyncMempools(ctx, part); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeParams layers run-time overrides on top of the scenario's
// defaults.
func mergeParams(defaults, overrides map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(overrides))
	for k, v := range overrides {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, defaults); err != nil {
		return nil, err
	}
	return merged, nil
}
