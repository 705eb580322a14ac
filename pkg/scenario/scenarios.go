package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
)

// Built-in scenarios. Scenario authors register their own the same way.

func init() {
	Register(Entry{
		Name:        "basic",
		Description: "boot the cluster on a chained topology, settle blocks, and verify every node reports the shared starting chain and matching balances",
		DefaultParams: map[string]interface{}{
			"extra_args": "",
		},
		Hooks: func() Hooks { return &basicScenario{} },
	})

	Register(Entry{
		Name:        "split-join",
		Description: "partition the cluster, let one side mine ahead, verify per-partition convergence and divergence across the boundary, then rejoin and verify the longer chain wins everywhere",
		DefaultParams: map[string]interface{}{
			"blocks": 10,
		},
		Hooks: func() Hooks { return &splitJoinScenario{} },
	})

	Register(Entry{
		Name:        "differential",
		Description: "run one candidate node against reference nodes on a full mesh, mine on the candidate, and verify the builds agree on chain and mempool state",
		DefaultParams: map[string]interface{}{
			"blocks": 5,
		},
		Hooks: func() Hooks { return &differentialScenario{} },
	})
}

// basicScenario is the default four-node smoke test: every node must
// report the shared starting chain, and all wallets must agree with one
// another (each node mined the same share of the starting blocks).
type basicScenario struct {
	DefaultHooks
}

type basicParams struct {
	// ExtraArgs are extra startup flags for nodes 1 and 2 only, so a
	// later split leaves one flagged and one plain node on each side.
	// Which nodes carry the flags is policy of this scenario, not of the
	// harness.
	ExtraArgs string `mapstructure:"extra_args"`
}

func (s *basicScenario) Options(cfg *config.Config, params map[string]interface{}) (cluster.Options, error) {
	var p basicParams
	if err := mapstructure.Decode(params, &p); err != nil {
		return cluster.Options{}, err
	}
	opts := cluster.Options{}
	if p.ExtraArgs != "" {
		args := strings.Fields(p.ExtraArgs)
		opts.ExtraArgs = map[int][]string{1: args, 2: args}
	}
	return opts, nil
}

func (s *basicScenario) Run(ctx context.Context, env *Env) error {
	start := env.Cluster.StartState()

	var balance float64
	for i, nd := range env.Nodes() {
		st, err := nd.ChainState(ctx)
		if err != nil {
			return err
		}
		if !st.Equal(start) {
			return fmt.Errorf("%s reports %s, expected starting chain %s", nd, st, start)
		}

		b, err := nd.Client.Balance(ctx)
		if err != nil {
			return err
		}
		if i == 0 {
			balance = b
		} else if b != balance {
			return fmt.Errorf("%s reports balance %v, node0 reported %v", nd, b, balance)
		}
	}
	return nil
}

// splitJoinScenario drives the partition/rejoin flow end to end.
type splitJoinScenario struct {
	DefaultHooks
}

type splitJoinParams struct {
	Blocks int `mapstructure:"blocks"`
}

func (s *splitJoinScenario) Run(ctx context.Context, env *Env) error {
	var p splitJoinParams
	if err := env.DecodeParams(&p); err != nil {
		return err
	}

	start := env.Cluster.StartState()
	nodes := env.Nodes()

	if err := env.SplitNetwork(ctx); err != nil {
		return err
	}
	boundary := env.Topology.Boundary()
	left, right := nodes[:boundary], nodes[boundary:]

	// Advance the left partition only.
	if _, err := left[0].Client.Generate(ctx, p.Blocks); err != nil {
		return err
	}
	if err := env.Barrier.SyncBlocks(ctx, left); err != nil {
		return err
	}

	// Seed a pending transaction on the right side and settle mempools
	// within that partition only.
	if _, err := right[0].Client.SendToAddress(ctx, "harness", 1.0); err != nil {
		return err
	}
	if err := env.Barrier.SyncMempools(ctx, right); err != nil {
		return err
	}

	for _, nd := range left {
		st, err := nd.ChainState(ctx)
		if err != nil {
			return err
		}
		if st.Height != start.Height+int64(p.Blocks) {
			return fmt.Errorf("%s at height %d, expected %d", nd, st.Height, start.Height+int64(p.Blocks))
		}
	}
	for _, nd := range right {
		st, err := nd.ChainState(ctx)
		if err != nil {
			return err
		}
		if st.Height != start.Height {
			return fmt.Errorf("%s at height %d, expected to still be at %d", nd, st.Height, start.Height)
		}
	}

	// Rejoin; the left partition's chain work dominates everywhere.
	if err := env.JoinNetwork(ctx); err != nil {
		return err
	}
	for _, nd := range nodes {
		st, err := nd.ChainState(ctx)
		if err != nil {
			return err
		}
		if st.Height != start.Height+int64(p.Blocks) {
			return fmt.Errorf("after join, %s at height %d, expected %d", nd, st.Height, start.Height+int64(p.Blocks))
		}
	}
	return nil
}

// differentialScenario mines on the candidate build and requires the
// reference builds to follow it in both dimensions.
type differentialScenario struct {
	DifferentialHooks
}

func (s *differentialScenario) Run(ctx context.Context, env *Env) error {
	var p splitJoinParams
	if err := env.DecodeParams(&p); err != nil {
		return err
	}

	nodes := env.Nodes()
	candidate := nodes[0]

	if _, err := candidate.Client.Generate(ctx, p.Blocks); err != nil {
		return err
	}
	if err := env.Barrier.SyncBlocks(ctx, nodes); err != nil {
		return err
	}

	if _, err := candidate.Client.SendToAddress(ctx, "harness", 1.0); err != nil {
		return err
	}
	return env.Barrier.SyncMempools(ctx, nodes)
}
