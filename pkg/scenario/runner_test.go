package scenario_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/rpc/rpctest"
	"github.com/chainharness/chainharness/pkg/scenario"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default(t.TempDir())
	cfg.InitBlocks = 2
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BootTimeout = 5 * time.Second
	cfg.SyncTimeout = 5 * time.Second
	return cfg
}

func TestBasicScenario(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	entry, ok := scenario.Get("basic")
	require.True(t, ok)

	runner := scenario.NewRunner(cfg, nw)
	res := runner.Run(context.Background(), entry.Name, entry.Hooks(), entry.DefaultParams,
		map[string]interface{}{"extra_args": "-history"})

	require.NoError(t, res.Err)
	assert.Equal(t, scenario.StateTornDown, res.State)
	assert.NotEmpty(t, res.RunID)

	// The scenario's option map flags nodes 1 and 2 only.
	assert.NotContains(t, nw.Node(0).Args(), "-history")
	assert.Contains(t, nw.Node(1).Args(), "-history")
	assert.Contains(t, nw.Node(2).Args(), "-history")
	assert.NotContains(t, nw.Node(3).Args(), "-history")
}

// TestSplitJoinScenario drives the whole partition/rejoin flow: boot 4,
// shared chain, chained topology, split at 2, one side mines ahead,
// per-partition convergence, rejoin, full reconciliation.
func TestSplitJoinScenario(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()
	nw.PropagationDelay = 20 * time.Millisecond

	entry, ok := scenario.Get("split-join")
	require.True(t, ok)

	runner := scenario.NewRunner(cfg, nw)
	res := runner.Run(context.Background(), entry.Name, entry.Hooks(), entry.DefaultParams,
		map[string]interface{}{"blocks": 3})

	require.NoError(t, res.Err)
	assert.Equal(t, scenario.StateTornDown, res.State)

	// All four nodes ended on the dominant chain: shared 8 + 3 mined.
	for i := 0; i < nw.Size(); i++ {
		assert.Equal(t, 11, nw.Node(i).Height(), "node %d", i)
	}
}

func TestDifferentialScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.CandidateBinary = "chaind-candidate"
	cfg.ReferenceBinary = "chaind-stable"
	nw := rpctest.NewNetwork()

	entry, ok := scenario.Get("differential")
	require.True(t, ok)

	runner := scenario.NewRunner(cfg, nw)
	res := runner.Run(context.Background(), entry.Name, entry.Hooks(), entry.DefaultParams, nil)

	require.NoError(t, res.Err)
	require.Equal(t, 2, nw.Size())
	assert.Equal(t, "chaind-candidate", nw.Node(0).Binary())
	assert.Equal(t, "chaind-stable", nw.Node(1).Binary())
}

type failingScenario struct {
	scenario.DefaultHooks
}

func (failingScenario) Run(ctx context.Context, env *scenario.Env) error {
	return errors.New("assertion failed: heights differ")
}

func TestFailureIsCapturedAndTeardownRuns(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	runner := scenario.NewRunner(cfg, nw)
	res := runner.Run(context.Background(), "failing", failingScenario{}, nil, nil)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "assertion failed")
	assert.Equal(t, scenario.StateTornDown, res.State)

	for i := 0; i < nw.Size(); i++ {
		assert.True(t, nw.Node(i).Stopped(), "node %d survived teardown", i)
	}
}

type panickyScenario struct {
	scenario.DefaultHooks
}

func (panickyScenario) Run(ctx context.Context, env *scenario.Env) error {
	panic("boom")
}

func TestPanicIsCapturedAndTeardownRuns(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	runner := scenario.NewRunner(cfg, nw)
	res := runner.Run(context.Background(), "panicky", panickyScenario{}, nil, nil)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")
	assert.Equal(t, scenario.StateTornDown, res.State)

	for i := 0; i < nw.Size(); i++ {
		assert.True(t, nw.Node(i).Stopped(), "node %d survived teardown", i)
	}
}

func TestBootFailureReported(t *testing.T) {
	cfg := testConfig(t)
	cfg.BootTimeout = 100 * time.Millisecond
	nw := rpctest.NewNetwork()
	nw.StartDelay = time.Minute

	runner := scenario.NewRunner(cfg, nw)
	res := runner.Run(context.Background(), "basic", &noopScenario{}, nil, nil)

	require.Error(t, res.Err)
	assert.Equal(t, scenario.StateFailed, res.State)
	assert.False(t, res.Ok())
}

type noopScenario struct {
	scenario.DefaultHooks
}

func (*noopScenario) Run(ctx context.Context, env *scenario.Env) error {
	return nil
}
