package barrier_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainharness/chainharness/pkg/barrier"
	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/rpc/rpctest"
	"github.com/chainharness/chainharness/pkg/topology"
)

func bootChained(t *testing.T, n int, cfg *config.Config) (*cluster.Cluster, *topology.Controller, *barrier.Barrier, *rpctest.Network) {
	t.Helper()

	nw := rpctest.NewNetwork()
	c, err := cluster.Boot(context.Background(), cfg, nw, n, cluster.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Teardown(context.Background()) })

	topo := topology.NewController(c.Nodes())
	require.NoError(t, topo.ApplyChain(context.Background()))

	return c, topo, barrier.New(cfg, topo), nw
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default(t.TempDir())
	cfg.InitBlocks = 0
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BootTimeout = 5 * time.Second
	cfg.SyncTimeout = 5 * time.Second
	return cfg
}

func TestSyncBlocksConverges(t *testing.T) {
	cfg := testConfig(t)
	c, _, bar, nw := bootChained(t, 4, cfg)
	ctx := context.Background()

	// Delay gossip so the barrier has to poll at least once.
	nw.PropagationDelay = 50 * time.Millisecond

	_, err := c.Node(0).Client.Generate(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, bar.SyncBlocks(ctx, c.Nodes()))

	want, err := c.Node(0).ChainState(ctx)
	require.NoError(t, err)
	for _, nd := range c.Nodes() {
		st, err := nd.ChainState(ctx)
		require.NoError(t, err)
		assert.True(t, st.Equal(want), "%s at %s, want %s", nd, st, want)
	}
}

func TestWaitUntilEqualTimeout(t *testing.T) {
	cfg := testConfig(t)
	c, _, bar, nw := bootChained(t, 4, cfg)
	ctx := context.Background()

	// One member can never match.
	nw.Node(3).Freeze()

	_, err := c.Node(0).Client.Generate(ctx, 2)
	require.NoError(t, err)

	timeout := 300 * time.Millisecond
	start := time.Now()
	err = bar.WaitUntilEqual(ctx, c.Nodes(), barrier.ChainDim, timeout)
	elapsed := time.Since(start)

	require.Error(t, err)
	terr, ok := err.(*barrier.TimeoutError)
	require.True(t, ok, "expected *TimeoutError, got %T: %v", err, err)
	assert.Len(t, terr.Last, 4)

	// Must give up within timeout plus one polling interval (plus some
	// scheduling slack), not hang.
	assert.Less(t, elapsed, timeout+cfg.PollInterval+200*time.Millisecond)
}

func TestSyncMempoolsWithinPartition(t *testing.T) {
	cfg := testConfig(t)
	c, topo, bar, _ := bootChained(t, 4, cfg)
	ctx := context.Background()

	require.NoError(t, topo.Split(ctx, 2))

	left := c.Nodes()[:2]
	_, err := c.Node(0).Client.SendToAddress(ctx, "x", 1.0)
	require.NoError(t, err)

	require.NoError(t, bar.SyncMempools(ctx, left))

	m0, err := c.Node(0).MempoolState(ctx)
	require.NoError(t, err)
	m1, err := c.Node(1).MempoolState(ctx)
	require.NoError(t, err)
	require.Len(t, m0, 1)
	assert.True(t, m0.Equal(m1))
}

func TestSyncMempoolsRejectedAcrossSplit(t *testing.T) {
	cfg := testConfig(t)
	c, topo, bar, _ := bootChained(t, 4, cfg)
	ctx := context.Background()

	require.NoError(t, topo.Split(ctx, 2))

	err := bar.SyncMempools(ctx, c.Nodes())
	require.Error(t, err)
	serr, ok := err.(*barrier.InvalidScopeError)
	require.True(t, ok, "expected *InvalidScopeError, got %T", err)
	assert.Equal(t, 2, serr.Boundary)

	// After a join the same barrier is legal again.
	require.NoError(t, topo.Join(ctx))
	require.NoError(t, bar.SyncMempools(ctx, c.Nodes()))
}

func TestWaitUntilEqualCancellable(t *testing.T) {
	cfg := testConfig(t)
	c, _, bar, nw := bootChained(t, 4, cfg)

	nw.Node(3).Freeze()
	_, err := c.Node(0).Client.Generate(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = bar.WaitUntilEqual(ctx, c.Nodes(), barrier.ChainDim, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
