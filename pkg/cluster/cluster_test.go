package cluster_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/rpc/rpctest"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default(t.TempDir())
	cfg.InitBlocks = 2
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BootTimeout = 5 * time.Second
	cfg.SyncTimeout = 5 * time.Second
	return cfg
}

func TestBootReturnsReachableHandles(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	c, err := cluster.Boot(context.Background(), cfg, nw, 4, cluster.Options{})
	require.NoError(t, err)
	defer c.Teardown(context.Background())

	require.Equal(t, 4, c.Size())
	for i, nd := range c.Nodes() {
		assert.Equal(t, i, nd.Index)
		_, err := nd.ChainState(context.Background())
		assert.NoError(t, err)
	}
}

func TestBootTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.BootTimeout = 100 * time.Millisecond

	nw := rpctest.NewNetwork()
	nw.StartDelay = time.Minute

	_, err := cluster.Boot(context.Background(), cfg, nw, 2, cluster.Options{})
	require.Error(t, err)

	var berr *cluster.BootTimeoutError
	require.True(t, errors.As(err, &berr), "expected *BootTimeoutError, got %T: %v", err, err)

	// No partial cluster: everything that was started must be stopped.
	for i := 0; i < nw.Size(); i++ {
		assert.True(t, nw.Node(i).Stopped(), "node %d leaked", i)
	}
}

func TestBootAppliesOptions(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	opts := cluster.Options{
		ExtraArgs: map[int][]string{1: {"-history"}},
		Binaries:  map[int]string{0: "chaind-candidate"},
	}
	c, err := cluster.Boot(context.Background(), cfg, nw, 2, opts)
	require.NoError(t, err)
	defer c.Teardown(context.Background())

	assert.Equal(t, "chaind-candidate", nw.Node(0).Binary())
	assert.Equal(t, cfg.NodeBinary, nw.Node(1).Binary())
	assert.Contains(t, nw.Node(1).Args(), "-history")
	assert.NotContains(t, nw.Node(0).Args(), "-history")
}

func TestInitializeSharedState(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	c, err := cluster.Boot(context.Background(), cfg, nw, 4, cluster.Options{})
	require.NoError(t, err)
	defer c.Teardown(context.Background())

	require.NoError(t, c.InitializeSharedState(context.Background()))

	start := c.StartState()
	assert.EqualValues(t, cfg.InitBlocks*4, start.Height)

	for _, nd := range c.Nodes() {
		st, err := nd.ChainState(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Equal(start), "%s at %s, want %s", nd, st, start)
	}
}

func TestTeardownIdempotent(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	c, err := cluster.Boot(context.Background(), cfg, nw, 3, cluster.Options{})
	require.NoError(t, err)

	// One node exits early; teardown must not trip over it.
	require.NoError(t, c.Node(1).Process.Stop())

	require.NoError(t, c.Teardown(context.Background()))
	require.NoError(t, c.Teardown(context.Background()))

	for i := 0; i < nw.Size(); i++ {
		assert.True(t, nw.Node(i).Stopped(), "node %d still running", i)
	}
}

func TestTeardownRemovesWorkdirs(t *testing.T) {
	cfg := testConfig(t)
	nw := rpctest.NewNetwork()

	c, err := cluster.Boot(context.Background(), cfg, nw, 2, cluster.Options{})
	require.NoError(t, err)

	dir := c.Dir()
	require.DirExists(t, dir)

	require.NoError(t, c.Teardown(context.Background()))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestTeardownKeepsWorkdirs(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeepDirs = true
	nw := rpctest.NewNetwork()

	c, err := cluster.Boot(context.Background(), cfg, nw, 2, cluster.Options{})
	require.NoError(t, err)

	require.NoError(t, c.Teardown(context.Background()))
	assert.DirExists(t, c.Dir())
}
