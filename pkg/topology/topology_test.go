package topology_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainharness/chainharness/pkg/cluster"
	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/rpc/rpctest"
	"github.com/chainharness/chainharness/pkg/topology"
)

func bootCluster(t *testing.T, n int) (*cluster.Cluster, *rpctest.Network) {
	t.Helper()

	cfg := config.Default(t.TempDir())
	cfg.InitBlocks = 0
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BootTimeout = 5 * time.Second
	cfg.SyncTimeout = 5 * time.Second

	nw := rpctest.NewNetwork()
	c, err := cluster.Boot(context.Background(), cfg, nw, n, cluster.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Teardown(context.Background()) })
	return c, nw
}

func TestApplyChain(t *testing.T) {
	c, _ := bootCluster(t, 4)
	topo := topology.NewController(c.Nodes())
	ctx := context.Background()

	require.NoError(t, topo.ApplyChain(ctx))

	for i := 0; i < 3; i++ {
		linked, err := c.Node(i).ConnectedTo(ctx, c.Node(i+1).PeerAddr())
		require.NoError(t, err)
		assert.True(t, linked, "expected %d-%d link", i, i+1)
	}

	// No cross link between non-adjacent nodes.
	linked, err := c.Node(0).ConnectedTo(ctx, c.Node(3).PeerAddr())
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestConnectIdempotent(t *testing.T) {
	c, _ := bootCluster(t, 2)
	topo := topology.NewController(c.Nodes())
	ctx := context.Background()

	require.NoError(t, topo.Connect(ctx, 0, 1))
	require.NoError(t, topo.Connect(ctx, 0, 1))

	peers, err := c.Node(0).Client.Peers(ctx)
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

func TestSplitAndJoin(t *testing.T) {
	c, _ := bootCluster(t, 4)
	topo := topology.NewController(c.Nodes())
	ctx := context.Background()

	require.NoError(t, topo.ApplyChain(ctx))
	require.False(t, topo.IsSplit())

	require.NoError(t, topo.Split(ctx, 2))
	assert.True(t, topo.IsSplit())
	assert.Equal(t, 2, topo.Boundary())

	// The cross-boundary link is gone, intra-partition links survive.
	linked, err := c.Node(1).ConnectedTo(ctx, c.Node(2).PeerAddr())
	require.NoError(t, err)
	assert.False(t, linked)
	linked, err = c.Node(0).ConnectedTo(ctx, c.Node(1).PeerAddr())
	require.NoError(t, err)
	assert.True(t, linked)

	require.NoError(t, topo.Join(ctx))
	assert.False(t, topo.IsSplit())

	linked, err = c.Node(1).ConnectedTo(ctx, c.Node(2).PeerAddr())
	require.NoError(t, err)
	assert.True(t, linked)
}

func TestSplitNotIdempotent(t *testing.T) {
	c, _ := bootCluster(t, 4)
	topo := topology.NewController(c.Nodes())
	ctx := context.Background()

	require.NoError(t, topo.ApplyChain(ctx))
	require.NoError(t, topo.Split(ctx, 2))

	err := topo.Split(ctx, 2)
	require.Error(t, err)
	_, ok := err.(*topology.InvalidStateError)
	assert.True(t, ok, "expected *InvalidStateError, got %T", err)
}

func TestJoinRequiresSplit(t *testing.T) {
	c, _ := bootCluster(t, 4)
	topo := topology.NewController(c.Nodes())

	err := topo.Join(context.Background())
	require.Error(t, err)
	_, ok := err.(*topology.InvalidStateError)
	assert.True(t, ok, "expected *InvalidStateError, got %T", err)
}

func TestSplitBoundaryValidation(t *testing.T) {
	c, _ := bootCluster(t, 4)
	topo := topology.NewController(c.Nodes())
	ctx := context.Background()

	for _, boundary := range []int{0, -1, 4, 5} {
		err := topo.Split(ctx, boundary)
		require.Error(t, err, "boundary %d", boundary)
		_, ok := err.(*topology.InvalidStateError)
		assert.True(t, ok)
	}
}

func TestPartitionsAndSpansSplit(t *testing.T) {
	c, _ := bootCluster(t, 4)
	topo := topology.NewController(c.Nodes())
	ctx := context.Background()
	nodes := c.Nodes()

	require.NoError(t, topo.ApplyChain(ctx))

	parts := topo.Partitions()
	require.Len(t, parts, 1)
	assert.Len(t, parts[0], 4)
	assert.False(t, topo.SpansSplit(nodes))

	require.NoError(t, topo.Split(ctx, 2))

	parts = topo.Partitions()
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 2)
	assert.Len(t, parts[1], 2)

	assert.True(t, topo.SpansSplit(nodes))
	assert.False(t, topo.SpansSplit(nodes[:2]))
	assert.False(t, topo.SpansSplit(nodes[2:]))
}
