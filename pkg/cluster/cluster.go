// Package cluster owns the pool of node handles end to end: boot,
// shared-state initialization, and guaranteed teardown.
package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	cp "github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"

	"github.com/chainharness/chainharness/pkg/barrier"
	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/logging"
	"github.com/chainharness/chainharness/pkg/node"
	"github.com/chainharness/chainharness/pkg/proc"
	"github.com/chainharness/chainharness/pkg/rpc"
)

// BootTimeoutError means a node process did not become reachable within
// the bounded wait. Boot never returns a partial cluster alongside it.
type BootTimeoutError struct {
	Node    int
	Timeout time.Duration
}

func (e *BootTimeoutError) Error() string {
	return fmt.Sprintf("node %d did not become reachable within %s", e.Node, e.Timeout)
}

// Options carries the per-node startup parameters, resolved once before
// boot and immutable afterwards.
type Options struct {
	// ExtraArgs holds extra string flags per node index. Which nodes get
	// which flags is scenario policy; the cluster passes them through.
	ExtraArgs map[int][]string

	// Binaries overrides the executable per node index (differential
	// scenarios set node 0 to the candidate build). Unset indices use
	// cfg.NodeBinary.
	Binaries map[int]string
}

// Cluster is an ordered, fixed-size sequence of node handles. Indices
// are stable and contiguous from 0.
type Cluster struct {
	cfg   *config.Config
	ctrl  proc.Controller
	nodes []*node.Node

	// RunID names the per-run directory under <home>/runs.
	RunID string
	dir   string

	start node.ChainState

	mu       sync.Mutex
	torndown bool
}

// Boot starts n node processes with their resolved options, waits for
// each to become reachable, and returns their handles. If any node fails
// to come up, every already-started process is stopped and the boot
// fails as a whole.
func Boot(ctx context.Context, cfg *config.Config, ctrl proc.Controller, n int, opts Options) (*Cluster, error) {
	runID := uuid.New().String()[:8]
	dir := filepath.Join(cfg.Dirs().Runs(), runID)

	c := &Cluster{
		cfg:   cfg,
		ctrl:  ctrl,
		nodes: make([]*node.Node, n),
		RunID: runID,
		dir:   dir,
	}

	logging.S().Infow("booting cluster", "run", runID, "nodes", n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			nd, err := c.bootNode(gctx, i, opts)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.nodes[i] = nd
			c.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Best-effort stop of whatever did come up; the boot error wins.
		for _, nd := range c.nodes {
			if nd != nil && nd.Process != nil {
				_ = nd.Process.Stop()
			}
		}
		return nil, err
	}

	return c, nil
}

func (c *Cluster) bootNode(ctx context.Context, i int, opts Options) (*node.Node, error) {
	workdir := filepath.Join(c.dir, fmt.Sprintf("node%d", i))
	if err := os.MkdirAll(workdir, 0777); err != nil {
		return nil, err
	}

	// Seed the datadir from the pre-mined cache when one exists, so the
	// run does not have to mine the starting chain from scratch.
	cached := filepath.Join(c.cfg.Dirs().Cache(), fmt.Sprintf("node%d", i))
	if fi, err := os.Stat(cached); err == nil && fi.IsDir() {
		if err := cp.Copy(cached, workdir); err != nil {
			return nil, fmt.Errorf("failed to copy cached datadir for node %d: %w", i, err)
		}
	}

	binary := c.cfg.NodeBinary
	if b, ok := opts.Binaries[i]; ok && b != "" {
		binary = b
	}

	spec := proc.StartSpec{
		Binary:   binary,
		WorkDir:  workdir,
		RPCAddr:  fmt.Sprintf("http://127.0.0.1:%d", c.cfg.BaseRPCPort+i),
		PeerAddr: fmt.Sprintf("127.0.0.1:%d", c.cfg.BasePort+i),
	}
	spec.Args = append([]string{
		"-regtest",
		"-server",
		"-datadir=" + workdir,
		fmt.Sprintf("-port=%d", c.cfg.BasePort+i),
		fmt.Sprintf("-rpcport=%d", c.cfg.BaseRPCPort+i),
	}, opts.ExtraArgs[i]...)

	p, err := c.ctrl.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	nd := &node.Node{
		Index:   i,
		WorkDir: workdir,
		Client:  rpc.New(p.RPCAddr(), c.cfg.RPCTimeout, c.cfg.TraceRPC),
		Process: p,
	}

	if err := c.awaitReachable(ctx, nd); err != nil {
		_ = p.Stop()
		return nil, err
	}
	return nd, nil
}

// awaitReachable polls the node until its rpc endpoint answers.
func (c *Cluster) awaitReachable(ctx context.Context, nd *node.Node) error {
	deadline := time.Now().Add(c.cfg.BootTimeout)
	for {
		if _, err := nd.Client.BlockCount(ctx); err == nil {
			logging.S().Debugw("node reachable", "node", nd.Index)
			return nil
		}
		if time.Now().After(deadline) {
			return &BootTimeoutError{Node: nd.Index, Timeout: c.cfg.BootTimeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// Nodes returns the ordered node handles.
func (c *Cluster) Nodes() []*node.Node {
	return c.nodes
}

// Node returns the handle at index i.
func (c *Cluster) Node(i int) *node.Node {
	return c.nodes[i]
}

// Size returns the cluster size.
func (c *Cluster) Size() int {
	return len(c.nodes)
}

// Dir returns the per-run directory holding the node workdirs.
func (c *Cluster) Dir() string {
	return c.dir
}

// StartState is the shared chain state every node held after
// InitializeSharedState; later divergence is attributable to the
// scenario, not to setup order.
func (c *Cluster) StartState() node.ChainState {
	return c.start
}

// InitializeSharedState establishes a common starting chain across all
// nodes before any scenario topology is applied: each node in turn mines
// its share of the starting blocks while the cluster is linked in a
// line, with a full sync after every round. When the datadirs came from
// the cache and already agree, mining is skipped.
func (c *Cluster) InitializeSharedState(ctx context.Context) error {
	b := barrier.New(c.cfg, nil)

	// Setup links; the scenario's topology controller re-applies its own
	// shape afterwards, connect is idempotent either way.
	for i := 0; i < len(c.nodes)-1; i++ {
		if err := c.nodes[i].Client.AddNode(ctx, c.nodes[i+1].PeerAddr()); err != nil {
			return err
		}
		if err := c.nodes[i+1].Client.AddNode(ctx, c.nodes[i].PeerAddr()); err != nil {
			return err
		}
	}

	state, err := c.nodes[0].ChainState(ctx)
	if err != nil {
		return err
	}

	target := int64(c.cfg.InitBlocks * len(c.nodes))
	if state.Height >= target {
		// Cached chain; just confirm everyone agrees on it.
		if err := b.SyncBlocks(ctx, c.nodes); err != nil {
			return err
		}
		c.start, err = c.nodes[0].ChainState(ctx)
		return err
	}

	logging.S().Infow("initializing shared chain", "blocks_per_node", c.cfg.InitBlocks)

	for _, nd := range c.nodes {
		if c.cfg.InitBlocks == 0 {
			break
		}
		if _, err := nd.Client.Generate(ctx, c.cfg.InitBlocks); err != nil {
			return fmt.Errorf("node %d failed to mine starting blocks: %w", nd.Index, err)
		}
		if err := b.SyncBlocks(ctx, c.nodes); err != nil {
			return err
		}
	}

	c.start, err = c.nodes[0].ChainState(ctx)
	if err != nil {
		return err
	}
	logging.S().Infow("shared chain initialized", "height", c.start.Height, "tip", c.start.Tip)
	return nil
}

// Teardown stops every node process and invalidates its handles. It is
// idempotent and best-effort: a failure stopping one node does not
// prevent stopping the rest, and the collected error never masks a
// scenario failure already in flight (the driver records that first).
func (c *Cluster) Teardown(ctx context.Context) error {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return nil
	}
	c.torndown = true
	c.mu.Unlock()

	if c.cfg.NoShutdown {
		logging.S().Warnw("nodes were not stopped and may still be running", "run", c.RunID)
		return nil
	}

	logging.S().Infow("stopping nodes", "run", c.RunID)

	errs := make(chan error, len(c.nodes))
	var wg sync.WaitGroup
	for _, nd := range c.nodes {
		if nd == nil {
			continue
		}
		wg.Add(1)
		go func(nd *node.Node) {
			defer wg.Done()
			if err := nd.Process.Stop(); err != nil {
				errs <- fmt.Errorf("failed to stop node %d: %w", nd.Index, err)
			}
			_ = nd.Client.Close()
		}(nd)
	}
	wg.Wait()
	close(errs)

	var merr *multierror.Error
	for err := range errs {
		merr = multierror.Append(merr, err)
	}

	if !c.cfg.KeepDirs {
		if err := os.RemoveAll(c.dir); err != nil {
			merr = multierror.Append(merr, err)
		}
	} else {
		logging.S().Infow("keeping node workdirs", "dir", c.dir)
	}

	return merr.ErrorOrNil()
}
