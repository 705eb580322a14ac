// Package topology establishes and mutates the logical peer graph among
// cluster nodes. The controller tracks intent only (whether the network
// is split, and where); the observed peer lists of the nodes are an
// eventually-consistent external fact and are deliberately not mirrored
// here. Convergence of observable state is the barrier's concern.
package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainharness/chainharness/pkg/logging"
	"github.com/chainharness/chainharness/pkg/node"
	"github.com/chainharness/chainharness/pkg/rpc"
)

// InvalidStateError reports a topology operation requested in the wrong
// state, e.g. splitting an already-split network.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("topology: cannot %s: %s", e.Op, e.Reason)
}

// Controller wires nodes into shapes and drives partition transitions.
type Controller struct {
	nodes []*node.Node

	mu       sync.Mutex
	split    bool
	boundary int
}

func NewController(nodes []*node.Node) *Controller {
	return &Controller{nodes: nodes}
}

// Connect idempotently establishes the peer link a<->b. If the link is
// already present on a's side, it is a no-op.
func (c *Controller) Connect(ctx context.Context, a, b int) error {
	if err := c.checkIndex(a); err != nil {
		return err
	}
	if err := c.checkIndex(b); err != nil {
		return err
	}

	na, nb := c.nodes[a], c.nodes[b]

	linked, err := na.ConnectedTo(ctx, nb.PeerAddr())
	if err != nil {
		return err
	}
	if linked {
		return nil
	}

	logging.S().Debugw("connecting nodes", "a", a, "b", b)

	// Dial in both directions, the way connect_nodes_bi does, so neither
	// side depends on inbound slots.
	if err := na.Client.AddNode(ctx, nb.PeerAddr()); err != nil {
		return err
	}
	return nb.Client.AddNode(ctx, na.PeerAddr())
}

// ApplyChain connects every adjacent pair (0-1, 1-2, ...), yielding a
// line that can later be split into two halves working on competing
// chains. It clears any split intent.
func (c *Controller) ApplyChain(ctx context.Context) error {
	for i := 0; i < len(c.nodes)-1; i++ {
		if err := c.Connect(ctx, i, i+1); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.split = false
	c.mu.Unlock()
	return nil
}

// ApplyFull connects every pair of nodes. Differential scenarios use it
// so every reference node observes the candidate directly.
func (c *Controller) ApplyFull(ctx context.Context) error {
	for i := 0; i < len(c.nodes); i++ {
		for j := i + 1; j < len(c.nodes); j++ {
			if err := c.Connect(ctx, i, j); err != nil {
				return err
			}
		}
	}
	c.mu.Lock()
	c.split = false
	c.mu.Unlock()
	return nil
}

// Split removes every cross-boundary peer link, producing the two
// partitions [0, boundary) and [boundary, n). Split is not idempotent:
// a second Split without an intervening Join is an error.
func (c *Controller) Split(ctx context.Context, boundary int) error {
	c.mu.Lock()
	if c.split {
		c.mu.Unlock()
		return &InvalidStateError{Op: "split", Reason: "network is already split; join first"}
	}
	c.mu.Unlock()

	if boundary <= 0 || boundary >= len(c.nodes) {
		return &InvalidStateError{Op: "split", Reason: fmt.Sprintf("boundary %d out of range (0, %d)", boundary, len(c.nodes))}
	}

	logging.S().Infow("splitting network", "boundary", boundary)

	for a := 0; a < boundary; a++ {
		for b := boundary; b < len(c.nodes); b++ {
			if err := c.disconnect(ctx, a, b); err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	c.split = true
	c.boundary = boundary
	c.mu.Unlock()
	return nil
}

// Join re-establishes a single bridge link across the boundary of a
// previously split network; re-convergence of chain state is left to the
// barrier. Join without a preceding Split is an error.
func (c *Controller) Join(ctx context.Context) error {
	c.mu.Lock()
	if !c.split {
		c.mu.Unlock()
		return &InvalidStateError{Op: "join", Reason: "network is not split"}
	}
	boundary := c.boundary
	c.mu.Unlock()

	logging.S().Infow("joining network", "boundary", boundary)

	if err := c.Connect(ctx, boundary-1, boundary); err != nil {
		return err
	}

	c.mu.Lock()
	c.split = false
	c.mu.Unlock()
	return nil
}

// IsSplit reports whether a split is currently applied.
func (c *Controller) IsSplit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.split
}

// Boundary returns the currently applied split boundary; only meaningful
// while IsSplit.
func (c *Controller) Boundary() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundary
}

// Partitions returns the node subsets on each side of the active split,
// or the whole cluster as a single partition when not split.
func (c *Controller) Partitions() [][]*node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.split {
		return [][]*node.Node{c.nodes}
	}
	return [][]*node.Node{c.nodes[:c.boundary], c.nodes[c.boundary:]}
}

// SpansSplit reports whether the subset reaches across the active split
// boundary. Always false when the network is not split.
func (c *Controller) SpansSplit(subset []*node.Node) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.split {
		return false
	}
	var lo, hi bool
	for _, n := range subset {
		if n.Index < c.boundary {
			lo = true
		} else {
			hi = true
		}
	}
	return lo && hi
}

func (c *Controller) disconnect(ctx context.Context, a, b int) error {
	na, nb := c.nodes[a], c.nodes[b]
	for _, pair := range [][2]*node.Node{{na, nb}, {nb, na}} {
		err := pair[0].Client.DisconnectNode(ctx, pair[1].PeerAddr())
		if err == nil {
			continue
		}
		// The link may legitimately not exist on this side.
		if _, ok := err.(*rpc.Error); ok {
			continue
		}
		return err
	}
	return nil
}

func (c *Controller) checkIndex(i int) error {
	if i < 0 || i >= len(c.nodes) {
		return fmt.Errorf("topology: node index %d out of range [0, %d)", i, len(c.nodes))
	}
	return nil
}
