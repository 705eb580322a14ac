// Package barrier provides convergence barriers: polling loops that block
// until a set of nodes report identical state under a chosen dimension,
// or a timeout elapses. The barrier is the only component in the harness
// that repeats remote calls, and only as polling, never as error
// recovery.
package barrier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chainharness/chainharness/pkg/config"
	"github.com/chainharness/chainharness/pkg/logging"
	"github.com/chainharness/chainharness/pkg/node"
	"github.com/chainharness/chainharness/pkg/topology"
)

// Dimension selects which slice of node state a barrier compares.
// Observations are normalized to strings; two nodes converge when their
// observed strings are equal.
type Dimension struct {
	Name    string
	Observe func(ctx context.Context, n *node.Node) (string, error)
}

// ChainDim compares confirmed-chain state: equal height and equal tip.
var ChainDim = Dimension{
	Name: "blocks",
	Observe: func(ctx context.Context, n *node.Node) (string, error) {
		s, err := n.ChainState(ctx)
		if err != nil {
			return "", err
		}
		return s.String(), nil
	},
}

// MempoolDim compares pending-transaction state: equal txid sets.
var MempoolDim = Dimension{
	Name: "mempool",
	Observe: func(ctx context.Context, n *node.Node) (string, error) {
		s, err := n.MempoolState(ctx)
		if err != nil {
			return "", err
		}
		return s.String(), nil
	},
}

// Observation is one node's last observed value, reported on timeout for
// diagnosis.
type Observation struct {
	Node  int
	Value string
}

// TimeoutError means the subset did not converge in time. Last holds the
// final divergent observations.
type TimeoutError struct {
	Dimension string
	Timeout   time.Duration
	Last      []Observation
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s sync did not converge within %s:", e.Dimension, e.Timeout)
	for _, o := range e.Last {
		fmt.Fprintf(&b, " node%d[%s]", o.Node, o.Value)
	}
	return b.String()
}

// InvalidScopeError means a pending-state sync was requested across an
// active split. Partitions may legitimately never agree on mempool
// contents, so such a barrier has no termination guarantee and the
// harness refuses to run it.
type InvalidScopeError struct {
	Boundary int
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("refusing mempool sync across active split (boundary %d); sync within one partition instead", e.Boundary)
}

// Barrier polls node subsets until convergence. The topology controller
// is consulted to enforce the split/mempool invariant; a nil controller
// disables that check (used during chain initialization, before any
// topology exists).
type Barrier struct {
	topo     *topology.Controller
	interval time.Duration
	timeout  time.Duration
}

func New(cfg *config.Config, topo *topology.Controller) *Barrier {
	return &Barrier{
		topo:     topo,
		interval: cfg.PollInterval,
		timeout:  cfg.SyncTimeout,
	}
}

// WaitUntilEqual polls every member of subset under dim until all
// observations compare equal, the timeout elapses, or ctx is cancelled.
// The loop returns within timeout plus one polling interval.
func (b *Barrier) WaitUntilEqual(ctx context.Context, subset []*node.Node, dim Dimension, timeout time.Duration) error {
	if len(subset) == 0 {
		return fmt.Errorf("barrier: empty subset")
	}

	deadline := time.Now().Add(timeout)
	for {
		last := make([]Observation, len(subset))
		equal := true
		for i, n := range subset {
			v, err := dim.Observe(ctx, n)
			if err != nil {
				return fmt.Errorf("barrier: observing %s on %s: %w", dim.Name, n, err)
			}
			last[i] = Observation{Node: n.Index, Value: v}
			if v != last[0].Value {
				equal = false
			}
		}
		if equal {
			logging.S().Debugw("barrier converged", "dimension", dim.Name, "nodes", len(subset), "value", last[0].Value)
			return nil
		}

		if time.Now().After(deadline) {
			return &TimeoutError{Dimension: dim.Name, Timeout: timeout, Last: last}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.interval):
		}
	}
}

// SyncBlocks blocks until every node in subset reports the same
// confirmed height and tip.
func (b *Barrier) SyncBlocks(ctx context.Context, subset []*node.Node) error {
	return b.WaitUntilEqual(ctx, subset, ChainDim, b.timeout)
}

// SyncMempools blocks until every node in subset reports the same set of
// pending transactions. A subset spanning an active split is rejected
// with *InvalidScopeError rather than left to hang.
func (b *Barrier) SyncMempools(ctx context.Context, subset []*node.Node) error {
	if b.topo != nil && b.topo.SpansSplit(subset) {
		return &InvalidScopeError{Boundary: b.topo.Boundary()}
	}
	return b.WaitUntilEqual(ctx, subset, MempoolDim, b.timeout)
}
