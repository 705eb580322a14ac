// Package node provides the handle through which every other harness
// component talks to one running node process.
package node

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chainharness/chainharness/pkg/proc"
	"github.com/chainharness/chainharness/pkg/rpc"
)

// Node is a proxy to one running node process. The cluster owns the
// collection; topology controllers and barriers borrow handles from it.
// A handle is immutable after construction and safe for concurrent use.
type Node struct {
	// Index is the node's position in the cluster, stable and contiguous
	// from 0 for the lifetime of the scenario.
	Index int

	// WorkDir is the node's datadir on disk.
	WorkDir string

	Client  *rpc.Client
	Process proc.Process
}

// PeerAddr is the address other nodes use to connect to this one.
func (n *Node) PeerAddr() string {
	return n.Process.PeerAddr()
}

func (n *Node) String() string {
	return fmt.Sprintf("node%d", n.Index)
}

// ChainState is the confirmed-chain dimension: a monotonically
// non-decreasing height plus the tip identifier.
type ChainState struct {
	Height int64
	Tip    string
}

func (s ChainState) Equal(o ChainState) bool {
	return s.Height == o.Height && s.Tip == o.Tip
}

func (s ChainState) String() string {
	return fmt.Sprintf("height=%d tip=%s", s.Height, s.Tip)
}

// MempoolState is the pending-transaction dimension: the set of pending
// transaction identifiers, held sorted for comparison.
type MempoolState []string

func (s MempoolState) Equal(o MempoolState) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s MempoolState) String() string {
	if len(s) == 0 {
		return "mempool={}"
	}
	return fmt.Sprintf("mempool={%s}", strings.Join(s, ","))
}

// ChainState queries the node's confirmed height and tip.
func (n *Node) ChainState(ctx context.Context) (ChainState, error) {
	height, err := n.Client.BlockCount(ctx)
	if err != nil {
		return ChainState{}, err
	}
	tip, err := n.Client.BestBlockHash(ctx)
	if err != nil {
		return ChainState{}, err
	}
	return ChainState{Height: height, Tip: tip}, nil
}

// MempoolState queries the node's pending-transaction identifiers.
func (n *Node) MempoolState(ctx context.Context) (MempoolState, error) {
	txids, err := n.Client.RawMempool(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(txids)
	return MempoolState(txids), nil
}

// ConnectedTo reports whether this node currently lists addr as a peer.
func (n *Node) ConnectedTo(ctx context.Context, addr string) (bool, error) {
	peers, err := n.Client.Peers(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range peers {
		if p.Addr == addr {
			return true, nil
		}
	}
	return false, nil
}
