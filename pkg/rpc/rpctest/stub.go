// Package rpctest provides an in-process stub implementation of the node
// remote-call protocol, plus a stub process controller, so harness logic
// can be exercised without real node binaries. Stub nodes gossip blocks
// and pending transactions along explicitly established links, with an
// optional propagation delay, which is enough to reproduce partition,
// divergence, and reorg behavior.
package rpctest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chainharness/chainharness/pkg/proc"
)

const blockReward = 50

type block struct {
	Hash  string
	TxIDs []string
}

// Network is a collection of stub nodes. It implements proc.Controller,
// so the cluster lifecycle manager boots stubs exactly the way it boots
// real processes.
type Network struct {
	mu    sync.Mutex
	nodes map[string]*StubNode // keyed by peer addr
	order []*StubNode

	// PropagationDelay defers gossip, forcing barriers to actually poll.
	PropagationDelay time.Duration

	// StartDelay makes freshly started stubs unreachable for a while,
	// to exercise boot-timeout behavior.
	StartDelay time.Duration
}

func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*StubNode)}
}

var _ proc.Controller = (*Network)(nil)

// Start boots a stub node answering the harness rpc vocabulary.
func (nw *Network) Start(ctx context.Context, spec proc.StartSpec) (proc.Process, error) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	s := &StubNode{
		net:      nw,
		peerAddr: spec.PeerAddr,
		binary:   spec.Binary,
		args:     append([]string(nil), spec.Args...),
		peers:    make(map[string]struct{}),
		mempool:  make(map[string]struct{}),
	}
	if nw.StartDelay > 0 {
		s.notReadyUntil = time.Now().Add(nw.StartDelay)
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRPC).Methods("POST")
	s.srv = httptest.NewServer(r)

	nw.nodes[spec.PeerAddr] = s
	nw.order = append(nw.order, s)
	return s, nil
}

// Node returns the i-th stub in boot order.
func (nw *Network) Node(i int) *StubNode {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	return nw.order[i]
}

// Size returns how many stubs were booted.
func (nw *Network) Size() int {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	return len(nw.order)
}

// StubNode is one fake node process plus its rpc server. It implements
// proc.Process.
type StubNode struct {
	net      *Network
	peerAddr string
	binary   string
	args     []string
	srv      *httptest.Server

	notReadyUntil time.Time

	// guarded by net.mu
	chain   []block
	mempool map[string]struct{}
	peers   map[string]struct{}
	balance float64

	// frozen nodes never adopt gossip; tests use this to pin divergence.
	frozen bool

	stopOnce sync.Once
	stopped  bool
}

var _ proc.Process = (*StubNode)(nil)

func (s *StubNode) RPCAddr() string {
	return s.srv.URL
}

func (s *StubNode) PeerAddr() string {
	return s.peerAddr
}

func (s *StubNode) Stop() error {
	s.stopOnce.Do(func() {
		s.net.mu.Lock()
		s.stopped = true
		s.net.mu.Unlock()
		s.srv.Close()
	})
	return nil
}

func (s *StubNode) Wait() error {
	return nil
}

// Binary reports the executable this stub was "started" from;
// differential tests assert on it.
func (s *StubNode) Binary() string {
	return s.binary
}

// Args reports the startup flags the stub was handed.
func (s *StubNode) Args() []string {
	return s.args
}

// Stopped reports whether the stub's process handle was stopped.
func (s *StubNode) Stopped() bool {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return s.stopped
}

// Freeze pins the node's state: it keeps answering queries but never
// adopts gossip, so it can never converge with its peers.
func (s *StubNode) Freeze() {
	s.net.mu.Lock()
	s.frozen = true
	s.net.mu.Unlock()
}

// Height returns the stub's current chain height.
func (s *StubNode) Height() int {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return len(s.chain)
}

func (s *StubNode) tip() string {
	if len(s.chain) == 0 {
		return "genesis"
	}
	return s.chain[len(s.chain)-1].Hash
}

type rpcRequest struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result interface{} `json:"result"`
	Error  *rpcError   `json:"error"`
	ID     uint64      `json:"id"`
}

func (s *StubNode) handleRPC(w http.ResponseWriter, r *http.Request) {
	if time.Now().Before(s.notReadyUntil) {
		// Still "starting up": not a protocol error, a dead socket.
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.net.mu.Lock()
	result, rerr := s.dispatch(req.Method, req.Params)
	s.net.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{Result: result, Error: rerr, ID: req.ID})
}

func (s *StubNode) dispatch(method string, params []interface{}) (interface{}, *rpcError) {
	switch method {
	case "getblockcount":
		return len(s.chain), nil

	case "getbestblockhash":
		return s.tip(), nil

	case "getrawmempool":
		txids := make([]string, 0, len(s.mempool))
		for txid := range s.mempool {
			txids = append(txids, txid)
		}
		sort.Strings(txids)
		return txids, nil

	case "getpeerinfo":
		type peerInfo struct {
			Addr string `json:"addr"`
		}
		peers := make([]peerInfo, 0, len(s.peers))
		for addr := range s.peers {
			peers = append(peers, peerInfo{Addr: addr})
		}
		sort.Slice(peers, func(i, j int) bool { return peers[i].Addr < peers[j].Addr })
		return peers, nil

	case "addnode":
		if len(params) < 1 {
			return nil, &rpcError{Code: -1, Message: "addnode requires an address"}
		}
		addr, _ := params[0].(string)
		if other, ok := s.net.nodes[addr]; ok && !other.stopped {
			s.peers[addr] = struct{}{}
			other.peers[s.peerAddr] = struct{}{}
			s.net.scheduleGossip()
		}
		// Dialing an unknown or dead address succeeds silently, like a
		// real onetry dial that simply goes nowhere.
		return nil, nil

	case "disconnectnode":
		if len(params) < 1 {
			return nil, &rpcError{Code: -1, Message: "disconnectnode requires an address"}
		}
		addr, _ := params[0].(string)
		if _, ok := s.peers[addr]; !ok {
			return nil, &rpcError{Code: -29, Message: "node not connected"}
		}
		delete(s.peers, addr)
		if other, ok := s.net.nodes[addr]; ok {
			delete(other.peers, s.peerAddr)
		}
		return nil, nil

	case "getbalance":
		return s.balance, nil

	case "generate":
		count := 1
		if len(params) > 0 {
			if f, ok := params[0].(float64); ok {
				count = int(f)
			}
		}
		hashes := make([]string, 0, count)
		for i := 0; i < count; i++ {
			b := block{Hash: uuid.New().String()[:12]}
			for txid := range s.mempool {
				b.TxIDs = append(b.TxIDs, txid)
			}
			s.mempool = make(map[string]struct{})
			s.chain = append(s.chain, b)
			s.balance += blockReward
			hashes = append(hashes, b.Hash)
		}
		s.net.scheduleGossip()
		return hashes, nil

	case "sendtoaddress":
		txid := uuid.New().String()[:12]
		s.mempool[txid] = struct{}{}
		s.net.scheduleGossip()
		return txid, nil

	default:
		return nil, &rpcError{Code: -32601, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

// scheduleGossip runs a gossip round, immediately or after the
// configured delay. Callers hold net.mu.
func (nw *Network) scheduleGossip() {
	if nw.PropagationDelay > 0 {
		time.AfterFunc(nw.PropagationDelay, func() {
			nw.mu.Lock()
			nw.gossip()
			nw.mu.Unlock()
		})
		return
	}
	nw.gossip()
}

// gossip floods chain and mempool state along established links until a
// fixed point: the longer chain wins, pending transactions spread, and
// transactions mined into an adopted chain leave the mempool. Frozen or
// stopped nodes do not participate. Callers hold net.mu.
func (nw *Network) gossip() {
	for round := 0; round <= len(nw.order); round++ {
		changed := false
		for _, a := range nw.order {
			if a.stopped {
				continue
			}
			for addr := range a.peers {
				b, ok := nw.nodes[addr]
				if !ok || b.stopped {
					continue
				}
				if b.adoptFrom(a) {
					changed = true
				}
				if a.adoptFrom(b) {
					changed = true
				}
			}
		}
		if !changed {
			return
		}
	}
}

// adoptFrom merges the neighbor's state into s. Reports whether s
// changed.
func (s *StubNode) adoptFrom(from *StubNode) bool {
	if s.frozen {
		return false
	}
	changed := false

	if len(from.chain) > len(s.chain) {
		s.chain = append([]block(nil), from.chain...)
		for _, b := range s.chain {
			for _, txid := range b.TxIDs {
				delete(s.mempool, txid)
			}
		}
		changed = true
	}

	mined := make(map[string]struct{})
	for _, b := range s.chain {
		for _, txid := range b.TxIDs {
			mined[txid] = struct{}{}
		}
	}
	for txid := range from.mempool {
		if _, ok := mined[txid]; ok {
			continue
		}
		if _, ok := s.mempool[txid]; !ok {
			s.mempool[txid] = struct{}{}
			changed = true
		}
	}
	return changed
}
