package rpc

import (
	"context"
	"encoding/json"
)

// The harness depends on a small fixed vocabulary of node methods; the
// typed wrappers below are the whole of it.

// PeerInfo is the subset of a node's peer record the harness reads.
type PeerInfo struct {
	Addr string `json:"addr"`
}

// BlockCount returns the node's confirmed chain height.
func (c *Client) BlockCount(ctx context.Context) (int64, error) {
	raw, err := c.Call(ctx, "getblockcount")
	if err != nil {
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// BestBlockHash returns the node's chain tip identifier.
func (c *Client) BestBlockHash(ctx context.Context) (string, error) {
	raw, err := c.Call(ctx, "getbestblockhash")
	if err != nil {
		return "", err
	}
	var h string
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", err
	}
	return h, nil
}

// RawMempool returns the identifiers of the node's pending transactions.
func (c *Client) RawMempool(ctx context.Context) ([]string, error) {
	raw, err := c.Call(ctx, "getrawmempool")
	if err != nil {
		return nil, err
	}
	var txids []string
	if err := json.Unmarshal(raw, &txids); err != nil {
		return nil, err
	}
	return txids, nil
}

// Peers returns the node's currently connected peers.
func (c *Client) Peers(ctx context.Context) ([]PeerInfo, error) {
	raw, err := c.Call(ctx, "getpeerinfo")
	if err != nil {
		return nil, err
	}
	var peers []PeerInfo
	if err := json.Unmarshal(raw, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// AddNode asks the node to dial the given peer address once.
func (c *Client) AddNode(ctx context.Context, addr string) error {
	_, err := c.Call(ctx, "addnode", addr, "onetry")
	return err
}

// DisconnectNode drops the link to the given peer address, if present.
func (c *Client) DisconnectNode(ctx context.Context, addr string) error {
	_, err := c.Call(ctx, "disconnectnode", addr)
	return err
}

// Balance returns the node wallet's confirmed balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	raw, err := c.Call(ctx, "getbalance")
	if err != nil {
		return 0, err
	}
	var b float64
	if err := json.Unmarshal(raw, &b); err != nil {
		return 0, err
	}
	return b, nil
}

// Generate mines count blocks on this node and returns their hashes.
func (c *Client) Generate(ctx context.Context, count int) ([]string, error) {
	raw, err := c.Call(ctx, "generate", count)
	if err != nil {
		return nil, err
	}
	var hashes []string
	if err := json.Unmarshal(raw, &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

// SendToAddress submits a payment transaction and returns its txid. The
// harness uses it to seed mempools in pending-state scenarios.
func (c *Client) SendToAddress(ctx context.Context, addr string, amount float64) (string, error) {
	raw, err := c.Call(ctx, "sendtoaddress", addr, amount)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(raw, &txid); err != nil {
		return "", err
	}
	return txid, nil
}
