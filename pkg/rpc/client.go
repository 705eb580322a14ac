package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chainharness/chainharness/pkg/logging"
)

// Client speaks the node's JSON-RPC protocol over HTTP. It is safe for
// concurrent use: a barrier may poll through it while the scenario body
// issues calls of its own.
type Client struct {
	endpoint string
	client   *http.Client
	trace    bool

	// seq numbers outgoing requests, guarded by atomic.
	seq uint64
}

// New initializes a client against the given endpoint. Every call is
// bounded by timeout so a wedged node cannot hang the run.
func New(endpoint string, timeout time.Duration, trace bool) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		trace:    trace,
	}
}

// Endpoint returns the URL this client targets.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases idle connections held by the transport.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

type request struct {
	Version string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     uint64          `json:"id"`
}

// Call performs a single remote call and returns the raw result. A
// protocol-level failure surfaces as *Error; an unreachable process as
// *TransportError. Call never retries.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	req := request{
		Version: "1.0",
		ID:      atomic.AddUint64(&c.seq, 1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rpc request: %w", err)
	}

	if c.trace {
		logging.S().Debugw("rpc call", "endpoint", c.endpoint, "method", method, "params", params)
	}

	hreq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	hres, err := c.client.Do(hreq)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	defer hres.Body.Close()

	data, err := io.ReadAll(hres.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}

	var res response
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("malformed rpc response: %w", err)}
	}

	if res.Error != nil {
		if c.trace {
			logging.S().Debugw("rpc error", "endpoint", c.endpoint, "method", method, "code", res.Error.Code, "message", res.Error.Message)
		}
		return nil, res.Error
	}

	if c.trace {
		logging.S().Debugw("rpc result", "endpoint", c.endpoint, "method", method, "result", string(res.Result))
	}
	return res.Result, nil
}
