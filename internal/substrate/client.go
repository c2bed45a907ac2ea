// Package substrate provides read-only access to Substrate asset
// chains: a WebSocket JSON-RPC client, an endpoint race dialer, and
// the SS58 address codec.
package substrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"substrate-nft-lab/internal/observability"
)

// ClientConfig configures the WebSocket client.
type ClientConfig struct {
	// HandshakeTimeout bounds connection establishment.
	HandshakeTimeout time.Duration
	// CallTimeout bounds a single request/response round trip.
	CallTimeout time.Duration
	// WriteTimeout bounds writing a single frame.
	WriteTimeout time.Duration
	// PingInterval is the keep-alive ping cadence.
	PingInterval time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		CallTimeout:      30 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Client is a request/response JSON-RPC 2.0 client over WebSocket.
type Client struct {
	endpoint string
	config   ClientConfig

	conn   *websocket.Conn
	connMu sync.Mutex

	requestID atomic.Uint64
	closed    atomic.Bool

	// pending maps request ID to the channel awaiting its response.
	pending   map[uint64]chan *rpcResponse
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ErrClientClosed is returned by calls on a closed client.
var ErrClientClosed = errors.New("client closed")

// Dial connects to a single endpoint.
func Dial(ctx context.Context, endpoint string, config *ClientConfig) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		conn:     conn,
		pending:  make(map[uint64]chan *rpcResponse),
		done:     make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// DialFastest races all candidate endpoints concurrently and keeps the
// first connection to fully establish, closing the losers. It fails
// only when every candidate fails.
func DialFastest(ctx context.Context, endpoints []string, config *ClientConfig) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("no endpoints to dial")
	}

	type dialResult struct {
		client *Client
		err    error
	}
	results := make(chan dialResult, len(endpoints))

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, endpoint := range endpoints {
		go func(endpoint string) {
			client, err := Dial(raceCtx, endpoint, config)
			results <- dialResult{client: client, err: err}
		}(endpoint)
	}

	var errs []error
	var winner *Client
	for range endpoints {
		res := <-results
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		if winner == nil {
			winner = res.client
			observability.RecordEndpointWin(winner.Endpoint())
			// Losers still dialing are cancelled; established ones
			// are closed as they arrive.
			cancel()
		} else {
			res.client.Close()
		}
	}

	if winner == nil {
		return nil, fmt.Errorf("all endpoints failed: %w", errors.Join(errs...))
	}
	return winner, nil
}

// Endpoint reports the connected endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call performs a JSON-RPC request and decodes the result into result
// (which may be nil to discard it).
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	started := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(started).Seconds())
	}()

	reqID := c.requestID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: reqID, Method: method, Params: params}

	respCh := make(chan *rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respCh
	c.pendingMu.Unlock()

	c.connMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		c.dropPending(reqID)
		return fmt.Errorf("write request: %w", err)
	}

	timer := time.NewTimer(c.config.CallTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return ErrClientClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	case <-timer.C:
		c.dropPending(reqID)
		return fmt.Errorf("call %s timed out after %v", method, c.config.CallTimeout)
	case <-ctx.Done():
		c.dropPending(reqID)
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

// Close closes the connection and fails all pending calls.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Client) dropPending(reqID uint64) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// readLoop reads responses and dispatches them to pending calls.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				// Connection failure: outstanding calls time out; the
				// owner decides whether to redial.
				go c.Close()
			}
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- &resp
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
		}
	}
}
