// Package jrpc implements the bidirectional JSON-RPC 2.0 transport used by
// the triggerware client: one persistent stream connection, one background
// read goroutine, and concurrent blocking calls correlated by numeric id.
// The server may call back into the client at any time; per-session callback
// methods are registered on the dispatch table at runtime.
package jrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/triggerware/triggerware-go/internal/observability"
)

// version is the protocol version stamped on and required of every envelope.
const version = "2.0"

// Handler is a pair of callbacks for one inbound method name. Execute serves
// inbound calls (messages carrying an id) and its return value is sent back
// as the response; Notify serves inbound notifications. Either field may be
// nil: a nil Execute responds with a null result, a nil Notify drops the
// notification.
//
// Handlers run inline on the client's single read goroutine, in wire order.
// A handler must not invoke Client.Call: its own reply would be queued
// behind the message being handled, deadlocking the reader. Notify and
// dispatch-table mutation are safe from inside a handler.
type Handler struct {
	Execute func(params json.RawMessage) (any, *Error)
	Notify  func(params json.RawMessage)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches a metrics registry to the transport.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client multiplexes synchronous outbound calls, inbound calls, and inbound
// notifications over one persistent connection. Closing the client is
// terminal: there is no reconnection, and every pending call fails with a
// connection-closed error.
type Client struct {
	conn    net.Conn
	logger  *slog.Logger
	metrics *observability.Metrics

	writeMu sync.Mutex

	nextID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan callResult
	closed    bool

	methodMu sync.RWMutex
	methods  map[string]Handler

	closeOnce sync.Once
	done      chan struct{}
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Dial connects to a triggerware server over TCP and starts the read loop.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn, opts...), nil
}

// NewClient wraps an established connection and starts the read loop. The
// client takes ownership of conn and closes it on Close.
func NewClient(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		logger:  slog.Default(),
		pending: make(map[uint64]chan callResult),
		methods: make(map[string]Handler),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.readLoop()
	return c
}

// Call executes a method on the server and blocks until its reply arrives,
// ctx is done, or the client closes. Many goroutines may block in Call
// concurrently; each is woken only by the reply carrying its own id.
// Cancelling ctx abandons the pending entry without wire effect; a late
// reply for that id is dropped.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.call(ctx, method, params)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.CallDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
		c.metrics.CallsTotal.WithLabelValues(method, status).Inc()
	}
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1) - 1
	ch := make(chan callResult, 1)

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, errConnectionClosed()
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.send(request{Version: version, Method: method, Params: params, ID: id}); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// Notify sends a notification to the server. It does not wait for anything
// and no correlation entry is created.
func (c *Client) Notify(method string, params any) error {
	if err := c.send(notification{Version: version, Method: method, Params: params}); err != nil {
		return fmt.Errorf("notify %s: %w", method, err)
	}
	if c.metrics != nil {
		c.metrics.NotificationsTotal.WithLabelValues("outbound").Inc()
	}
	return nil
}

// AddMethod registers a handler for an inbound method name. Registration
// takes the dispatch-table lock only and never contends with callers blocked
// in Call.
func (c *Client) AddMethod(name string, h Handler) {
	c.methodMu.Lock()
	c.methods[name] = h
	c.methodMu.Unlock()
}

// RemoveMethod unregisters an inbound method name.
func (c *Client) RemoveMethod(name string) {
	c.methodMu.Lock()
	delete(c.methods, name)
	c.methodMu.Unlock()
}

// Close tears down the connection and fails every pending call with a
// connection-closed error. It is idempotent, and the client is permanently
// closed afterwards.
func (c *Client) Close() error {
	c.close()
	return nil
}

// Done is closed when the client shuts down, whether by Close or by
// connection loss.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()

		c.pendingMu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			ch <- callResult{err: errConnectionClosed()}
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
}

func (c *Client) removePending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.BytesProcessed.WithLabelValues("write").Add(float64(len(data)))
	}
	return nil
}

// readLoop is the single background reader. It owns the receive buffer,
// drains every complete JSON value out of it after each read, and routes
// each decoded message. A per-message decode or routing problem is logged
// and skipped; an I/O error or EOF closes the client.
func (c *Client) readLoop() {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if c.metrics != nil {
				c.metrics.BytesProcessed.WithLabelValues("read").Add(float64(n))
			}
			buf = c.drain(buf)
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				if err != io.EOF {
					c.logger.Error("connection read failed", "error", err)
				}
			}
			c.close()
			return
		}
	}
}

// drain decodes and dispatches every complete message in buf, returning the
// leftover bytes of a trailing partial message.
func (c *Client) drain(buf []byte) []byte {
	for {
		raw, rest, err := decodeValue(buf)
		if err == errNeedMore {
			return append(buf[:0], rest...)
		}
		if err != nil {
			// The head of the buffer is not JSON. There is no framing to
			// resynchronize on, so the buffered bytes are unusable.
			c.logger.Error("discarding undecodable input", "error", err, "bytes", len(rest))
			if c.metrics != nil {
				c.metrics.ErrorsTotal.WithLabelValues("decode", "parse").Inc()
			}
			return buf[:0]
		}
		buf = append(buf[:0], rest...)
		c.dispatch(raw)
	}
}

// dispatch routes one decoded message by the presence of its id and method
// fields. It runs on the read goroutine; see Handler for the reentrancy
// contract.
func (c *Client) dispatch(raw json.RawMessage) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("discarding malformed message", "error", err)
		return
	}
	if msg.Version != version {
		c.logger.Warn("discarding message with wrong protocol version", "version", msg.Version)
		if c.metrics != nil {
			c.metrics.ErrorsTotal.WithLabelValues("dispatch", "version").Inc()
		}
		return
	}

	hasID := len(msg.ID) > 0
	switch {
	case hasID && msg.Method != "":
		c.handleRequest(msg)
	case hasID:
		c.handleResponse(msg)
	case msg.Method != "":
		c.handleNotification(msg)
	default:
		c.logger.Warn("discarding message with neither id nor method")
	}
}

func (c *Client) handleRequest(msg message) {
	if c.metrics != nil {
		c.metrics.InboundTotal.WithLabelValues("call").Inc()
	}

	c.methodMu.RLock()
	h, ok := c.methods[msg.Method]
	c.methodMu.RUnlock()

	if !ok {
		c.logger.Debug("inbound call for unknown method", "method", msg.Method)
		err := c.send(errorResponse{Version: version, ID: msg.ID, Error: &Error{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", msg.Method),
		}})
		if err != nil {
			c.logger.Error("sending method-not-found response failed", "error", err)
		}
		return
	}

	var result any
	var callErr *Error
	if h.Execute != nil {
		result, callErr = h.Execute(msg.Params)
	}

	var err error
	if callErr != nil {
		err = c.send(errorResponse{Version: version, ID: msg.ID, Error: callErr})
	} else {
		err = c.send(response{Version: version, ID: msg.ID, Result: result})
	}
	if err != nil {
		c.logger.Error("sending response failed", "method", msg.Method, "error", err)
	}
}

func (c *Client) handleResponse(msg message) {
	var id uint64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		c.logger.Warn("discarding reply with non-numeric id", "id", string(msg.ID))
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if !ok {
		// Pending entry abandoned (cancelled call) or never existed.
		c.logger.Debug("dropping reply with no pending call", "id", id)
		return
	}

	switch {
	case msg.Error != nil:
		ch <- callResult{err: msg.Error}
	case msg.Result != nil:
		ch <- callResult{result: msg.Result}
	default:
		ch <- callResult{err: errInvalidResponse()}
	}
}

func (c *Client) handleNotification(msg message) {
	if c.metrics != nil {
		c.metrics.InboundTotal.WithLabelValues("notification").Inc()
		c.metrics.NotificationsTotal.WithLabelValues("inbound").Inc()
	}

	c.methodMu.RLock()
	h, ok := c.methods[msg.Method]
	c.methodMu.RUnlock()

	if !ok || h.Notify == nil {
		return
	}
	h.Notify(msg.Params)
}
