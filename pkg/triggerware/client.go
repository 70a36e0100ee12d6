// Package triggerware is a client for the Triggerware analytical query
// server. It layers stateful session protocols on the bidirectional JSON-RPC
// transport in pkg/jrpc: lazily-paginated result sets, prepared queries,
// scheduled polled queries with delta notifications, and subscriptions with
// batched fan-out.
package triggerware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/triggerware/triggerware-go/internal/observability"
	"github.com/triggerware/triggerware-go/pkg/jrpc"
)

// DefaultNamespace is the namespace queries resolve against unless the
// query or client overrides it.
const DefaultNamespace = "AP5"

// Handle identifies a session-scoped object living on the server. It is
// opaque to the client and only ever passed back as a call parameter.
type Handle int64

// Option configures a Client.
type Option func(*Client)

// WithNamespace sets the default namespace for queries that do not name one.
func WithNamespace(ns string) Option {
	return func(c *Client) { c.namespace = ns }
}

// WithFetchSize sets the default row limit for result-set batch fetches.
func WithFetchSize(n int) Option {
	return func(c *Client) { c.fetchSize = n }
}

// WithTimeout sets the default server-side time limit, in seconds, attached
// to query operations.
func WithTimeout(seconds float64) Option {
	return func(c *Client) { c.timeout = seconds }
}

// WithLogger sets the structured logger used by the client and its transport.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches a metrics registry to the client and its transport.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client is a connection to a triggerware server. One Client owns one
// transport; protocol objects built from it (result sets, polled queries,
// subscriptions) hold an explicit reference back to it and die with it.
type Client struct {
	rpc     *jrpc.Client
	logger  *slog.Logger
	metrics *observability.Metrics

	namespace string
	fetchSize int
	timeout   float64

	names nameAllocator

	handleMu sync.Mutex
	handles  []Handle
}

// Dial connects to a triggerware server over TCP.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn, opts...), nil
}

// NewClient wraps an established connection. The client takes ownership of
// conn.
func NewClient(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		logger:    slog.Default(),
		namespace: DefaultNamespace,
	}
	for _, o := range opts {
		o(c)
	}
	rpcOpts := []jrpc.Option{jrpc.WithLogger(c.logger)}
	if c.metrics != nil {
		rpcOpts = append(rpcOpts, jrpc.WithMetrics(c.metrics))
	}
	c.rpc = jrpc.NewClient(conn, rpcOpts...)
	return c
}

// RPC exposes the underlying transport for application-specific calls beyond
// the standard triggerware methods.
func (c *Client) RPC() *jrpc.Client {
	return c.rpc
}

// Close tears down the connection. Every blocked call fails with a
// connection-closed error and the client cannot be reused.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// ExecuteQuery validates and executes a query in one shot, as if a View had
// been created and executed once.
func (c *Client) ExecuteQuery(ctx context.Context, q Query, r *Restriction) (*ResultSet, error) {
	op, ctx := observability.StartOperation(ctx, c.metrics, "triggerware.execute")
	view, err := NewView(ctx, c, q, r)
	if err != nil {
		op.End(err)
		return nil, err
	}
	rs, err := view.Execute(ctx, nil)
	op.End(err)
	return rs, err
}

// ValidateQuery checks a query on the server without executing it. A query
// the server rejects yields an *InvalidQueryError; connection-level failures
// pass through unwrapped.
func (c *Client) ValidateQuery(ctx context.Context, q Query) error {
	namespace := q.Namespace
	if namespace == "" {
		namespace = c.namespace
	}
	_, err := c.rpc.Call(ctx, "validate", []any{q.Text, q.Language, namespace})
	if err == nil {
		return nil
	}
	if passthrough(err) {
		return err
	}
	return &InvalidQueryError{Query: q.Text, Err: err}
}

// registerHandle records a server-assigned handle. The protocol offers no
// call for releasing handles; the registry exists so a future disposal
// mechanism has a complete picture of what this client owns.
func (c *Client) registerHandle(h Handle) {
	c.handleMu.Lock()
	c.handles = append(c.handles, h)
	c.handleMu.Unlock()
}

// Handles returns a snapshot of every server handle this client has
// registered.
func (c *Client) Handles() []Handle {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()
	out := make([]Handle, len(c.handles))
	copy(out, c.handles)
	return out
}

// nameAllocator hands out process-unique inbound method names for the
// server-to-client callback channels each protocol object listens on.
type nameAllocator struct {
	poll  atomic.Uint64
	sub   atomic.Uint64
	batch atomic.Uint64
}

func (a *nameAllocator) nextPoll() string {
	return fmt.Sprintf("poll%d", a.poll.Add(1)-1)
}

func (a *nameAllocator) nextSub() string {
	return fmt.Sprintf("sub%d", a.sub.Add(1)-1)
}

func (a *nameAllocator) nextBatch() string {
	return fmt.Sprintf("batch%d", a.batch.Add(1)-1)
}
