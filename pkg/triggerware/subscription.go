package triggerware

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/triggerware/triggerware-go/pkg/jrpc"
)

// TupleHandler receives the tuples a subscription's trigger produces. It is
// invoked on the connection's read goroutine and must not block on outbound
// calls.
type TupleHandler interface {
	HandleTuple(tuple Row)
}

// Subscription asks the server to report future changes matching a query.
// A subscription is created inactive; Activate registers it with the server
// on its own notification channel, while AddToBatch routes its matches
// through a BatchSubscription instead. The two modes are exclusive.
type Subscription struct {
	client  *Client
	query   Query
	label   string
	params  map[string]any
	handler TupleHandler

	mu     sync.Mutex
	active bool
	batch  *BatchSubscription
}

type tupleNotification struct {
	Tuple Row `json:"tuple"`
}

// NewSubscription builds an inactive subscription for the query. It touches
// the server only once Activate or AddToBatch is called.
func NewSubscription(c *Client, q Query, h TupleHandler) (*Subscription, error) {
	if h == nil {
		return nil, &SubscriptionError{Msg: "tuple handler must not be nil"}
	}
	s := &Subscription{
		client:  c,
		query:   q,
		label:   c.names.nextSub(),
		params:  c.baseParams(q, nil),
		handler: h,
	}
	s.params["label"] = s.label
	return s, nil
}

// Label returns the subscription's server-visible label.
func (s *Subscription) Label() string { return s.label }

// Active reports whether the subscription is individually registered with
// the server.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// InBatch reports whether the subscription is a member of a batch.
func (s *Subscription) InBatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch != nil
}

// Activate registers the subscription with the server and starts delivering
// matches to the handler.
func (s *Subscription) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch != nil {
		return &SubscriptionError{Msg: "subscription is part of a batch"}
	}
	if s.active {
		return &SubscriptionError{Msg: "subscription is already active"}
	}

	if err := s.subscribe(ctx, s.label, false); err != nil {
		return err
	}
	s.client.rpc.AddMethod(s.label, jrpc.Handler{Notify: s.notify})
	s.active = true
	return nil
}

// Deactivate unregisters the subscription. It may be activated again later.
func (s *Subscription) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch != nil {
		return &SubscriptionError{Msg: "subscription is part of a batch"}
	}
	if !s.active {
		return &SubscriptionError{Msg: "subscription is already inactive"}
	}

	if err := s.unsubscribe(ctx, s.label, false); err != nil {
		return err
	}
	s.client.rpc.RemoveMethod(s.label)
	s.active = false
	return nil
}

// AddToBatch routes the subscription's matches through the batch. The
// subscription must be inactive, not already in a batch, and created on the
// same client as the batch.
func (s *Subscription) AddToBatch(ctx context.Context, b *BatchSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return &SubscriptionError{Msg: "subscription is active"}
	}
	if s.batch != nil {
		return &SubscriptionError{Msg: "subscription is already part of a batch"}
	}
	if s.client != b.client {
		return &SubscriptionError{Msg: "subscription and batch belong to different clients"}
	}

	if err := s.subscribe(ctx, b.method, true); err != nil {
		return err
	}
	b.add(s)
	s.batch = b
	return nil
}

// RemoveFromBatch detaches the subscription from its batch.
func (s *Subscription) RemoveFromBatch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch == nil {
		return &SubscriptionError{Msg: "subscription is not part of a batch"}
	}

	if err := s.unsubscribe(ctx, s.batch.method, true); err != nil {
		return err
	}
	s.batch.remove(s.label)
	s.batch = nil
	return nil
}

func (s *Subscription) subscribe(ctx context.Context, method string, combine bool) error {
	return s.call(ctx, "subscribe", method, combine)
}

func (s *Subscription) unsubscribe(ctx context.Context, method string, combine bool) error {
	return s.call(ctx, "unsubscribe", method, combine)
}

func (s *Subscription) call(ctx context.Context, op, method string, combine bool) error {
	params := make(map[string]any, len(s.params)+2)
	for k, v := range s.params {
		params[k] = v
	}
	params["method"] = method
	params["combine"] = combine

	if _, err := s.client.rpc.Call(ctx, op, params); err != nil {
		if passthrough(err) {
			return err
		}
		return &SubscriptionError{Msg: op + " rejected", Err: err}
	}
	return nil
}

func (s *Subscription) notify(params json.RawMessage) {
	var n tupleNotification
	if err := json.Unmarshal(params, &n); err != nil {
		s.client.logger.Warn("malformed subscription notification",
			slog.String("label", s.label), slog.Any("error", err))
		return
	}
	s.handler.HandleTuple(n.Tuple)
}

// BatchSubscription multiplexes several subscriptions over one notification
// channel. A single change on the server can match multiple member
// subscriptions; the batch fans each group of tuples out to the member it
// was matched for.
type BatchSubscription struct {
	client *Client
	method string

	mu   sync.Mutex
	subs map[string]*Subscription
}

type batchNotification struct {
	Matches []struct {
		Label  string `json:"label"`
		Tuples []Row  `json:"tuples"`
	} `json:"matches"`
}

// NewBatchSubscription creates an empty batch and registers its notification
// channel with the connection.
func NewBatchSubscription(c *Client) *BatchSubscription {
	b := &BatchSubscription{
		client: c,
		method: c.names.nextBatch(),
		subs:   make(map[string]*Subscription),
	}
	c.rpc.AddMethod(b.method, jrpc.Handler{Notify: b.notify})
	return b
}

// Method returns the notification method name the server uses for this
// batch's matches.
func (b *BatchSubscription) Method() string { return b.method }

// AddSubscription adds s to the batch. Equivalent to s.AddToBatch(ctx, b).
func (b *BatchSubscription) AddSubscription(ctx context.Context, s *Subscription) error {
	return s.AddToBatch(ctx, b)
}

// RemoveSubscription removes s from the batch.
func (b *BatchSubscription) RemoveSubscription(ctx context.Context, s *Subscription) error {
	b.mu.Lock()
	_, member := b.subs[s.label]
	b.mu.Unlock()
	if !member {
		return &SubscriptionError{Msg: "subscription is not part of this batch"}
	}
	return s.RemoveFromBatch(ctx)
}

func (b *BatchSubscription) add(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s.label] = s
}

func (b *BatchSubscription) remove(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, label)
}

func (b *BatchSubscription) notify(params json.RawMessage) {
	var n batchNotification
	if err := json.Unmarshal(params, &n); err != nil {
		b.client.logger.Warn("malformed batch notification",
			slog.String("method", b.method), slog.Any("error", err))
		return
	}
	for _, m := range n.Matches {
		b.mu.Lock()
		s := b.subs[m.Label]
		b.mu.Unlock()
		if s == nil {
			continue
		}
		for _, t := range m.Tuples {
			s.handler.HandleTuple(t)
		}
	}
}
