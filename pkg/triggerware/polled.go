package triggerware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/triggerware/triggerware-go/pkg/jrpc"
)

// DeltaHandler receives the row changes each poll of a PolledQuery produces.
// It is invoked on the connection's read goroutine and must not block on
// outbound calls.
type DeltaHandler interface {
	HandleDelta(added, deleted []Row)
}

// PollErrorHandler is an optional interface a DeltaHandler may implement to
// observe polling failures reported by the server, such as a scheduled poll
// skipped because the previous one had not finished.
type PollErrorHandler interface {
	HandlePollError(msg string)
}

// PollControls tunes how the server reports poll results.
type PollControls struct {
	// ReportInitial delivers the first evaluation as an all-added delta.
	ReportInitial bool
	// ReportUnchanged delivers a notification even when a poll finds no
	// changes.
	ReportUnchanged bool
	// Delay postpones the first poll to the schedule's first instant
	// instead of evaluating immediately.
	Delay bool
}

// PolledQuery is a query the server re-evaluates on a schedule, pushing the
// difference from the previous evaluation to the client as a notification.
type PolledQuery struct {
	client    *Client
	query     Query
	method    string
	handle    Handle
	signature []ColumnSignature
	timeout   float64
	handler   DeltaHandler
	stopped   bool
}

type polledRegistration struct {
	Handle    Handle            `json:"handle"`
	Signature []ColumnSignature `json:"signature"`
}

type rowsDelta struct {
	Delta *struct {
		Added   []Row `json:"added"`
		Deleted []Row `json:"deleted"`
	} `json:"delta"`
	Error *string `json:"error"`
}

// NewPolledQuery registers the query for scheduled evaluation and wires the
// server's change notifications to h. A nil schedule leaves polling entirely
// to explicit PollNow calls.
func NewPolledQuery(ctx context.Context, c *Client, q Query, h DeltaHandler, schedule Schedule, controls *PollControls, r *Restriction) (*PolledQuery, error) {
	if h == nil {
		return nil, &PolledQueryError{Msg: "delta handler must not be nil"}
	}
	if err := validateSchedule(schedule); err != nil {
		return nil, &PolledQueryError{Msg: "invalid schedule", Err: err}
	}

	p := &PolledQuery{
		client:  c,
		query:   q,
		method:  c.names.nextPoll(),
		timeout: c.effectiveRestriction(r).Timeout,
		handler: h,
	}

	params := c.baseParams(q, r)
	params["method"] = p.method
	if schedule != nil {
		params["schedule"] = schedule.scheduleValue()
	}
	if controls != nil {
		params["report-initial"] = controls.ReportInitial
		params["report-unchanged"] = controls.ReportUnchanged
		params["delay"] = controls.Delay
	}

	raw, err := c.rpc.Call(ctx, "create-polled-query", params)
	if err != nil {
		if passthrough(err) {
			return nil, err
		}
		return nil, &PolledQueryError{Msg: "registration rejected", Err: err}
	}

	var reg polledRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("decode create-polled-query result: %w", err)
	}
	p.handle = reg.Handle
	p.signature = reg.Signature
	c.registerHandle(p.handle)

	c.rpc.AddMethod(p.method, jrpc.Handler{Notify: p.notify})
	return p, nil
}

func (p *PolledQuery) notify(params json.RawMessage) {
	var d rowsDelta
	if err := json.Unmarshal(params, &d); err != nil {
		p.client.logger.Warn("malformed poll notification",
			slog.String("method", p.method), slog.Any("error", err))
		return
	}
	switch {
	case d.Delta != nil:
		p.handler.HandleDelta(d.Delta.Added, d.Delta.Deleted)
	case d.Error != nil:
		if eh, ok := p.handler.(PollErrorHandler); ok {
			eh.HandlePollError(*d.Error)
			return
		}
		p.client.logger.Warn("poll failed on server",
			slog.String("method", p.method), slog.String("error", *d.Error))
	}
}

// PollNow asks the server for an immediate evaluation, outside the schedule.
// The resulting delta arrives as a notification, not as the reply.
func (p *PolledQuery) PollNow(ctx context.Context) error {
	if p.stopped {
		return &PolledQueryError{Msg: "polled query is stopped"}
	}
	params := map[string]any{"handle": p.handle}
	if p.timeout > 0 {
		params["timelimit"] = p.timeout
	}
	if _, err := p.client.rpc.Call(ctx, "poll-now", params); err != nil {
		if passthrough(err) {
			return err
		}
		return &PolledQueryError{Msg: "poll-now rejected", Err: err}
	}
	return nil
}

// Stop detaches the query's notification handler. Deltas the server sends
// afterwards are discarded. Stop is idempotent.
func (p *PolledQuery) Stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.client.rpc.RemoveMethod(p.method)
}

// Method returns the notification method name the server uses for this
// query's deltas.
func (p *PolledQuery) Method() string { return p.method }

// Handle returns the server-side resource handle.
func (p *PolledQuery) Handle() Handle { return p.handle }

// Signature returns the column signature of the query's rows, when the
// server reported one.
func (p *PolledQuery) Signature() []ColumnSignature { return p.signature }
