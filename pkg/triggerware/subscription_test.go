package triggerware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/triggerware/triggerware-go/pkg/jrpc"
	"github.com/triggerware/triggerware-go/pkg/triggerware"
)

func subscriptionScript() map[string]serverFunc {
	return map[string]serverFunc{
		"subscribe":   ok(true),
		"unsubscribe": ok(true),
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	client, srv := newTestClient(t, subscriptionScript())

	handler := &collectTuples{}
	sub, err := triggerware.NewSubscription(client,
		triggerware.FOL("((x y) s.t. (added-edge x y))"), handler)
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}
	if sub.Active() {
		t.Fatal("new subscription should be inactive")
	}
	// Inactive subscriptions have made no server contact.
	if n := len(srv.callsTo("subscribe")); n != 0 {
		t.Fatalf("inactive subscription issued %d subscribe calls", n)
	}

	if err := sub.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !sub.Active() {
		t.Fatal("subscription should be active")
	}

	calls := srv.callsTo("subscribe")
	if len(calls) != 1 {
		t.Fatalf("server saw %d subscribe calls", len(calls))
	}
	params := decodeParams(t, calls[0])
	if params["label"] != sub.Label() || params["method"] != sub.Label() {
		t.Fatalf("subscribe params = %v", params)
	}
	if params["combine"] != false {
		t.Fatalf("individual subscription sent combine=%v", params["combine"])
	}

	srv.notify(sub.Label(), map[string]any{"tuple": []any{"a", "b"}})
	tuples := handler.waitFor(t, 1)
	if len(tuples[0]) != 2 || tuples[0][0] != "a" || tuples[0][1] != "b" {
		t.Fatalf("delivered tuple = %v", tuples[0])
	}

	if err := sub.Deactivate(context.Background()); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if sub.Active() {
		t.Fatal("subscription should be inactive after Deactivate")
	}
	if n := len(srv.callsTo("unsubscribe")); n != 1 {
		t.Fatalf("server saw %d unsubscribe calls", n)
	}

	// Reactivation is allowed.
	if err := sub.Activate(context.Background()); err != nil {
		t.Fatalf("second Activate: %v", err)
	}
}

func TestSubscriptionStateErrors(t *testing.T) {
	client, _ := newTestClient(t, subscriptionScript())

	sub, err := triggerware.NewSubscription(client,
		triggerware.FOL("((x) s.t. (added-node x))"), &collectTuples{})
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}

	var se *triggerware.SubscriptionError
	if err := sub.Deactivate(context.Background()); !errors.As(err, &se) {
		t.Fatalf("Deactivate while inactive: err = %v", err)
	}
	if err := sub.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := sub.Activate(context.Background()); !errors.As(err, &se) {
		t.Fatalf("double Activate: err = %v", err)
	}

	batch := triggerware.NewBatchSubscription(client)
	if err := sub.AddToBatch(context.Background(), batch); !errors.As(err, &se) {
		t.Fatalf("AddToBatch while active: err = %v", err)
	}
	if err := sub.RemoveFromBatch(context.Background()); !errors.As(err, &se) {
		t.Fatalf("RemoveFromBatch while not a member: err = %v", err)
	}
}

func TestSubscriptionActivateFailureLeavesItInactive(t *testing.T) {
	script := map[string]serverFunc{
		"subscribe": fail(jrpc.CodeInvalidParams, "not a trigger query"),
	}
	client, _ := newTestClient(t, script)

	sub, err := triggerware.NewSubscription(client,
		triggerware.FOL("((x) s.t. (thing x))"), &collectTuples{})
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}

	var se *triggerware.SubscriptionError
	if err := sub.Activate(context.Background()); !errors.As(err, &se) {
		t.Fatalf("Activate error = %v", err)
	}
	if sub.Active() {
		t.Fatal("failed activation left the subscription active")
	}
}

func TestBatchSubscriptionFanOut(t *testing.T) {
	client, srv := newTestClient(t, subscriptionScript())

	h1 := &collectTuples{}
	h2 := &collectTuples{}
	s1, err := triggerware.NewSubscription(client, triggerware.FOL("((x) s.t. (p x))"), h1)
	if err != nil {
		t.Fatalf("NewSubscription s1: %v", err)
	}
	s2, err := triggerware.NewSubscription(client, triggerware.FOL("((x) s.t. (q x))"), h2)
	if err != nil {
		t.Fatalf("NewSubscription s2: %v", err)
	}

	batch := triggerware.NewBatchSubscription(client)
	if err := batch.AddSubscription(context.Background(), s1); err != nil {
		t.Fatalf("AddSubscription s1: %v", err)
	}
	if err := s2.AddToBatch(context.Background(), batch); err != nil {
		t.Fatalf("AddToBatch s2: %v", err)
	}
	if !s1.InBatch() || !s2.InBatch() {
		t.Fatal("both subscriptions should be batch members")
	}

	// Members subscribe through the batch's channel with combine set.
	calls := srv.callsTo("subscribe")
	if len(calls) != 2 {
		t.Fatalf("server saw %d subscribe calls", len(calls))
	}
	for _, raw := range calls {
		params := decodeParams(t, raw)
		if params["method"] != batch.Method() || params["combine"] != true {
			t.Fatalf("batched subscribe params = %v", params)
		}
	}

	// One transaction matched s1 twice; s2 saw nothing.
	srv.notify(batch.Method(), map[string]any{
		"matches": []map[string]any{
			{"label": s1.Label(), "tuples": [][]any{{"m1"}, {"m2"}}},
			{"label": "sub999", "tuples": [][]any{{"orphan"}}},
		},
	})

	got := h1.waitFor(t, 2)
	if got[0][0] != "m1" || got[1][0] != "m2" {
		t.Fatalf("s1 tuples = %v", got)
	}
	if n := len(h2.snapshot()); n != 0 {
		t.Fatalf("s2 received %d tuples, want 0", n)
	}
}

func TestBatchMembershipTransitions(t *testing.T) {
	client, srv := newTestClient(t, subscriptionScript())

	sub, err := triggerware.NewSubscription(client, triggerware.FOL("((x) s.t. (p x))"), &collectTuples{})
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}
	batch := triggerware.NewBatchSubscription(client)
	other := triggerware.NewBatchSubscription(client)

	if err := sub.AddToBatch(context.Background(), batch); err != nil {
		t.Fatalf("AddToBatch: %v", err)
	}

	var se *triggerware.SubscriptionError
	if err := sub.Activate(context.Background()); !errors.As(err, &se) {
		t.Fatalf("Activate while batched: err = %v", err)
	}
	if err := sub.AddToBatch(context.Background(), other); !errors.As(err, &se) {
		t.Fatalf("joining a second batch: err = %v", err)
	}
	if err := other.RemoveSubscription(context.Background(), sub); !errors.As(err, &se) {
		t.Fatalf("removal from a batch it is not in: err = %v", err)
	}

	if err := batch.RemoveSubscription(context.Background(), sub); err != nil {
		t.Fatalf("RemoveSubscription: %v", err)
	}
	if sub.InBatch() {
		t.Fatal("subscription still reports batch membership")
	}
	calls := srv.callsTo("unsubscribe")
	if len(calls) != 1 {
		t.Fatalf("server saw %d unsubscribe calls", len(calls))
	}
	if params := decodeParams(t, calls[0]); params["combine"] != true {
		t.Fatalf("batched unsubscribe params = %v", params)
	}

	// Free again: individual activation now works.
	if err := sub.Activate(context.Background()); err != nil {
		t.Fatalf("Activate after leaving batch: %v", err)
	}
}

func TestBatchRejectsSubscriptionFromOtherClient(t *testing.T) {
	clientA, _ := newTestClient(t, subscriptionScript())
	clientB, _ := newTestClient(t, subscriptionScript())

	sub, err := triggerware.NewSubscription(clientA, triggerware.FOL("((x) s.t. (p x))"), &collectTuples{})
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}
	batch := triggerware.NewBatchSubscription(clientB)

	var se *triggerware.SubscriptionError
	if err := sub.AddToBatch(context.Background(), batch); !errors.As(err, &se) {
		t.Fatalf("cross-client AddToBatch: err = %v", err)
	}
}
