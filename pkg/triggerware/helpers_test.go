package triggerware_test

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/triggerware/triggerware-go/pkg/jrpc"
	"github.com/triggerware/triggerware-go/pkg/triggerware"
)

// serverCall is one request or notification the fake server received.
type serverCall struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// serverFunc scripts the fake server's reply for one method. Returning a
// *jrpc.Error produces an error response; any other error fails the test.
type serverFunc func(t *testing.T, params json.RawMessage) (any, *jrpc.Error)

// fakeServer plays the server end of a connection, answering requests from
// a script of per-method handlers and recording everything it receives.
type fakeServer struct {
	t    *testing.T
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]serverFunc
	calls    []serverCall
}

// newTestClient wires a client to a fake server over an in-memory pipe.
// Both ends are torn down at test cleanup.
func newTestClient(t *testing.T, script map[string]serverFunc, opts ...triggerware.Option) (*triggerware.Client, *fakeServer) {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	srv := &fakeServer{
		t:        t,
		conn:     serverConn,
		handlers: script,
	}
	go srv.serve()

	client := triggerware.NewClient(clientConn, opts...)
	t.Cleanup(func() {
		client.Close()
		serverConn.Close()
	})
	return client, srv
}

func (s *fakeServer) serve() {
	dec := json.NewDecoder(s.conn)
	for {
		var call serverCall
		if err := dec.Decode(&call); err != nil {
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, call)
		fn := s.handlers[call.Method]
		s.mu.Unlock()

		if call.ID == nil {
			continue
		}
		if fn == nil {
			s.respondError(call.ID, &jrpc.Error{Code: jrpc.CodeMethodNotFound, Message: "method not found"})
			continue
		}
		result, rpcErr := fn(s.t, call.Params)
		if rpcErr != nil {
			s.respondError(call.ID, rpcErr)
			continue
		}
		s.respond(call.ID, result)
	}
}

func (s *fakeServer) respond(id json.RawMessage, result any) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *fakeServer) respondError(id json.RawMessage, rpcErr *jrpc.Error) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "error": rpcErr})
}

// notify pushes a server-to-client notification.
func (s *fakeServer) notify(method string, params any) {
	s.write(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

func (s *fakeServer) write(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		s.t.Errorf("fake server: marshal: %v", err)
		return
	}
	if _, err := s.conn.Write(data); err != nil {
		s.t.Logf("fake server: write: %v", err)
	}
}

// callsTo returns the recorded params of every request or notification for
// the method, in arrival order.
func (s *fakeServer) callsTo(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c.Params)
		}
	}
	return out
}

// waitCallsTo polls until the method has been called n times, failing the
// test on timeout. Needed only for fire-and-forget traffic; blocking calls
// are recorded before their reply is sent.
func (s *fakeServer) waitCallsTo(method string, n int) []json.RawMessage {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if calls := s.callsTo(method); len(calls) >= n {
			return calls
		}
		if time.Now().After(deadline) {
			s.t.Fatalf("timed out waiting for %d calls to %q", n, method)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// decodeParams unmarshals recorded params into a map for assertions.
func decodeParams(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode recorded params: %v", err)
	}
	return m
}

// ok scripts a fixed successful reply.
func ok(result any) serverFunc {
	return func(*testing.T, json.RawMessage) (any, *jrpc.Error) {
		return result, nil
	}
}

// fail scripts a fixed error reply.
func fail(code int, msg string) serverFunc {
	return func(*testing.T, json.RawMessage) (any, *jrpc.Error) {
		return nil, &jrpc.Error{Code: code, Message: msg}
	}
}

// collectTuples is a TupleHandler that appends into a guarded slice.
type collectTuples struct {
	mu     sync.Mutex
	tuples []triggerware.Row
}

func (c *collectTuples) HandleTuple(tuple triggerware.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tuples = append(c.tuples, tuple)
}

func (c *collectTuples) snapshot() []triggerware.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]triggerware.Row, len(c.tuples))
	copy(out, c.tuples)
	return out
}

func (c *collectTuples) waitFor(t *testing.T, n int) []triggerware.Row {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d tuples", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
