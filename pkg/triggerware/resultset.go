package triggerware

import (
	"context"
	"encoding/json"
	"fmt"
)

// executeResult is the wire shape of a query execution or result-set
// creation reply: an optional cursor handle, an optional answer signature,
// and an optional first batch of rows.
type executeResult struct {
	Handle    *Handle           `json:"handle"`
	Signature []ColumnSignature `json:"signature"`
	Batch     *rowBatch         `json:"batch"`
}

type rowBatch struct {
	Tuples    []Row `json:"tuples"`
	Exhausted bool  `json:"exhausted"`
}

// ResultSet is a lazily-paginated, forward-only view over a query answer.
// Rows already fetched are served from a local cache; when the cache runs
// out, the next batch is fetched with a single blocking call. A result set
// is not safe for concurrent use.
//
// Iteration follows the database/sql pattern:
//
//	for rs.Next(ctx) {
//		row := rs.Row()
//		...
//	}
//	if err := rs.Err(); err != nil { ... }
type ResultSet struct {
	client    *Client
	handle    *Handle
	signature []ColumnSignature
	rowLimit  int
	timeout   float64

	cache     []Row
	pos       int
	exhausted bool
	cur       Row
	err       error
}

// newResultSet builds a result set from a raw execution reply. Without a
// handle the server keeps no cursor and the initial batch is all there is.
func newResultSet(c *Client, raw json.RawMessage, r Restriction) (*ResultSet, error) {
	var res executeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode execution result: %w", err)
	}

	rs := &ResultSet{
		client:    c,
		handle:    res.Handle,
		signature: res.Signature,
		rowLimit:  r.RowLimit,
		timeout:   r.Timeout,
		exhausted: res.Handle == nil,
	}
	if res.Batch != nil {
		rs.cache = res.Batch.Tuples
	}
	if res.Handle != nil {
		c.registerHandle(*res.Handle)
	}
	return rs, nil
}

// Next advances to the next row, fetching a new batch from the server when
// the cache is spent. It returns false at the end of the answer or on error;
// consult Err to tell the two apart. Once the answer is exhausted Next never
// issues another network call.
func (rs *ResultSet) Next(ctx context.Context) bool {
	if rs.err != nil {
		return false
	}
	if rs.pos < len(rs.cache) {
		rs.cur = rs.cache[rs.pos]
		rs.pos++
		return true
	}
	if rs.exhausted {
		return false
	}

	var limit, timelimit any
	if rs.rowLimit > 0 {
		limit = rs.rowLimit
	}
	if rs.timeout > 0 {
		timelimit = rs.timeout
	}
	raw, err := rs.client.rpc.Call(ctx, "next-resultset-batch", []any{*rs.handle, limit, timelimit})
	if err != nil {
		rs.err = err
		return false
	}

	var res struct {
		Batch rowBatch `json:"batch"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		rs.err = fmt.Errorf("decode result batch: %w", err)
		return false
	}

	rs.cache = res.Batch.Tuples
	rs.pos = 0
	rs.exhausted = res.Batch.Exhausted
	if len(rs.cache) == 0 {
		rs.exhausted = true
		return false
	}
	rs.cur = rs.cache[rs.pos]
	rs.pos++
	return true
}

// Row returns the row the last successful Next advanced to.
func (rs *ResultSet) Row() Row {
	return rs.cur
}

// Err returns the first error encountered while iterating, if any.
func (rs *ResultSet) Err() error {
	return rs.err
}

// Pull fetches up to n rows, stopping early without error at the end of the
// answer.
func (rs *ResultSet) Pull(ctx context.Context, n int) ([]Row, error) {
	rows := make([]Row, 0, n)
	for len(rows) < n && rs.Next(ctx) {
		rows = append(rows, rs.cur)
	}
	return rows, rs.err
}

// Signature returns the answer signature reported by the server, if any.
func (rs *ResultSet) Signature() []ColumnSignature {
	return rs.signature
}

// Exhausted reports whether the server has no further rows. It never
// transitions back to false.
func (rs *ResultSet) Exhausted() bool {
	return rs.exhausted && rs.pos >= len(rs.cache)
}
