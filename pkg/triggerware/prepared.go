package triggerware

import (
	"context"
	"encoding/json"
	"fmt"
)

// PreparedQuery is a query registered on the server with unbound input
// parameters. Parameters are set by position or, when the server reports
// named parameters, by name; SQL parameters are type-checked against the
// registration's input signature before they reach the wire.
type PreparedQuery struct {
	client      *Client
	query       Query
	restriction Restriction
	params      map[string]any

	handle    Handle
	usesNamed bool
	names     []string
	types     []string
	inputs    []any
}

type prepareResult struct {
	Handle              Handle            `json:"handle"`
	InputSignature      []ColumnSignature `json:"inputSignature"`
	UsesNamedParameters bool              `json:"usesNamedParameters"`
}

// NewPreparedQuery registers the query on the server and records its input
// signature.
func NewPreparedQuery(ctx context.Context, c *Client, q Query, r *Restriction) (*PreparedQuery, error) {
	p := &PreparedQuery{
		client:      c,
		query:       q,
		restriction: c.effectiveRestriction(r),
		params:      c.baseParams(q, r),
	}

	raw, err := c.rpc.Call(ctx, "prepare-query", p.params)
	if err != nil {
		if passthrough(err) {
			return nil, err
		}
		return nil, &InvalidQueryError{Query: q.Text, Err: err}
	}

	var reg prepareResult
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("decode prepare-query result: %w", err)
	}

	p.handle = reg.Handle
	p.usesNamed = reg.UsesNamedParameters
	p.inputs = make([]any, len(reg.InputSignature))
	for _, col := range reg.InputSignature {
		p.names = append(p.names, col.Attribute)
		p.types = append(p.types, col.Type)
	}
	c.registerHandle(p.handle)
	return p, nil
}

// UsesNamedParameters reports whether parameters are addressed by name
// rather than position.
func (p *PreparedQuery) UsesNamedParameters() bool { return p.usesNamed }

// InputArity returns the number of input parameters.
func (p *PreparedQuery) InputArity() int { return len(p.inputs) }

// SetParameter binds the parameter at the given position.
func (p *PreparedQuery) SetParameter(position int, value any) error {
	if p.usesNamed {
		return &PreparedQueryError{Msg: "this query uses named parameters"}
	}
	return p.set(position, value)
}

// SetNamedParameter binds the parameter with the given name.
func (p *PreparedQuery) SetNamedParameter(name string, value any) error {
	if !p.usesNamed {
		return &PreparedQueryError{Msg: "this query uses positional parameters"}
	}
	return p.set(p.indexOf(name), value)
}

// Parameter returns the value bound at the given position.
func (p *PreparedQuery) Parameter(position int) (any, error) {
	if p.usesNamed {
		return nil, &PreparedQueryError{Msg: "this query uses named parameters"}
	}
	if position < 0 || position >= len(p.inputs) {
		return nil, &PreparedQueryError{Msg: "invalid parameter position"}
	}
	return p.inputs[position], nil
}

// NamedParameter returns the value bound to the given name.
func (p *PreparedQuery) NamedParameter(name string) (any, error) {
	if !p.usesNamed {
		return nil, &PreparedQueryError{Msg: "this query uses positional parameters"}
	}
	i := p.indexOf(name)
	if i < 0 {
		return nil, &PreparedQueryError{Msg: "invalid parameter name"}
	}
	return p.inputs[i], nil
}

func (p *PreparedQuery) set(i int, value any) error {
	if i < 0 || i >= len(p.inputs) {
		return &PreparedQueryError{Msg: "invalid parameter name or position"}
	}
	if p.query.Language == "sql" && !sqlTypeOK(p.types[i], value) {
		return &PreparedQueryError{
			Msg: fmt.Sprintf("expected type %s, got %T", p.types[i], value),
		}
	}
	p.inputs[i] = value
	return nil
}

func (p *PreparedQuery) indexOf(name string) int {
	for i, n := range p.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Clone registers a fresh server-side copy of this query carrying the same
// parameter bindings.
func (p *PreparedQuery) Clone(ctx context.Context) (*PreparedQuery, error) {
	clone, err := NewPreparedQuery(ctx, p.client, p.query, &p.restriction)
	if err != nil {
		return nil, err
	}
	copy(clone.inputs, p.inputs)
	return clone, nil
}

// Execute materializes a result set for the current parameter bindings.
func (p *PreparedQuery) Execute(ctx context.Context, r *Restriction) (*ResultSet, error) {
	params := map[string]any{
		"handle": p.handle,
		"inputs": p.inputs,
	}
	eff := p.restriction
	if r != nil {
		if r.RowLimit > 0 {
			eff.RowLimit = r.RowLimit
		}
		if r.Timeout > 0 {
			eff.Timeout = r.Timeout
		}
	}
	applyRestriction(params, eff)

	raw, err := p.client.rpc.Call(ctx, "create-resultset", params)
	if err != nil {
		if passthrough(err) {
			return nil, err
		}
		return nil, &PreparedQueryError{Msg: "execute failed", Err: err}
	}
	return newResultSet(p.client, raw, eff)
}

// sqlTypeOK checks a Go value against a triggerware SQL signature type.
// Numeric values accept the types JSON decoding produces plus the common Go
// integer kinds.
func sqlTypeOK(sigType string, v any) bool {
	switch sigType {
	case "double":
		switch v.(type) {
		case float32, float64:
			return true
		}
	case "integer":
		switch v.(type) {
		case int, int32, int64:
			return true
		}
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "stringcase", "stringnocase", "stringagnostic",
		"date", "time", "timestamp", "interval":
		_, ok := v.(string)
		return ok
	}
	return false
}
