package triggerware

import (
	"context"
)

// View is a reusable, validated query. Unlike prepared and polled queries a
// view has no server-side handle; it only keeps the parameter set locally
// and may be executed any number of times.
type View struct {
	client *Client
	query  Query
	params map[string]any
}

// NewView validates the query on the server and returns a view for it.
func NewView(ctx context.Context, c *Client, q Query, r *Restriction) (*View, error) {
	v := &View{
		client: c,
		query:  q,
		params: c.baseParams(q, r),
	}
	if err := c.ValidateQuery(ctx, q); err != nil {
		return nil, err
	}
	return v, nil
}

// Execute runs the view on the server, returning a result set over its
// answer. A non-nil restriction overrides the view's limits for this
// execution only.
func (v *View) Execute(ctx context.Context, r *Restriction) (*ResultSet, error) {
	params := make(map[string]any, len(v.params)+2)
	for k, val := range v.params {
		params[k] = val
	}
	if r != nil {
		applyRestriction(params, *r)
	}

	raw, err := v.client.rpc.Call(ctx, "execute-query", params)
	if err != nil {
		if passthrough(err) {
			return nil, err
		}
		return nil, &InvalidQueryError{Query: v.query.Text, Err: err}
	}
	return newResultSet(v.client, raw, v.client.effectiveRestriction(r))
}
