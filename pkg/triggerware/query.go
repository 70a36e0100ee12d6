package triggerware

// Query describes a query to run on the triggerware server: its text, the
// language it is written in, and the namespace it resolves names against.
type Query struct {
	Text      string
	Language  string
	Namespace string
}

// FOL builds a first-order-logic query in the client's default namespace.
func FOL(text string) Query {
	return Query{Text: text, Language: "fol"}
}

// SQL builds a SQL query in the client's default namespace.
func SQL(text string) Query {
	return Query{Text: text, Language: "sql"}
}

// In returns a copy of the query bound to an explicit namespace.
func (q Query) In(namespace string) Query {
	q.Namespace = namespace
	return q
}

// Restriction limits the resources a query may consume. A zero RowLimit or
// Timeout means unrestricted.
type Restriction struct {
	RowLimit int
	Timeout  float64 // seconds
}

// Row is one tuple of a query answer. Element types follow JSON decoding:
// string, float64, bool, nil, nested []any / map[string]any.
type Row []any

// ColumnSignature describes one attribute of a query's answer signature.
type ColumnSignature struct {
	Attribute string `json:"attribute"`
	Type      string `json:"type"`
}

// baseParams builds the common parameter object shared by every query
// registration call. The client's defaults fill any field the caller left
// unset.
func (c *Client) baseParams(q Query, r *Restriction) map[string]any {
	namespace := q.Namespace
	if namespace == "" {
		namespace = c.namespace
	}
	params := map[string]any{
		"query":     q.Text,
		"language":  q.Language,
		"namespace": namespace,
	}
	applyRestriction(params, c.effectiveRestriction(r))
	return params
}

// effectiveRestriction overlays the caller's restriction on the client
// defaults.
func (c *Client) effectiveRestriction(r *Restriction) Restriction {
	eff := Restriction{RowLimit: c.fetchSize, Timeout: c.timeout}
	if r != nil {
		if r.RowLimit > 0 {
			eff.RowLimit = r.RowLimit
		}
		if r.Timeout > 0 {
			eff.Timeout = r.Timeout
		}
	}
	return eff
}

func applyRestriction(params map[string]any, r Restriction) {
	if r.RowLimit > 0 {
		params["limit"] = r.RowLimit
	}
	if r.Timeout > 0 {
		params["timelimit"] = r.Timeout
	}
}
