package triggerware

import (
	"context"
	"encoding/json"
	"fmt"
)

// RelDataGroup is one group of related relations published by the server's
// metadata catalog.
type RelDataGroup struct {
	Name     string
	Symbol   string
	Elements []RelDataElement
}

// RelDataElement describes one relation: its name, the names and types of
// its columns, a usage pattern string, and a human-readable description.
type RelDataElement struct {
	Name           string
	SignatureNames []string
	SignatureTypes []string
	Usage          string
	Extra          any
	Description    string
}

// RelData fetches the server's relation catalog. The wire format is
// positional: each group is [name, symbol, element...], each element
// [name, columnNames, columnTypes, usage, extra, description].
func (c *Client) RelData(ctx context.Context) ([]RelDataGroup, error) {
	raw, err := c.rpc.Call(ctx, "reldata2017", []any{})
	if err != nil {
		return nil, err
	}

	var rawGroups []json.RawMessage
	if err := json.Unmarshal(raw, &rawGroups); err != nil {
		return nil, fmt.Errorf("decode reldata2017 result: %w", err)
	}

	groups := make([]RelDataGroup, 0, len(rawGroups))
	for i, rg := range rawGroups {
		var fields []json.RawMessage
		if err := json.Unmarshal(rg, &fields); err != nil {
			return nil, fmt.Errorf("decode relation group %d: %w", i, err)
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("relation group %d: expected at least 2 fields, got %d", i, len(fields))
		}

		var g RelDataGroup
		if err := json.Unmarshal(fields[0], &g.Name); err != nil {
			return nil, fmt.Errorf("relation group %d name: %w", i, err)
		}
		if err := json.Unmarshal(fields[1], &g.Symbol); err != nil {
			return nil, fmt.Errorf("relation group %d symbol: %w", i, err)
		}
		for j, rawElem := range fields[2:] {
			e, err := decodeRelDataElement(rawElem)
			if err != nil {
				return nil, fmt.Errorf("relation group %d element %d: %w", i, j, err)
			}
			g.Elements = append(g.Elements, e)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func decodeRelDataElement(raw json.RawMessage) (RelDataElement, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return RelDataElement{}, err
	}
	if len(fields) < 6 {
		return RelDataElement{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	var e RelDataElement
	dests := []any{&e.Name, &e.SignatureNames, &e.SignatureTypes, &e.Usage, &e.Extra, &e.Description}
	for i, dst := range dests {
		if err := json.Unmarshal(fields[i], dst); err != nil {
			return RelDataElement{}, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return e, nil
}
