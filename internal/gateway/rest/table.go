package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lumigram/internal/gateway"
)

// likeEscaper neutralizes LIKE metacharacters so the substring matches them
// literally. The service rewrites every * in the pattern to %, so an escaped
// * degrades to an escaped % rather than a match-everything wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)

// filterParam encodes one filter in the generated REST API's query syntax:
// col=eq.v, col=in.(a,b), col=ilike.*substr*.
func filterParam(f gateway.Filter) (key, value string, err error) {
	switch f.Op {
	case gateway.OpEq:
		return f.Column, fmt.Sprintf("eq.%v", f.Value), nil
	case gateway.OpIn:
		vals, ok := f.Value.([]string)
		if !ok {
			return "", "", fmt.Errorf("in filter on %q: value must be []string", f.Column)
		}
		quoted := make([]string, len(vals))
		for i, v := range vals {
			quoted[i] = `"` + v + `"`
		}
		return f.Column, "in.(" + strings.Join(quoted, ",") + ")", nil
	case gateway.OpILike:
		substr, ok := f.Value.(string)
		if !ok {
			return "", "", fmt.Errorf("ilike filter on %q: value must be string", f.Column)
		}
		return f.Column, "ilike.*" + likeEscaper.Replace(substr) + "*", nil
	}
	return "", "", fmt.Errorf("unsupported filter op %q", f.Op)
}

func (c *Client) tableURL(table string, q gateway.Query, filters []gateway.Filter) (string, error) {
	params := url.Values{}
	if len(q.Columns) > 0 {
		params.Set("select", strings.Join(q.Columns, ","))
	}
	for _, f := range filters {
		key, value, err := filterParam(f)
		if err != nil {
			return "", err
		}
		params.Add(key, value)
	}
	if q.Order != nil {
		dir := "asc"
		if q.Order.Desc {
			dir = "desc"
		}
		params.Set("order", q.Order.Column+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	u := c.baseURL + "/rest/v1/" + table
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u, nil
}

// Select fetches matching rows into dest (a pointer to a slice).
func (c *Client) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	u, err := c.tableURL(table, q, q.Filters)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, dest); err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return nil
}

// Insert creates a row. The API returns the representation as a one-element
// array; when dest is non-nil the inserted row is decoded into it.
func (c *Client) Insert(ctx context.Context, table string, row any, dest any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/rest/v1/"+table, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	if err := c.doRow(req, dest); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update patches matching rows and decodes the first updated row into dest
// when dest is non-nil.
func (c *Client) Update(ctx context.Context, table string, patch map[string]any, filters []gateway.Filter, dest any) error {
	u, err := c.tableURL(table, gateway.Query{}, filters)
	if err != nil {
		return err
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	if err := c.doRow(req, dest); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Delete removes matching rows.
func (c *Client) Delete(ctx context.Context, table string, filters []gateway.Filter) error {
	u, err := c.tableURL(table, gateway.Query{}, filters)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// doRow executes a write that returns an array representation and unwraps the
// first element into dest.
func (c *Client) doRow(req *http.Request, dest any) error {
	if dest == nil {
		return c.do(req, nil)
	}
	var rows []json.RawMessage
	if err := c.do(req, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return gateway.ErrNotFound
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
