package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// RESTTables implements Tables over the backend's PostgREST endpoint.
type RESTTables struct {
	t *transport
}

var _ Tables = (*RESTTables)(nil)

func (r *RESTTables) tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// Select runs q and returns the matching rows.
func (r *RESTTables) Select(ctx context.Context, q Query) ([]Row, error) {
	if q.Table == "" {
		return nil, fmt.Errorf("select: table name is empty")
	}
	values := url.Values{}
	values.Set("select", "*")
	if err := applyFilters(values, q.Filters); err != nil {
		return nil, err
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		values.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []Row
	err := r.t.do(ctx, request{
		service:  "rest",
		resource: q.Table,
		method:   http.MethodGet,
		path:     r.tablePath(q.Table),
		query:    values,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	return rows, nil
}

// Upsert inserts rows or merges them into existing rows sharing onConflict.
func (r *RESTTables) Upsert(ctx context.Context, table string, rows []Row, onConflict string) ([]Row, error) {
	if table == "" {
		return nil, fmt.Errorf("upsert: table name is empty")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	body, err := jsonBody(rows)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	if onConflict != "" {
		values.Set("on_conflict", onConflict)
	}
	var out []Row
	err = r.t.do(ctx, request{
		service:  "rest",
		resource: table,
		method:   http.MethodPost,
		path:     r.tablePath(table),
		query:    values,
		body:     body,
		headers:  map[string]string{"Prefer": "return=representation,resolution=merge-duplicates"},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	return out, nil
}

// Update applies patch to every row matching filters and returns the updated rows.
func (r *RESTTables) Update(ctx context.Context, table string, filters []Filter, patch Row) ([]Row, error) {
	if err := validateFilters(table, filters); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	values := url.Values{}
	if err := applyFilters(values, filters); err != nil {
		return nil, err
	}
	body, err := jsonBody(patch)
	if err != nil {
		return nil, err
	}
	var out []Row
	err = r.t.do(ctx, request{
		service:  "rest",
		resource: table,
		method:   http.MethodPatch,
		path:     r.tablePath(table),
		query:    values,
		body:     body,
		headers:  map[string]string{"Prefer": "return=representation"},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return out, nil
}

// Delete removes every row matching filters.
func (r *RESTTables) Delete(ctx context.Context, table string, filters []Filter) error {
	if err := validateFilters(table, filters); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	values := url.Values{}
	if err := applyFilters(values, filters); err != nil {
		return err
	}
	err := r.t.do(ctx, request{
		service:  "rest",
		resource: table,
		method:   http.MethodDelete,
		path:     r.tablePath(table),
		query:    values,
		headers:  map[string]string{"Prefer": "return=minimal"},
	}, nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func applyFilters(values url.Values, filters []Filter) error {
	for _, f := range filters {
		if f.Column == "" {
			return fmt.Errorf("filter has empty column")
		}
		val := toString(f.Value)
		switch f.Op {
		case OpEq:
			values.Add(f.Column, "eq."+val)
		case OpNeq:
			values.Add(f.Column, "neq."+val)
		case OpEqFold:
			values.Add(f.Column, "ilike."+escapeLike(val))
		default:
			return fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return nil
}

// escapeLike neutralises LIKE wildcards so ilike behaves as case-insensitive equality.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)
	return r.Replace(s)
}
