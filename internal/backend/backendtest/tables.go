// Package backendtest provides in-memory stand-ins for the backend services.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pechincha/internal/backend"
)

// Tables is an in-memory backend.Tables keeping rows in insertion order.
type Tables struct {
	mu   sync.Mutex
	data map[string][]backend.Row

	// Fail, when set, is consulted before every operation; a non-nil error
	// is returned to the caller instead of touching the data.
	Fail func(op, table string) error

	calls map[string]int
}

var _ backend.Tables = (*Tables)(nil)

// NewTables builds an empty store.
func NewTables() *Tables {
	return &Tables{data: make(map[string][]backend.Row), calls: make(map[string]int)}
}

// Seed appends rows to table as-is.
func (t *Tables) Seed(table string, rows ...backend.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		t.data[table] = append(t.data[table], clone(r))
	}
}

// Rows returns a copy of every row of table.
func (t *Tables) Rows(table string) []backend.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]backend.Row, 0, len(t.data[table]))
	for _, r := range t.data[table] {
		out = append(out, clone(r))
	}
	return out
}

// Calls reports how often op ran against table.
func (t *Tables) Calls(op, table string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op+":"+table]
}

func (t *Tables) enter(op, table string) error {
	t.calls[op+":"+table]++
	if t.Fail != nil {
		return t.Fail(op, table)
	}
	return nil
}

func (t *Tables) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("select", q.Table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []backend.Row
	for _, r := range t.data[q.Table] {
		if matches(r, q.Filters) {
			out = append(out, clone(r))
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (t *Tables) Upsert(ctx context.Context, table string, rows []backend.Row, onConflict string) ([]backend.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("upsert", table); err != nil {
		return nil, err
	}
	var out []backend.Row
	for _, row := range rows {
		merged := false
		if onConflict != "" {
			for i, existing := range t.data[table] {
				if fmt.Sprint(existing[onConflict]) == fmt.Sprint(row[onConflict]) {
					for k, v := range row {
						existing[k] = v
					}
					t.data[table][i] = existing
					out = append(out, clone(existing))
					merged = true
					break
				}
			}
		}
		if !merged {
			t.data[table] = append(t.data[table], clone(row))
			out = append(out, clone(row))
		}
	}
	return out, nil
}

func (t *Tables) Update(ctx context.Context, table string, filters []backend.Filter, patch backend.Row) ([]backend.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("update", table); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("refusing unfiltered write on %s", table)
	}
	var out []backend.Row
	for _, r := range t.data[table] {
		if !matches(r, filters) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		out = append(out, clone(r))
	}
	return out, nil
}

func (t *Tables) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("delete", table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return fmt.Errorf("refusing unfiltered write on %s", table)
	}
	kept := t.data[table][:0]
	for _, r := range t.data[table] {
		if !matches(r, filters) {
			kept = append(kept, r)
		}
	}
	t.data[table] = kept
	return nil
}

func matches(r backend.Row, filters []backend.Filter) bool {
	for _, f := range filters {
		got := text(r[f.Column])
		want := text(f.Value)
		switch f.Op {
		case backend.OpNeq:
			if got == want {
				return false
			}
		case backend.OpEqFold:
			if !strings.EqualFold(got, want) {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}

func compare(a, b any) int {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(text(a), text(b))
}

func number(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}

func clone(r backend.Row) backend.Row {
	out := make(backend.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
