// Package backend talks to the hosted backend-as-a-service: tabular storage
// with row-level policies, authentication, object storage and serverless
// functions. Every consumer receives an explicitly constructed Client.
package backend

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the backend rejected the caller's credential or policy check.
	ErrUnauthorized = errors.New("backend unauthorized")
	// ErrNotFound indicates the addressed resource does not exist.
	ErrNotFound = errors.New("backend not found")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("backend conflict")
	// ErrRejected indicates the backend refused the payload as invalid.
	ErrRejected = errors.New("backend rejected request")
	// ErrTransient covers network failures, throttling and 5xx responses.
	ErrTransient = errors.New("backend unavailable")
)

// Row is one record of a remote table keyed by column name.
type Row map[string]any

// Op is a filter comparison.
type Op string

const (
	// OpEq matches exact equality.
	OpEq Op = "eq"
	// OpNeq matches inequality.
	OpNeq Op = "neq"
	// OpEqFold matches case-insensitive equality of text columns.
	OpEqFold Op = "eqfold"
)

// Filter restricts a query to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// EqFold builds a case-insensitive equality filter.
func EqFold(column, value string) Filter {
	return Filter{Column: column, Op: OpEqFold, Value: value}
}

// Order sorts query results by Column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a select against one table.
type Query struct {
	Table   string
	Filters []Filter
	Order   []Order
	Limit   int
}

// Tables is the generic tabular request interface of the backend.
type Tables interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Upsert(ctx context.Context, table string, rows []Row, onConflict string) ([]Row, error)
	Update(ctx context.Context, table string, filters []Filter, patch Row) ([]Row, error)
	Delete(ctx context.Context, table string, filters []Filter) error
}

// StatusError carries the HTTP status and backend message of a failed call.
type StatusError struct {
	Service string
	Status  int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: %s status=%d", e.kind, e.Service, e.Status)
	}
	return fmt.Sprintf("%v: %s status=%d: %s", e.kind, e.Service, e.Status, e.Message)
}

// Unwrap exposes the sentinel classification.
func (e *StatusError) Unwrap() error {
	return e.kind
}

// MessageOf returns the backend-provided message of err when it carries one.
func MessageOf(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's bearer credential so table, storage
// and function calls run under the caller's row-level policies.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFrom returns the bearer credential stored in ctx.
func AccessTokenFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

func validateFilters(table string, filters []Filter) error {
	if table == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(filters) == 0 {
		return fmt.Errorf("refusing unfiltered write on %s", table)
	}
	for _, f := range filters {
		if f.Column == "" {
			return fmt.Errorf("filter on %s has empty column", table)
		}
		switch f.Op {
		case OpEq, OpNeq, OpEqFold:
		default:
			return fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return nil
}
