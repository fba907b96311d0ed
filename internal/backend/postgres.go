package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTables implements Tables directly against the backend's Postgres
// database. It is used for self-hosted deployments and batch tooling where
// row-level policies are enforced by the connecting role.
type PostgresTables struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

var _ Tables = (*PostgresTables)(nil)

// NewPostgres opens a connection pool with the desired search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresTables, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &PostgresTables{
		pool:   pool,
		logger: logger.With("component", "postgres"),
		schema: schema,
	}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the connection pool.
func (p *PostgresTables) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (p *PostgresTables) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema files.
func (p *PostgresTables) Migrate(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, p.pool, filesystem)
}

// Select runs q and returns the matching rows.
func (p *PostgresTables) Select(ctx context.Context, q Query) ([]Row, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	rows, err := p.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	return rows, nil
}

// Upsert inserts rows or merges the provided columns into rows sharing onConflict.
func (p *PostgresTables) Upsert(ctx context.Context, table string, rows []Row, onConflict string) ([]Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	var out []Row
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			sql, args, err := buildUpsert(table, row, onConflict)
			if err != nil {
				return err
			}
			res, err := tx.Query(ctx, sql, args...)
			if err != nil {
				return err
			}
			collected, err := collectRows(res)
			if err != nil {
				return err
			}
			out = append(out, collected...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, classifyPgError(err))
	}
	return out, nil
}

// Update applies patch to every row matching filters.
func (p *PostgresTables) Update(ctx context.Context, table string, filters []Filter, patch Row) ([]Row, error) {
	sql, args, err := buildUpdate(table, filters, patch)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	rows, err := p.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return rows, nil
}

// Delete removes every row matching filters.
func (p *PostgresTables) Delete(ctx context.Context, table string, filters []Filter) error {
	if err := validateFilters(table, filters); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	where, args := buildWhere(filters, 1)
	sql := "DELETE FROM " + quoteIdent(table) + where
	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, classifyPgError(err))
	}
	return nil
}

func (p *PostgresTables) query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	res, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyPgError(err)
	}
	rows, err := collectRows(res)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return rows, nil
}

func collectRows(res pgx.Rows) ([]Row, error) {
	maps, err := pgx.CollectRows(res, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(maps))
	for _, m := range maps {
		row := make(Row, len(m))
		for key, val := range m {
			row[key] = normalizePgValue(val)
		}
		out = append(out, row)
	}
	return out, nil
}

// normalizePgValue maps driver-specific types onto the JSON-like values the
// REST transport produces, so callers decode both the same way.
func normalizePgValue(val any) any {
	switch v := val.(type) {
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(v).String()
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return val
	}
}

func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	return pgx.Identifier(parts).Sanitize()
}

func buildSelect(q Query) (string, []any, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("table name is empty")
	}
	for _, f := range q.Filters {
		if f.Column == "" {
			return "", nil, fmt.Errorf("filter has empty column")
		}
	}
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(quoteIdent(q.Table))
	where, args := buildWhere(q.Filters, 1)
	b.WriteString(where)
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, quoteIdent(o.Column)+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String(), args, nil
}

func buildWhere(filters []Filter, start int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for i, f := range filters {
		col := quoteIdent(f.Column)
		ph := "$" + strconv.Itoa(start+i)
		switch f.Op {
		case OpNeq:
			clauses = append(clauses, col+" IS DISTINCT FROM "+ph)
		case OpEqFold:
			clauses = append(clauses, "lower("+col+"::text) = lower("+ph+")")
		default:
			clauses = append(clauses, col+" = "+ph)
		}
		args = append(args, f.Value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func buildUpsert(table string, row Row, onConflict string) (string, []any, error) {
	if table == "" {
		return "", nil, fmt.Errorf("table name is empty")
	}
	if len(row) == 0 {
		return "", nil, fmt.Errorf("empty row")
	}
	cols := sortedColumns(row)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = row[col]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if onConflict != "" {
		var sets []string
		for i, col := range cols {
			if col == onConflict {
				continue
			}
			sets = append(sets, quoted[i]+" = EXCLUDED."+quoted[i])
		}
		if len(sets) == 0 {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", quoteIdent(onConflict))
		} else {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", quoteIdent(onConflict), strings.Join(sets, ", "))
		}
	}
	b.WriteString(" RETURNING *")
	return b.String(), args, nil
}

func buildUpdate(table string, filters []Filter, patch Row) (string, []any, error) {
	if err := validateFilters(table, filters); err != nil {
		return "", nil, err
	}
	if len(patch) == 0 {
		return "", nil, fmt.Errorf("empty patch")
	}
	cols := sortedColumns(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, col := range cols {
		sets[i] = quoteIdent(col) + " = $" + strconv.Itoa(i+1)
		args = append(args, patch[col])
	}
	where, whereArgs := buildWhere(filters, len(cols)+1)
	args = append(args, whereArgs...)
	return "UPDATE " + quoteIdent(table) + " SET " + strings.Join(sets, ", ") + where + " RETURNING *", args, nil
}

func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		se := &StatusError{Service: "postgres", Message: pgErr.Message}
		switch {
		case pgErr.Code == "23505":
			se.kind, se.Status = ErrConflict, 409
		case pgErr.Code == "42501":
			se.kind, se.Status = ErrUnauthorized, 403
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			se.kind, se.Status = ErrRejected, 400
		case pgErr.Code == "42P01":
			se.kind, se.Status = ErrNotFound, 404
		default:
			se.kind, se.Status = ErrTransient, 500
		}
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
