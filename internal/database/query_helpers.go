// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/metrics"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// queryBuilder helps construct SQL queries with filters. The base query must end in
// a WHERE clause (usually "WHERE 1=1") that filters are ANDed onto.
type queryBuilder struct {
	baseQuery string
	args      []any
	filters   []string
}

func newQueryBuilder(baseQuery string) *queryBuilder {
	return &queryBuilder{
		baseQuery: baseQuery,
		args:      make([]any, 0, 8),
		filters:   make([]string, 0, 4),
	}
}

// addFilter adds a custom filter condition.
func (qb *queryBuilder) addFilter(condition string, args ...any) *queryBuilder {
	qb.filters = append(qb.filters, condition)
	qb.args = append(qb.args, args...)
	return qb
}

// addEquals adds "column = ?" when value is non-empty.
func (qb *queryBuilder) addEquals(column, value string) *queryBuilder {
	if value == "" {
		return qb
	}
	return qb.addFilter(column+" = ?", value)
}

// where returns the accumulated conditions and a copy of their args.
func (qb *queryBuilder) where() (string, []any) {
	clause := ""
	if len(qb.filters) > 0 {
		clause = " AND " + strings.Join(qb.filters, " AND ")
	}
	args := make([]any, len(qb.args))
	copy(args, qb.args)
	return clause, args
}

// build constructs the final query and returns it with args.
func (qb *queryBuilder) build(suffix string, extra ...any) (string, []any) {
	clause, args := qb.where()
	query := qb.baseQuery + clause
	if suffix != "" {
		query += " " + suffix
	}
	return query, append(args, extra...)
}

// buildInClause creates a parameterized IN list.
//
//	placeholders, args := buildInClause([]string{"a", "b"})
//	// placeholders = "?,?", args = []any{"a", "b"}
func buildInClause[T any](items []T) (string, []any) {
	placeholders := make([]string, len(items))
	args := make([]any, len(items))
	for i, item := range items {
		placeholders[i] = "?"
		args[i] = item
	}
	return strings.Join(placeholders, ","), args
}

// rowPlaceholders returns "(?,...,?),(?,...,?)" for rows tuples of width cols.
func rowPlaceholders(rows, cols int) string {
	return repeatTuple("("+strings.TrimSuffix(strings.Repeat("?,", cols), ",")+")", rows)
}

// repeatTuple joins n copies of tuple with commas, for VALUES lists whose
// placeholders need casts.
func repeatTuple(tuple string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = tuple
	}
	return strings.Join(parts, ",")
}

// likeEscaper escapes LIKE metacharacters so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns a pattern for "col ILIKE ? ESCAPE '\'" substring matches.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// scanFunc scans a single row into a result type.
type scanFunc[T any] func(rowScanner) (T, error)

// queryAndScan executes a query and scans all rows using the provided scan function.
func queryAndScan[T any](ctx context.Context, q queryer, query string, args []any, scan scanFunc[T]) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// queryStrings returns the first column of every row.
func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	out, err := queryAndScan(ctx, q, query, args, func(r rowScanner) (string, error) {
		var s string
		err := r.Scan(&s)
		return s, err
	})
	if out == nil && err == nil {
		out = []string{}
	}
	return out, err
}

// withTx runs fn in a transaction, retrying transaction conflicts with doubling
// backoff. Errors left after retries are wrapped in ErrStorage.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(op, time.Since(start), err) }()

	delay := db.conflictDelay
	for attempt := 0; ; attempt++ {
		err = db.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isTransactionConflict(err) || attempt >= db.conflictRetries || ctx.Err() != nil {
			break
		}
		metrics.DBConflictRetries.Inc()
		logging.Ctx(ctx).Debug().Str("op", op).Int("attempt", attempt+1).Dur("delay", delay).
			Msg("transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrStorage, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

func (db *DB) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nullTime binds an optional timestamp in UTC.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullString binds an optional string.
func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// splitList splits a string_agg result, returning an empty slice for NULL.
func splitList(ns sql.NullString, sep string) []string {
	if !ns.Valid || ns.String == "" {
		return []string{}
	}
	return strings.Split(ns.String, sep)
}

// chunk splits n items into [start, end) windows of at most size.
func chunk(n, size int, fn func(start, end int) error) error {
	if size <= 0 {
		size = n
	}
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
