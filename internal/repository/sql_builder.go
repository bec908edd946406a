package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

// LookupChunkSize bounds the number of ids bound into a single IN clause.
// It is set once at startup, before any repository is used.
var LookupChunkSize = 100

// SetLookupChunkSize overrides LookupChunkSize; non-positive values are ignored.
func SetLookupChunkSize(n int) {
	if n > 0 {
		LookupChunkSize = n
	}
}

// Statements are built with ? placeholders and rebound for the active driver.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = LookupChunkSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func execStmt(ctx context.Context, exec sqlx.ExtContext, stmt sq.Sqlizer, label string) (sql.Result, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", label, err)
	}
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return res, nil
}

func selectStmt(ctx context.Context, exec sqlx.ExtContext, dest interface{}, stmt sq.Sqlizer, label string) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", label, err)
	}
	if err := sqlx.SelectContext(ctx, exec, dest, exec.Rebind(query), args...); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}

// table writes rows of one Layer-1 entity table.
type table struct {
	name      string
	key       string
	columns   map[string]bool
	immutable map[string]bool
}

func newTable(name, key string, immutable []string, columns ...string) table {
	t := table{name: name, key: key, columns: make(map[string]bool, len(columns)), immutable: make(map[string]bool, len(immutable))}
	for _, c := range columns {
		t.columns[c] = true
	}
	for _, c := range immutable {
		t.immutable[c] = true
	}
	return t
}

// insert writes the supplied columns plus last_synced.
func (t table) insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error {
	values := t.known(fields)
	values[models.FieldLastSynced] = syncedAt.UTC()
	stmt := builder.Insert(t.name).SetMap(map[string]interface{}(values))
	_, err := execStmt(ctx, exec, stmt, "insert "+t.name)
	return err
}

// update sets the changed columns and last_synced. Identity columns are never written.
func (t table) update(ctx context.Context, exec sqlx.ExtContext, key interface{}, changes models.Fields, syncedAt time.Time) error {
	values := t.known(changes)
	for column := range t.immutable {
		delete(values, column)
	}
	delete(values, t.key)
	values[models.FieldLastSynced] = syncedAt.UTC()

	stmt := builder.Update(t.name).SetMap(map[string]interface{}(values)).Where(sq.Eq{t.key: key})
	res, err := execStmt(ctx, exec, stmt, "update "+t.name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %v not found", t.name, key))
	}
	return nil
}

// touch stamps last_synced on every key, chunked.
func (t table) touch(ctx context.Context, exec sqlx.ExtContext, keys []interface{}, syncedAt time.Time) (int64, error) {
	var total int64
	for _, part := range chunk(keys, LookupChunkSize) {
		stmt := builder.Update(t.name).Set(models.FieldLastSynced, syncedAt.UTC()).Where(sq.Eq{t.key: part})
		res, err := execStmt(ctx, exec, stmt, "touch "+t.name)
		if err != nil {
			return total, err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// existingIDs returns which of ids are present in column.
func (t table) existingIDs(ctx context.Context, exec sqlx.ExtContext, column string, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	for _, part := range chunk(uniqueInt64(ids), LookupChunkSize) {
		var rows []int64
		stmt := builder.Select(column).From(t.name).Where(sq.Eq{column: part})
		if err := selectStmt(ctx, exec, &rows, stmt, "check "+t.name+" ids"); err != nil {
			return nil, err
		}
		for _, id := range rows {
			found[id] = true
		}
	}
	return found, nil
}

func (t table) known(fields models.Fields) models.Fields {
	out := make(models.Fields, len(fields))
	for k, v := range fields {
		if t.columns[k] {
			out[k] = v
		}
	}
	return out
}

func uniqueInt64(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toInterfaces[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
