package direct

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lumigram/internal/gateway"
)

// TableStore implements gateway.TableStore over PostgreSQL. Filters compile
// to parameterized WHERE clauses; the set filter uses = ANY($n) so a batched
// lookup stays a single query.
type TableStore struct {
	db *sqlx.DB
}

func NewTableStore(db *sqlx.DB) *TableStore {
	return &TableStore{db: db}
}

// likeEscaper neutralizes the LIKE pattern metacharacters so a substring
// filter matches them literally instead of as wildcards.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildWhere compiles filters into a WHERE clause with placeholders starting
// at $start. Returns an empty clause for no filters.
func buildWhere(filters []gateway.Filter, start int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		n := start + len(args)
		switch f.Op {
		case gateway.OpEq:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", f.Column, n))
			args = append(args, f.Value)
		case gateway.OpIn:
			vals, ok := f.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("in filter on %q: value must be []string", f.Column)
			}
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", f.Column, n))
			args = append(args, pq.Array(vals))
		case gateway.OpILike:
			substr, ok := f.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("ilike filter on %q: value must be string", f.Column)
			}
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", f.Column, n))
			args = append(args, "%"+likeEscaper.Replace(substr)+"%")
		default:
			return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildSelect(table string, q gateway.Query) (string, []any, error) {
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}

	where, args, err := buildWhere(q.Filters, 1)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s", cols, table, where)
	if q.Order != nil {
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		sql += fmt.Sprintf(" ORDER BY %s %s", q.Order.Column, dir)
	}
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return sql, args, nil
}

// rowColumns extracts column names and values from a struct's db tags.
// Fields tagged db:"-" or untagged are skipped.
func rowColumns(row any) ([]string, []any, error) {
	v := reflect.ValueOf(row)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("row must be a struct, got %T", row)
	}

	t := v.Type()
	var cols []string
	var vals []any
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
		vals = append(vals, v.Field(i).Interface())
	}
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("row type %T has no db-tagged fields", row)
	}
	return cols, vals, nil
}

// Select fetches matching rows into dest (a pointer to a slice).
func (s *TableStore) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	sql, args, err := buildSelect(table, q)
	if err != nil {
		return err
	}
	if err := s.db.SelectContext(ctx, dest, sql, args...); err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return nil
}

// Insert creates a row and decodes it back into dest when dest is non-nil.
func (s *TableStore) Insert(ctx context.Context, table string, row any, dest any) error {
	cols, vals, err := rowColumns(row)
	if err != nil {
		return err
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if dest == nil {
		_, err = s.db.ExecContext(ctx, sql, vals...)
	} else {
		err = s.db.GetContext(ctx, dest, sql, vals...)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, mapPQError(err))
	}
	return nil
}

// Update patches matching rows. Patch keys are applied in sorted order so the
// generated SQL is deterministic. Refuses an unfiltered update.
func (s *TableStore) Update(ctx context.Context, table string, patch map[string]any, filters []gateway.Filter, dest any) error {
	if len(patch) == 0 {
		return fmt.Errorf("update %s: empty patch", table)
	}
	if len(filters) == 0 {
		return fmt.Errorf("update %s: refusing unfiltered update", table)
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(filters))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", k, i+1)
		args = append(args, patch[k])
	}

	where, whereArgs, err := buildWhere(filters, len(args)+1)
	if err != nil {
		return err
	}
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(sets, ", "), where)

	if dest == nil {
		_, err = s.db.ExecContext(ctx, sql, args...)
	} else {
		err = s.db.GetContext(ctx, dest, sql, args...)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", table, mapPQError(err))
	}
	return nil
}

// Delete removes matching rows. Refuses an unfiltered delete.
func (s *TableStore) Delete(ctx context.Context, table string, filters []gateway.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("delete %s: refusing unfiltered delete", table)
	}
	where, args, err := buildWhere(filters, 1)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+where, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// mapPQError translates driver errors the callers care about onto the gateway
// taxonomy. 23505 is PostgreSQL's unique violation.
func mapPQError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", gateway.ErrConflict, pqErr.Detail)
	}
	return err
}
