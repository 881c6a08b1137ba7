package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes a staged bulk write against Postgres. Rows are copied into
// a temporary table shaped like Table and then merged on Keys, so a batch
// that repeats existing keys updates them in place.
type Merge struct {
	Table   string
	Columns []string
	Keys    []string
	// Update lists the columns overwritten on conflict. Nil means every
	// column that is not a key.
	Update []string
}

func (m Merge) stageTable() string {
	return "_stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

func (m Merge) updateColumns() []string {
	if m.Update != nil {
		return m.Update
	}
	keys := make(map[string]struct{}, len(m.Keys))
	for _, k := range m.Keys {
		keys[k] = struct{}{}
	}
	var cols []string
	for _, c := range m.Columns {
		if _, ok := keys[c]; !ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// statements renders the stage and merge SQL.
func (m Merge) statements() (stage, merge string, err error) {
	switch {
	case m.Table == "":
		return "", "", eris.New("db: merge: no table")
	case len(m.Columns) == 0:
		return "", "", eris.Errorf("db: merge into %s: no columns", m.Table)
	case len(m.Keys) == 0:
		return "", "", eris.Errorf("db: merge into %s: no conflict keys", m.Table)
	}

	target := tableIdent(m.Table)
	staged := pgx.Identifier{m.stageTable()}.Sanitize()
	cols := identList(m.Columns)

	stage = "CREATE TEMP TABLE " + staged + " (LIKE " + target + " INCLUDING DEFAULTS) ON COMMIT DROP"

	var b strings.Builder
	b.WriteString("INSERT INTO " + target + " (" + cols + ") SELECT " + cols + " FROM " + staged)
	b.WriteString(" ON CONFLICT (" + identList(m.Keys) + ")")
	update := m.updateColumns()
	if len(update) == 0 {
		b.WriteString(" DO NOTHING")
		return stage, b.String(), nil
	}
	sets := make([]string, len(update))
	for i, c := range update {
		id := pgx.Identifier{c}.Sanitize()
		sets[i] = id + " = EXCLUDED." + id
	}
	b.WriteString(" DO UPDATE SET " + strings.Join(sets, ", "))
	return stage, b.String(), nil
}

// Run stages rows with COPY and merges them in a single transaction. It
// returns the number of rows inserted or updated.
func (m Merge) Run(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stage, merge, err := m.statements()
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, stage); err != nil {
		return 0, eris.Wrapf(err, "db: merge: stage table for %s", m.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{m.stageTable()}, m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge: copy %d rows for %s", len(rows), m.Table)
	}
	tag, err := tx.Exec(ctx, merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s", m.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit")
	}
	return tag.RowsAffected(), nil
}

// tableIdent quotes a possibly schema-qualified table name.
func tableIdent(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
