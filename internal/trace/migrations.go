package trace

import (
	"context"
	"database/sql"
	"fmt"
)

// schema 所有表的 DDL，都带 IF NOT EXISTS，可以重复执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		workload     TEXT NOT NULL DEFAULT '',
		mlfqs        INTEGER NOT NULL DEFAULT 0,
		ticks        INTEGER NOT NULL DEFAULT 0,
		idle_ticks   INTEGER NOT NULL DEFAULT 0,
		kernel_ticks INTEGER NOT NULL DEFAULT 0,
		switches     INTEGER NOT NULL DEFAULT 0,
		finish_order TEXT NOT NULL DEFAULT '[]',
		error        TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq      INTEGER NOT NULL,
		tick     INTEGER NOT NULL,
		kind     TEXT NOT NULL,
		tid      INTEGER NOT NULL,
		name     TEXT NOT NULL,
		priority INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(run_id, kind)`,
}

// migrate 在一个事务里执行所有 DDL
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return tx.Commit()
}
