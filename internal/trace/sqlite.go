package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cdfmlr/sham"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// SQLiteStore 用 SQLite 实现 Store
type SQLiteStore struct {
	db  *sql.DB
	log *log.Entry
}

// NewSQLiteStore 打开（或创建）dbPath 处的数据库。
// 测试里可以用 ":memory:"。
func NewSQLiteStore(dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open trace db %s: %w", dbPath, err)
	}
	// 内存数据库每个连接各是一份，只用一个连接
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open trace db %s: %w", dbPath, err)
	}

	return &SQLiteStore{
		db:  db,
		log: logger.WithField("component", "trace"),
	}, nil
}

// sqliteDSN 把 pragma 放进 modernc 的连接串，每个新连接打开时都会执行
func sqliteDSN(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if dbPath != ":memory:" {
		q.Add("_pragma", "journal_mode(wal)")
	}
	return dbPath + "?" + q.Encode()
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate 建表
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.log.Debug("[TRACE] Migrate")
	return migrate(ctx, s.db)
}

// SaveRun 在一个事务里写入 run 和 events
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, events []sham.Event) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.log.WithFields(log.Fields{
		"run":    run.ID,
		"events": len(events),
	}).Debug("[TRACE] Save run")

	order, err := json.Marshal(run.Order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, workload, mlfqs, ticks, idle_ticks, kernel_ticks, switches, finish_order, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workload, run.MLFQS, run.Ticks, run.IdleTicks, run.KernelTicks, run.Switches,
		string(order), run.Error, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, tick, kind, tid, name, priority) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		if _, err := stmt.ExecContext(ctx, run.ID, i, e.Tick, string(e.Kind), int(e.TID), e.Name, e.Priority); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const runColumns = `id, workload, mlfqs, ticks, idle_ticks, kernel_ticks, switches, finish_order, error, created_at`

// GetRun 按 ID 查询，不存在返回 nil, nil
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.log.WithField("run", id).Debug("[TRACE] Get run")

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Runs 所有运行，新的在前
func (s *SQLiteStore) Runs(ctx context.Context) ([]*Run, error) {
	s.log.Debug("[TRACE] List runs")

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events 一次运行的所有事件
func (s *SQLiteStore) Events(ctx context.Context, runID string) ([]sham.Event, error) {
	s.log.WithField("run", runID).Debug("[TRACE] List events")

	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, kind, tid, name, priority FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []sham.Event
	for rows.Next() {
		var e sham.Event
		var kind string
		var tid int
		if err := rows.Scan(&e.Tick, &kind, &tid, &e.Name, &e.Priority); err != nil {
			return nil, err
		}
		e.Kind = sham.EventKind(kind)
		e.TID = sham.TID(tid)
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var order, createdAt string
	err := sc.Scan(&run.ID, &run.Workload, &run.MLFQS, &run.Ticks, &run.IdleTicks, &run.KernelTicks,
		&run.Switches, &order, &run.Error, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(order), &run.Order); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &run, nil
}
