package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"hivemind.ai/internal/sim/diag"
)

// SQLiteIndex stores per-tick session state blobs and indexes diagnostics
// and productions. State saves are synchronous; diagnostics and productions
// go through a buffered channel drained by a single writer goroutine.
type SQLiteIndex struct {
	db   *sql.DB
	keep int

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropDiag       atomic.Uint64
	dropProduction atomic.Uint64
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	DropDiagTotal       uint64
	DropProductionTotal uint64
}

type reqKind int

const (
	reqDiag reqKind = iota + 1
	reqProduction
	reqState
	reqFlush
)

type req struct {
	kind reqKind

	diag       diag.Entry
	production ProductionRow
	state      StateRow
	blob       []byte
	done       chan error
}

type ProductionRow struct {
	Tick     uint64 `json:"tick"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Zone     string `json:"zone"`
	Facility string `json:"facility"`
	Body     string `json:"body"`
}

type StateRow struct {
	Tick    uint64 `json:"tick"`
	Agents  int    `json:"agents"`
	Tasks   int    `json:"tasks"`
	SavedAt string `json:"saved_at"`
}

// OpenSQLite opens (or creates) the index. keep bounds the number of state
// rows retained; 0 keeps all of them.
func OpenSQLite(path string, keep int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:   db,
		keep: keep,
		ch:   make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS states (
			tick INTEGER PRIMARY KEY,
			blob BLOB NOT NULL,
			agents INTEGER NOT NULL,
			tasks INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS diagnostics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			zone TEXT,
			agent TEXT,
			role TEXT,
			code TEXT,
			message TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_kind_tick ON diagnostics(kind, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_agent_tick ON diagnostics(agent, tick);`,
		`CREATE TABLE IF NOT EXISTS productions (
			tick INTEGER NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			zone TEXT NOT NULL,
			facility TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (tick, name)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SaveState stores blob for tick and prunes old rows.
func (s *SQLiteIndex) SaveState(ctx context.Context, tick uint64, blob []byte) error {
	return s.SaveStateRow(ctx, StateRow{Tick: tick}, blob)
}

// SaveStateRow is SaveState with summary columns filled in. It goes through
// the writer goroutine and waits for the commit.
func (s *SQLiteIndex) SaveStateRow(ctx context.Context, row StateRow, blob []byte) error {
	if s == nil || s.closed.Load() {
		return errors.New("index closed")
	}
	done := make(chan error, 1)
	select {
	case s.ch <- req{kind: reqState, state: row, blob: blob, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) writeState(ctx context.Context, row StateRow, blob []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO states(tick,blob,agents,tasks,saved_at) VALUES(?,?,?,?,?)`,
		int64(row.Tick), blob, row.Agents, row.Tasks, now,
	); err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	if s.keep > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM states WHERE tick NOT IN (SELECT tick FROM states ORDER BY tick DESC LIMIT ?)`,
			s.keep,
		); err != nil {
			return fmt.Errorf("prune states: %w", err)
		}
	}
	return tx.Commit()
}

// LoadLatest returns the newest state blob; ok is false on an empty index.
func (s *SQLiteIndex) LoadLatest(ctx context.Context) (tick uint64, blob []byte, ok bool, err error) {
	var t int64
	err = s.db.QueryRowContext(ctx, `SELECT tick, blob FROM states ORDER BY tick DESC LIMIT 1`).Scan(&t, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	return uint64(t), blob, true, nil
}

func (s *SQLiteIndex) States(ctx context.Context, limit int) ([]StateRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tick, agents, tasks, saved_at FROM states ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StateRow
	for rows.Next() {
		var r StateRow
		var t int64
		if err := rows.Scan(&t, &r.Agents, &r.Tasks, &r.SavedAt); err != nil {
			return nil, err
		}
		r.Tick = uint64(t)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Emit implements diag.Sink. Entries are dropped when the writer falls
// behind; the JSONL log stays the source of truth.
func (s *SQLiteIndex) Emit(e diag.Entry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqDiag, diag: e}:
	default:
		s.dropDiag.Add(1)
	}
}

func (s *SQLiteIndex) RecordProduction(p ProductionRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqProduction, production: p}:
	default:
		s.dropProduction.Add(1)
	}
}

// Flush blocks until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan error, 1)
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropDiagTotal:       s.dropDiag.Load(),
		DropProductionTotal: s.dropProduction.Load(),
	}
}

// Diagnostics returns the newest entries, optionally filtered by kind.
func (s *SQLiteIndex) Diagnostics(ctx context.Context, kind diag.Kind, limit int) ([]diag.Entry, error) {
	q := `SELECT tick, kind, zone, agent, role, code, message FROM diagnostics`
	var args []any
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []diag.Entry
	for rows.Next() {
		var (
			e                            diag.Entry
			t                            int64
			k                            string
			zone, agent, role, code, msg sql.NullString
		)
		if err := rows.Scan(&t, &k, &zone, &agent, &role, &code, &msg); err != nil {
			return nil, err
		}
		e.Tick = uint64(t)
		e.Kind = diag.Kind(k)
		e.Zone, e.Agent, e.Role, e.Code, e.Message = zone.String, agent.String, role.String, code.String, msg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Productions(ctx context.Context, limit int) ([]ProductionRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tick, name, role, zone, facility, body FROM productions ORDER BY tick DESC, name LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductionRow
	for rows.Next() {
		var p ProductionRow
		var t int64
		if err := rows.Scan(&t, &p.Name, &p.Role, &p.Zone, &p.Facility, &p.Body); err != nil {
			return nil, err
		}
		p.Tick = uint64(t)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertDiag, _ := s.db.Prepare(`INSERT INTO diagnostics(tick,kind,zone,agent,role,code,message) VALUES(?,?,?,?,?,?,?)`)
	insertProduction, _ := s.db.Prepare(`INSERT OR REPLACE INTO productions(tick,name,role,zone,facility,body) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertDiag != nil {
			_ = insertDiag.Close()
		}
		if insertProduction != nil {
			_ = insertProduction.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 512
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		var ok bool
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		switch r.kind {
		case reqFlush:
			commit()
			r.done <- nil
			continue
		case reqState:
			commit()
			r.done <- s.writeState(ctx, r.state, r.blob)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqDiag:
			e := r.diag
			if insertDiag != nil {
				if _, err := tx.Stmt(insertDiag).Exec(int64(e.Tick), string(e.Kind), e.Zone, e.Agent, e.Role, e.Code, e.Message); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		case reqProduction:
			p := r.production
			if insertProduction != nil {
				if _, err := tx.Stmt(insertProduction).Exec(int64(p.Tick), p.Name, p.Role, p.Zone, p.Facility, p.Body); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}

// BodyString renders a body for the productions table.
func BodyString[T ~string](parts []T) string {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = string(p)
	}
	return strings.Join(ss, ",")
}
