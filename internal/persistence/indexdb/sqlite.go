package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"citycore/internal/logging"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world"
)

// SQLiteIndex is a queryable secondary copy of the tick log, the audit trail
// and the latest zone ownership and balances. The JSONL logs remain the
// source of truth; writes are queued and dropped if the indexer falls behind.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropAudit atomic.Uint64
	dropState atomic.Uint64
	failTotal atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqState
	reqSync
)

func (k reqKind) String() string {
	switch k {
	case reqTick:
		return "tick"
	case reqAudit:
		return "audit"
	case reqState:
		return "state"
	case reqSync:
		return "sync"
	}
	return "unknown"
}

type req struct {
	kind reqKind
	done chan struct{}

	tick  world.TickLogEntry
	audit world.AuditEntry
	state world.StateRecord
}

type Stats struct {
	QueueDepth     int
	QueueCapacity  int
	DropTickTotal  uint64
	DropAuditTotal uint64
	DropStateTotal uint64
	WriteFailTotal uint64
}

func OpenSQLite(path string, log logrus.FieldLogger) (*SQLiteIndex, error) {
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
		db:  db,
		log: logging.Component(log, "indexdb"),
		ch:  make(chan req, 65536),
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
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			requests INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS requests (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			conn TEXT NOT NULL,
			kind TEXT NOT NULL,
			req_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_conn_tick ON requests(conn, tick);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			tick INTEGER NOT NULL,
			conn TEXT NOT NULL,
			event TEXT NOT NULL,
			name TEXT,
			PRIMARY KEY (tick, conn, event)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action_tick ON audits(action, tick);`,
		`CREATE TABLE IF NOT EXISTS zone_owners (
			property_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner TEXT,
			owner_name TEXT,
			for_sale INTEGER NOT NULL,
			price INTEGER NOT NULL,
			last_paid INTEGER NOT NULL,
			government INTEGER NOT NULL,
			tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS balances (
			conn TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance INTEGER NOT NULL,
			stone INTEGER NOT NULL,
			online INTEGER NOT NULL,
			tick INTEGER NOT NULL
		);`,
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

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropAuditTotal: s.dropAudit.Load(),
		DropStateTotal: s.dropState.Load(),
		WriteFailTotal: s.failTotal.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordState(rec world.StateRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqState, state: rec}:
	default:
		s.dropState.Add(1)
	}
	return nil
}

// Sync blocks until everything queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertTuning stores the tuning the server actually runs with.
func (s *SQLiteIndex) UpsertTuning(ctx context.Context, tune tuning.Tuning) error {
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", "1"},
		{"world_id", tune.WorldID},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"tuning_json", string(b)},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, r[0], r[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("begin tx")
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
		if err := tx.Commit(); err != nil {
			s.failTotal.Add(1)
			s.log.WithError(err).Warn("commit")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	fail := func(what string, err error) {
		s.failTotal.Add(1)
		s.log.WithError(err).WithField("op", what).Warn("index write")
		if tx != nil {
			_ = tx.Rollback()
			tx = nil
		}
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		var (
			n   int
			err error
		)
		switch r.kind {
		case reqTick:
			n, err = writeTick(ctx, tx, r.tick)
		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			n, err = writeAudit(ctx, tx, a, auditSeq)
			auditSeq++
		case reqState:
			n, err = writeState(ctx, tx, r.state)
		}
		if err != nil {
			fail(r.kind.String(), err)
			continue
		}
		opCount += n
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

func writeTick(ctx context.Context, tx *sql.Tx, e world.TickLogEntry) (int, error) {
	n := 0
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,requests) VALUES(?,?,?,?,?)`,
		int64(e.Tick), e.Digest, len(e.Joins), len(e.Leaves), len(e.Requests),
	); err != nil {
		return n, err
	}
	n++
	for _, j := range e.Joins {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO sessions(tick,conn,event,name) VALUES(?,?,'join',?)`, int64(e.Tick), j.Conn, j.Name); err != nil {
			return n, err
		}
		n++
	}
	for _, id := range e.Leaves {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO sessions(tick,conn,event,name) VALUES(?,?,'leave',NULL)`, int64(e.Tick), id); err != nil {
			return n, err
		}
		n++
	}
	for i, r := range e.Requests {
		b, _ := json.Marshal(r.Req)
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO requests(tick,seq,conn,kind,req_json) VALUES(?,?,?,?,?)`, int64(e.Tick), i, r.Conn, r.Req.Kind, string(b)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func writeAudit(ctx context.Context, tx *sql.Tx, a world.AuditEntry, seq int) (int, error) {
	raw, _ := json.Marshal(a)
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO audits(tick,seq,actor,action,target,ok,code,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`,
		int64(a.Tick), seq, a.Actor, a.Action, int64(a.Target), boolInt(a.OK), a.Code, a.Reason, string(raw),
	)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

// writeState replaces the read model with the snapshot. Players missing from
// it are kept and marked offline so their last balance stays queryable.
func writeState(ctx context.Context, tx *sql.Tx, rec world.StateRecord) (int, error) {
	n := 0
	for _, z := range rec.Zones {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO zone_owners(property_id,name,owner,owner_name,for_sale,price,last_paid,government,tick) VALUES(?,?,?,?,?,?,?,?,?)`,
			z.PropertyID, z.Name, nullString(z.Owner), nullString(z.OwnerName), boolInt(z.ForSale), z.Price, z.LastPaid, boolInt(z.Government), int64(rec.Tick),
		); err != nil {
			return n, err
		}
		n++
	}
	if _, err := tx.ExecContext(ctx, `UPDATE balances SET online=0`); err != nil {
		return n, err
	}
	for _, b := range rec.Balances {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO balances(conn,name,balance,stone,online,tick) VALUES(?,?,?,?,1,?)`,
			b.Conn, b.Name, b.Balance, b.Stone, int64(rec.Tick),
		); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
