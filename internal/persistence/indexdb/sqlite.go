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

	_ "modernc.org/sqlite"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/kpi"
	"sfcgrowth.ai/internal/sim/replay"
	"sfcgrowth.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of finished and running games.
// Writes are applied by a single goroutine in batched transactions; the
// zstd transcripts stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqGame reqKind = iota + 1
	reqTurn
	reqOutcome
	reqFlush
)

type req struct {
	kind reqKind

	gameID  string
	header  game.TranscriptHeader
	turn    game.TurnLogEntry
	outcome Outcome
	done    chan struct{}
}

// Outcome is the end-of-game summary of one session.
type Outcome struct {
	Phase         game.Phase
	FinalYear     int
	Indicators    kpi.Indicators
	ObjectivesMet bool
	Report        *replay.Report
}

// OutcomeOf summarizes a session. rep is the session's impact report, nil
// when none was computed.
func OutcomeOf(s *game.Session, rep *replay.Report) Outcome {
	o := Outcome{Phase: s.Phase(), FinalYear: s.Year(), Report: rep}
	if s.Year() == 0 {
		return o
	}
	o.Indicators = s.Indicators()
	if _, met, err := s.Objectives(); err == nil {
		o.ObjectivesMet = met
	}
	return o
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
		db: db,
		ch: make(chan req, 4096),
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
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS games (
			game_id TEXT PRIMARY KEY,
			character_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			end_year INTEGER NOT NULL,
			catalog_digest TEXT NOT NULL,
			schedule_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			phase TEXT,
			final_year INTEGER,
			gdp_index REAL,
			unemployment REAL,
			inflation REAL,
			debt_gdp REAL,
			objectives_met INTEGER,
			finished_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_games_character ON games(character_id);`,
		`CREATE TABLE IF NOT EXISTS turns (
			game_id TEXT NOT NULL REFERENCES games(game_id),
			year INTEGER NOT NULL,
			dilemma TEXT,
			choice TEXT,
			hand_json TEXT NOT NULL,
			cards_json TEXT NOT NULL,
			events_json TEXT NOT NULL,
			digest TEXT,
			error TEXT,
			PRIMARY KEY (game_id, year)
		);`,
		`CREATE TABLE IF NOT EXISTS impacts (
			game_id TEXT NOT NULL REFERENCES games(game_id),
			fork_year INTEGER NOT NULL,
			cards_json TEXT NOT NULL,
			available INTEGER NOT NULL,
			gdp_index_diff REAL,
			unemployment_diff REAL,
			inflation_diff REAL,
			debt_gdp_diff REAL,
			error TEXT,
			PRIMARY KEY (game_id, fork_year)
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

func (s *SQLiteIndex) send(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	s.ch <- r
}

// Flush blocks until every queued write is committed.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, done: done}
	<-done
}

// NewTranscript returns a game.Transcript that indexes one session.
func (s *SQLiteIndex) NewTranscript() game.Transcript { return &gameTranscript{s: s} }

type gameTranscript struct {
	s  *SQLiteIndex
	id string
}

func (t *gameTranscript) WriteHeader(h game.TranscriptHeader) error {
	t.id = h.GameID
	t.s.send(req{kind: reqGame, gameID: h.GameID, header: h})
	return nil
}

func (t *gameTranscript) WriteTurn(e game.TurnLogEntry) error {
	if t.id == "" {
		return fmt.Errorf("indexdb: turn %d before header", e.Year)
	}
	t.s.send(req{kind: reqTurn, gameID: t.id, turn: e})
	return nil
}

func (s *SQLiteIndex) RecordOutcome(gameID string, o Outcome) {
	s.send(req{kind: reqOutcome, gameID: gameID, outcome: o})
}

func (s *SQLiteIndex) UpsertCatalogs(ctx context.Context, configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	files := []struct{ name, digest string }{
		{"parameters", cats.Parameters.Digest},
		{"cards", cats.Cards.Digest},
		{"events", cats.Events.Digest},
		{"characters", cats.Characters.Digest},
		{"dilemmas", cats.Dilemmas.Digest},
	}
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(configDir, f.name+".json"))
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: f.name, digest: f.digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('catalog_digest',?)`, cats.Digest()); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertGame, _ := s.db.Prepare(`INSERT INTO games(game_id,character_id,seed,end_year,catalog_digest,schedule_json,started_at) VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(game_id) DO UPDATE SET character_id=excluded.character_id, seed=excluded.seed, end_year=excluded.end_year,
		catalog_digest=excluded.catalog_digest, schedule_json=excluded.schedule_json`)
	insertTurn, _ := s.db.Prepare(`INSERT OR REPLACE INTO turns(game_id,year,dilemma,choice,hand_json,cards_json,events_json,digest,error) VALUES(?,?,?,?,?,?,?,?,?)`)
	updateGame, _ := s.db.Prepare(`UPDATE games SET phase=?, final_year=?, gdp_index=?, unemployment=?, inflation=?, debt_gdp=?, objectives_met=?, finished_at=? WHERE game_id=?`)
	insertImpact, _ := s.db.Prepare(`INSERT OR REPLACE INTO impacts(game_id,fork_year,cards_json,available,gdp_index_diff,unemployment_diff,inflation_diff,debt_gdp_diff,error) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertGame, insertTurn, updateGame, insertImpact} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
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
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqGame:
			h := r.header
			sched, _ := json.Marshal(h.Schedule)
			exec(insertGame, h.GameID, h.CharacterID, int64(h.Seed), h.Tuning.EndYear, h.CatalogDigest, string(sched),
				time.Now().UTC().Format(time.RFC3339Nano))

		case reqTurn:
			e := r.turn
			hand, _ := json.Marshal(nonNil(e.Hand))
			cards, _ := json.Marshal(nonNil(e.Cards))
			events, _ := json.Marshal(nonNil(e.Events))
			exec(insertTurn, r.gameID, e.Year, e.Dilemma, e.Choice, string(hand), string(cards), string(events), e.Digest, e.Error)

		case reqOutcome:
			o := r.outcome
			ind := o.Indicators
			if !exec(updateGame, string(o.Phase), o.FinalYear,
				ind[kpi.GDPIndex], ind[kpi.Unemployment], ind[kpi.Inflation], ind[kpi.DebtGDP],
				boolInt(o.ObjectivesMet), time.Now().UTC().Format(time.RFC3339Nano), r.gameID) {
				continue
			}
			if o.Report == nil {
				break
			}
			for _, imp := range o.Report.Impacts {
				cards, _ := json.Marshal(nonNil(imp.Cards))
				if !exec(insertImpact, r.gameID, imp.ForkYear, string(cards), boolInt(imp.Available),
					diffOrNil(imp, kpi.GDPIndex), diffOrNil(imp, kpi.Unemployment),
					diffOrNil(imp, kpi.Inflation), diffOrNil(imp, kpi.DebtGDP), imp.Error) {
					break
				}
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func diffOrNil(imp replay.Impact, name string) any {
	if !imp.Available {
		return nil
	}
	if v, ok := imp.Diff[name]; ok {
		return v
	}
	return nil
}
