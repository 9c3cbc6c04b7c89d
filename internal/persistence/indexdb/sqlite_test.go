package indexdb

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"sfcgrowth.ai/internal/sim/autoplay"
	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/solver"
	"sfcgrowth.ai/internal/sim/tuning"
)

const configDir = "../../../configs"

func playGame(t *testing.T, idx *SQLiteIndex, cats *catalogs.Catalogs, character string, seed uint64) *game.Session {
	t.Helper()
	tu := tuning.Defaults()
	tu.EndYear = 3
	s, err := game.New(game.Config{CharacterID: character, Seed: seed, Tuning: tu}, cats, solver.NewGrowthModel(1000, 1e-6), nil)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	if err := s.SetTranscript(idx.NewTranscript()); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	p := autoplay.Player{Strategy: autoplay.First, Cards: cats, Rng: rand.New(rand.NewPCG(seed, 0))}
	if err := p.Run(s); err != nil {
		t.Fatalf("autoplay: %v", err)
	}
	rep, err := s.ImpactReport()
	if err != nil {
		t.Fatalf("impact report: %v", err)
	}
	idx.RecordOutcome(s.ID, OutcomeOf(s, &rep))
	return s
}

func TestSQLiteIndex_GamesTurnsAndSummary(t *testing.T) {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.UpsertCatalogs(ctx, configDir, cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}

	a := playGame(t, idx, cats, "money_monk", 1)
	playGame(t, idx, cats, "money_monk", 2)
	playGame(t, idx, cats, "austerity_apostle", 3)
	idx.Flush()

	sum, err := idx.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum) != 2 || sum[0].CharacterID != "austerity_apostle" || sum[1].Games != 2 {
		t.Fatalf("summary: %+v", sum)
	}
	if sum[1].AvgGDPIndex <= 0 || sum[1].Failed != 0 {
		t.Fatalf("summary aggregates: %+v", sum[1])
	}

	turns, err := idx.Turns(ctx, a.ID)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	hist := a.History()
	if len(turns) != len(hist) {
		t.Fatalf("turns=%d history=%d", len(turns), len(hist))
	}
	for i, e := range turns {
		if e.Year != i+1 || e.Digest != hist[i].Digest || len(e.Cards) != len(hist[i].Cards) {
			t.Fatalf("turn %d: %+v", i, e)
		}
	}

	diffs, err := idx.ImpactDiff(ctx, a.ID)
	if err != nil {
		t.Fatalf("ImpactDiff: %v", err)
	}
	if len(diffs) != 3 {
		t.Fatalf("impact diffs: %+v", diffs)
	}
}

func TestSQLiteIndex_CatalogRowsPersist(t *testing.T) {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := idx.UpsertCatalogs(ctx, configDir, cats, tuning.Defaults()); err != nil {
			t.Fatalf("UpsertCatalogs #%d: %v", i, err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 6 {
		t.Fatalf("catalog rows: %d", n)
	}
	var digest string
	if err := db.QueryRow(`SELECT digest FROM catalogs WHERE name='cards'`).Scan(&digest); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if digest != cats.Cards.Digest {
		t.Fatalf("cards digest mismatch")
	}
}

func TestSQLiteIndex_NilAndClosedAreNoops(t *testing.T) {
	var idx *SQLiteIndex
	idx.RecordOutcome("x", Outcome{})
	idx.Flush()

	path := filepath.Join(t.TempDir(), "index.db")
	live, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := live.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	live.RecordOutcome("x", Outcome{})
	live.Flush()
	if err := live.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
