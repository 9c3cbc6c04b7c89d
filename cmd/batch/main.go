package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/caarlos0/env/v11"

	"sfcgrowth.ai/internal/persistence/indexdb"
	persistlog "sfcgrowth.ai/internal/persistence/log"
	"sfcgrowth.ai/internal/persistence/snapshot"
	"sfcgrowth.ai/internal/sim/autoplay"
	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/replay"
	"sfcgrowth.ai/internal/sim/solver"
	"sfcgrowth.ai/internal/sim/tuning"
)

type batchConfig struct {
	ConfigDir  string `env:"SFC_CONFIGS" envDefault:"./configs"`
	DataDir    string `env:"SFC_DATA" envDefault:"./data"`
	TuningPath string `env:"SFC_TUNING"`

	Games      int    `env:"SFC_BATCH_GAMES" envDefault:"10"`
	Strategy   string `env:"SFC_BATCH_STRATEGY" envDefault:"random"`
	Seed       uint64 `env:"SFC_BATCH_SEED" envDefault:"1"`
	Workers    int    `env:"SFC_BATCH_WORKERS" envDefault:"4"`
	Characters string `env:"SFC_BATCH_CHARACTERS"`
	LaterCards bool   `env:"SFC_BATCH_REPLAY_LATER_CARDS"`
	NoLogs     bool   `env:"SFC_DISABLE_TRANSCRIPTS"`
}

func parseConfig(fs *flag.FlagSet, args []string) (batchConfig, error) {
	var cfg batchConfig
	if err := env.Parse(&cfg); err != nil {
		return batchConfig{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "output directory for the index and transcripts")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.IntVar(&cfg.Games, "games", cfg.Games, "games per character")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "autoplay strategy: none|first|random|bonus")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "base seed; game i of a character uses seed+i")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent games")
	fs.StringVar(&cfg.Characters, "characters", cfg.Characters, "comma separated character ids (default: all)")
	fs.BoolVar(&cfg.LaterCards, "replay_later_cards", cfg.LaterCards, "counterfactuals replay cards played after the fork year")
	fs.BoolVar(&cfg.NoLogs, "disable_transcripts", cfg.NoLogs, "do not write zstd game transcripts")
	if err := fs.Parse(args); err != nil {
		return batchConfig{}, err
	}

	if strings.TrimSpace(cfg.TuningPath) == "" {
		cfg.TuningPath = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	if cfg.Games < 1 {
		return batchConfig{}, fmt.Errorf("games must be positive, got %d", cfg.Games)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

func main() {
	logger := log.New(os.Stdout, "[batch] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	idx, err := indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "games.sqlite"))
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	if err := idx.UpsertCatalogs(context.Background(), cfg.ConfigDir, cats, tune); err != nil {
		logger.Printf("upsert catalogs: %v", err)
	}

	r := runner{cfg: cfg, cats: cats, tune: tune, idx: idx, log: logger}
	if err := r.run(); err != nil {
		logger.Fatalf("batch: %v", err)
	}

	idx.Flush()
	sum, err := idx.Summary(context.Background())
	if err != nil {
		logger.Fatalf("summary: %v", err)
	}
	printSummary(os.Stdout, sum)
}

type runner struct {
	cfg  batchConfig
	cats *catalogs.Catalogs
	tune tuning.Tuning
	idx  *indexdb.SQLiteIndex
	log  *log.Logger
}

type job struct {
	character string
	seed      uint64
}

func (r runner) characters() ([]string, error) {
	if strings.TrimSpace(r.cfg.Characters) == "" {
		return append([]string(nil), r.cats.Characters.IDs...), nil
	}
	var out []string
	for _, id := range strings.Split(r.cfg.Characters, ",") {
		id = strings.TrimSpace(id)
		if _, ok := r.cats.Character(id); !ok {
			return nil, fmt.Errorf("%w: %s", game.ErrUnknownCharacter, id)
		}
		out = append(out, id)
	}
	return out, nil
}

// run plays every job on a fixed pool of workers. Sessions share only the
// stateless solver and the index.
func (r runner) run() error {
	strategy, err := autoplay.ParseStrategy(r.cfg.Strategy)
	if err != nil {
		return err
	}
	chars, err := r.characters()
	if err != nil {
		return err
	}
	model := solver.NewGrowthModel(r.tune.Solver.MaxIterations, r.tune.Solver.Threshold)

	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := r.play(j, strategy, model); err != nil {
					r.log.Printf("%s seed=%d: %v", j.character, j.seed, err)
				}
			}
		}()
	}
	for _, c := range chars {
		for i := 0; i < r.cfg.Games; i++ {
			jobs <- job{character: c, seed: r.cfg.Seed + uint64(i)}
		}
	}
	close(jobs)
	wg.Wait()
	return nil
}

func (r runner) play(j job, strategy autoplay.Strategy, model solver.Solver) error {
	sess, err := game.New(game.Config{
		CharacterID: j.character,
		Seed:        j.seed,
		Tuning:      r.tune,
		Replay:      replay.Options{ReplayLaterCards: r.cfg.LaterCards},
	}, r.cats, model, nil)
	if err != nil {
		return err
	}

	var tl *persistlog.TranscriptLogger
	if !r.cfg.NoLogs {
		tl = persistlog.NewTranscriptLogger(r.cfg.DataDir)
		defer tl.Close()
		if err := sess.SetTranscript(fanout{tl, r.idx.NewTranscript()}); err != nil {
			return err
		}
	} else if err := sess.SetTranscript(r.idx.NewTranscript()); err != nil {
		return err
	}

	p := autoplay.Player{Strategy: strategy, Cards: r.cats, Rng: rand.New(rand.NewPCG(j.seed, 0xba7c4))}
	runErr := p.Run(sess)
	var rep *replay.Report
	if rr, err := sess.ImpactReport(); err == nil {
		rep = &rr
	}
	r.idx.RecordOutcome(sess.ID, indexdb.OutcomeOf(sess, rep))
	if !r.cfg.NoLogs {
		if err := snapshot.WriteSnapshot(snapshot.Path(r.cfg.DataDir, sess.ID), snapshot.FromSession(sess, rep)); err != nil {
			r.log.Printf("game %s: snapshot: %v", sess.ID, err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("game %s: %w", sess.ID, runErr)
	}
	r.log.Printf("%s seed=%d game=%s finished year=%d", j.character, j.seed, sess.ID, sess.Year())
	return nil
}

// fanout writes every transcript line to each sink; the first error wins.
type fanout []game.Transcript

func (f fanout) WriteHeader(h game.TranscriptHeader) error {
	var first error
	for _, t := range f {
		if err := t.WriteHeader(h); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WriteTurn(e game.TurnLogEntry) error {
	var first error
	for _, t := range f {
		if err := t.WriteTurn(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func printSummary(w io.Writer, sum []indexdb.CharacterSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHARACTER\tGAMES\tFAILED\tOBJECTIVES MET\tGDP INDEX\tINFLATION\tDEBT/GDP")
	for _, s := range sum {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%.2f\t%.1f\n",
			s.CharacterID, s.Games, s.Failed, s.ObjectivesMet, s.AvgGDPIndex, s.AvgInflation, s.AvgDebtGDP)
	}
	_ = tw.Flush()
}
