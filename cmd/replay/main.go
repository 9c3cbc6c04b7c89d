package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	persistlog "sfcgrowth.ai/internal/persistence/log"
	"sfcgrowth.ai/internal/persistence/snapshot"
	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/dilemma"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/replay"
	"sfcgrowth.ai/internal/sim/solver"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to <game_id>.snap.zst to summarize (optional)")
		transcript = flag.String("transcript", "", "path to <game_id>.jsonl.zst")
		gamesDir   = flag.String("games", "", "directory of transcripts to verify (alternative to -transcript)")
		configDir  = flag.String("configs", "./configs", "config directory")
		allowDrift = flag.Bool("allow_catalog_drift", false, "replay even when the catalog digest differs")
	)
	flag.Parse()

	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		printSnapshot(snap)
		if *transcript == "" && *gamesDir == "" {
			return
		}
	}

	var files []string
	switch {
	case *transcript != "":
		files = []string{*transcript}
	case *gamesDir != "":
		var err error
		if files, err = listTranscripts(*gamesDir); err != nil {
			fmt.Fprintln(os.Stderr, "list transcripts:", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "no transcripts found in", *gamesDir)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "missing -transcript or -games")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	failed := 0
	for _, path := range files {
		header, turns, err := persistlog.ReadTranscript(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read transcript:", err)
			failed++
			continue
		}
		checked, err := verify(cats, header, turns, *allowDrift)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			failed++
			continue
		}
		fmt.Printf("replay ok: game=%s character=%s seed=%d checked=%d years\n", header.GameID, header.CharacterID, header.Seed, checked)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d transcripts failed\n", failed, len(files))
		os.Exit(1)
	}
}

func printSnapshot(snap snapshot.GameV1) {
	h := snap.Header
	fmt.Printf("snapshot v%d game=%s character=%s seed=%d phase=%s year=%d objectives_met=%t\n",
		h.Version, h.GameID, h.CharacterID, h.Seed, h.Phase, h.FinalYear, snap.ObjectivesMet)
	for _, r := range snap.History {
		fmt.Printf("  year %d cards=%v events=%v digest=%s\n", r.Year, r.Cards, r.Events, r.Digest)
	}
	if snap.Report == nil {
		return
	}
	for _, im := range snap.Report.Impacts {
		if !im.Available {
			fmt.Printf("  fork %d cards=%v unavailable: %s\n", im.ForkYear, im.Cards, im.Error)
			continue
		}
		fmt.Printf("  fork %d cards=%v diff=%v\n", im.ForkYear, im.Cards, im.Diff)
	}
}

func listTranscripts(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

var errCatalogDrift = errors.New("catalog digest mismatch")

// verify re-plays a transcript against a fresh session built from its header
// and returns the number of years whose digest matched.
func verify(cats *catalogs.Catalogs, h game.TranscriptHeader, turns []game.TurnLogEntry, allowDrift bool) (int, error) {
	if got := cats.Digest(); got != h.CatalogDigest && !allowDrift {
		return 0, fmt.Errorf("%w: transcript=%s configs=%s", errCatalogDrift, h.CatalogDigest, got)
	}

	tune := h.Tuning
	sess, err := game.New(game.Config{
		ID:          h.GameID,
		CharacterID: h.CharacterID,
		Seed:        h.Seed,
		Tuning:      tune,
		Replay:      replay.Options{ReplayLaterCards: h.ReplayLaterCards},
	}, cats, solver.NewGrowthModel(tune.Solver.MaxIterations, tune.Solver.Threshold), nil)
	if err != nil {
		return 0, err
	}

	sched := sess.Schedule()
	for y := 1; y <= tune.EndYear; y++ {
		if !slices.Equal(sched.For(y), h.Schedule.For(y)) {
			return 0, fmt.Errorf("event schedule mismatch at year %d: got=%v want=%v", y, sched.For(y), h.Schedule.For(y))
		}
	}

	checked := 0
	for _, e := range turns {
		if e.Year != sess.UpcomingYear() {
			return checked, fmt.Errorf("year mismatch: want=%d got=%d", sess.UpcomingYear(), e.Year)
		}
		d, err := sess.BeginYear()
		if err != nil {
			return checked, fmt.Errorf("year %d: begin: %w", e.Year, err)
		}
		switch {
		case d == nil && e.Dilemma != "":
			return checked, fmt.Errorf("year %d: dilemma %s not offered", e.Year, e.Dilemma)
		case d != nil && d.ID != e.Dilemma:
			return checked, fmt.Errorf("year %d: dilemma mismatch: got=%s want=%q", e.Year, d.ID, e.Dilemma)
		case d != nil:
			if _, err := sess.ChooseDilemma(dilemma.Choice(e.Choice)); err != nil {
				return checked, fmt.Errorf("year %d: choose: %w", e.Year, err)
			}
		}
		if hand := sess.Hand(); !slices.Equal(hand, e.Hand) {
			return checked, fmt.Errorf("year %d: hand mismatch: got=%v want=%v", e.Year, hand, e.Hand)
		}

		rec, err := sess.PlayPolicies(e.Cards)
		if e.Error != "" {
			if err == nil {
				return checked, fmt.Errorf("year %d: expected failure %q, solved instead", e.Year, e.Error)
			}
			checked++
			break
		}
		if err != nil {
			return checked, fmt.Errorf("year %d: play: %w", e.Year, err)
		}
		if rec.Digest != e.Digest {
			return checked, fmt.Errorf("digest mismatch at year %d: got=%s want=%s", e.Year, rec.Digest, e.Digest)
		}
		checked++
	}
	return checked, nil
}
