package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sfcgrowth.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/games.sqlite)")
	gameID := fs.String("game", "", "game id (turns, impacts)")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "games.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	out, err := runQuery(context.Background(), idx, q, strings.TrimSpace(*gameID))
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func runQuery(ctx context.Context, idx *indexdb.SQLiteIndex, q, gameID string) (any, error) {
	switch q {
	case "summary":
		return idx.Summary(ctx)
	case "turns", "impacts":
		if gameID == "" {
			return nil, fmt.Errorf("missing -game")
		}
		if q == "turns" {
			return idx.Turns(ctx, gameID)
		}
		return idx.ImpactDiff(ctx, gameID)
	}
	return nil, fmt.Errorf("unknown query %q (want summary|turns|impacts)", q)
}
