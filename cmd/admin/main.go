package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sfcgrowth.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "summary":
			summaryCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints one line per finished-game snapshot.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	character := fs.String("character", "", "character id filter (optional)")
	_ = fs.Parse(args)

	headers, err := listSnapshots(filepath.Join(*dataDir, "snapshots"), strings.TrimSpace(*character))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, h := range headers {
		fmt.Printf("%s\t%s\tseed=%d\t%s\tyear=%d\n", h.GameID, h.CharacterID, h.Seed, h.Phase, h.FinalYear)
	}
}

func listSnapshots(dir, character string) ([]snapshot.Header, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []snapshot.Header
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		h, err := snapshot.ReadHeader(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if character != "" && h.CharacterID != character {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CharacterID != out[j].CharacterID {
			return out[i].CharacterID < out[j].CharacterID
		}
		return out[i].Seed < out[j].Seed
	})
	return out, nil
}
