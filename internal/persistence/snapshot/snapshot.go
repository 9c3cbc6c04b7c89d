// Package snapshot stores finished games: the full year history and the
// impact report, for offline analysis without re-simulating.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/kpi"
	"sfcgrowth.ai/internal/sim/replay"
	"sfcgrowth.ai/internal/sim/schedule"
	"sfcgrowth.ai/internal/sim/tuning"
	"sfcgrowth.ai/internal/sim/turn"
)

const Version = 1

// Header is also written as a plain JSON line ahead of the gob body so that
// listings can skip decoding the history.
type Header struct {
	Version       int    `json:"version"`
	GameID        string `json:"game_id"`
	CharacterID   string `json:"character_id"`
	Seed          uint64 `json:"seed"`
	Phase         string `json:"phase"`
	FinalYear     int    `json:"final_year"`
	CatalogDigest string `json:"catalog_digest"`
}

type GameV1 struct {
	Header Header

	Tuning           tuning.Tuning
	Schedule         schedule.Schedule
	ReplayLaterCards bool
	SeenDilemmas     []string
	History          []turn.Record
	Indicators       kpi.Indicators
	Objectives       []kpi.Result
	ObjectivesMet    bool
	Report           *replay.Report
	Error            string
}

// FromSession captures a session together with its impact report, which may
// be nil.
func FromSession(s *game.Session, rep *replay.Report) GameV1 {
	th := s.TranscriptHeader()
	snap := GameV1{
		Header: Header{
			Version:       Version,
			GameID:        s.ID,
			CharacterID:   th.CharacterID,
			Seed:          s.Seed(),
			Phase:         string(s.Phase()),
			FinalYear:     s.Year(),
			CatalogDigest: th.CatalogDigest,
		},
		Tuning:           s.Tuning(),
		Schedule:         s.Schedule(),
		ReplayLaterCards: th.ReplayLaterCards,
		SeenDilemmas:     s.SeenDilemmas(),
		History:          s.History(),
		Report:           rep,
	}
	if err := s.Err(); err != nil {
		snap.Error = err.Error()
	}
	if s.Year() == 0 {
		return snap
	}
	snap.Indicators = s.Indicators()
	if res, met, err := s.Objectives(); err == nil {
		snap.Objectives, snap.ObjectivesMet = res, met
	}
	return snap
}

func Path(dataDir, gameID string) string {
	return filepath.Join(dataDir, "snapshots", gameID+".snap.zst")
}

// WriteSnapshot writes to a temporary file and renames it into place.
func WriteSnapshot(path string, snap GameV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap GameV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func open(path string) (*os.File, *zstd.Decoder, *bufio.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}
	return f, dec, bufio.NewReaderSize(dec, 256*1024), nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, dec, br, err := open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	defer dec.Close()

	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	return h, nil
}

func ReadSnapshot(path string) (GameV1, error) {
	var snap GameV1
	f, dec, br, err := open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	defer dec.Close()

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%s: unsupported snapshot version %d", filepath.Base(path), snap.Header.Version)
	}
	return snap, nil
}
