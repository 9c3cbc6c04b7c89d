package main

import (
	"log"
	"path/filepath"

	"sfcgrowth.ai/internal/persistence/indexdb"
	persistlog "sfcgrowth.ai/internal/persistence/log"
	"sfcgrowth.ai/internal/persistence/snapshot"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/replay"
	"sfcgrowth.ai/internal/transport/ws"
)

func openRuntimeIndex(cfg serverConfig) (*indexdb.SQLiteIndex, error) {
	if cfg.IndexBackend != "sqlite" {
		return nil, nil
	}
	return indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "games.sqlite"))
}

// multiTranscript fans a session's transcript out to the zstd log and the
// index. Either side may be nil.
type multiTranscript struct {
	a *persistlog.TranscriptLogger
	b game.Transcript
}

func (m multiTranscript) WriteHeader(h game.TranscriptHeader) error {
	var err error
	if m.a != nil {
		err = m.a.WriteHeader(h)
	}
	if m.b != nil {
		_ = m.b.WriteHeader(h)
	}
	return err
}

func (m multiTranscript) WriteTurn(e game.TurnLogEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteTurn(e)
	}
	if m.b != nil {
		_ = m.b.WriteTurn(e)
	}
	return err
}

func (m multiTranscript) Close() error {
	if m.a == nil {
		return nil
	}
	return m.a.Close()
}

func transcriptFactory(cfg serverConfig, idx *indexdb.SQLiteIndex) func() ws.TranscriptSink {
	if cfg.DisableLogs && idx == nil {
		return nil
	}
	return func() ws.TranscriptSink {
		var m multiTranscript
		if !cfg.DisableLogs {
			m.a = persistlog.NewTranscriptLogger(cfg.DataDir)
		}
		if idx != nil {
			m.b = idx.NewTranscript()
		}
		return m
	}
}

// gameEndHook records a finished game in the index and writes its snapshot.
// Both share one impact report.
func gameEndHook(cfg serverConfig, idx *indexdb.SQLiteIndex, logger *log.Logger) func(*game.Session) {
	return func(s *game.Session) {
		if idx == nil && cfg.DisableLogs {
			return
		}
		var rep *replay.Report
		if r, err := s.ImpactReport(); err == nil {
			rep = &r
		}
		if idx != nil {
			idx.RecordOutcome(s.ID, indexdb.OutcomeOf(s, rep))
		}
		if !cfg.DisableLogs {
			if err := snapshot.WriteSnapshot(snapshot.Path(cfg.DataDir, s.ID), snapshot.FromSession(s, rep)); err != nil {
				logger.Printf("game %s: snapshot write: %v", s.ID, err)
			}
		}
	}
}
