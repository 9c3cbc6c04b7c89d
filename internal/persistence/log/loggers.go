package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"sfcgrowth.ai/internal/sim/game"
)

// JSONLZstdWriter appends one JSON document per line to a zstd stream. The
// file is created on first write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// Line is one transcript line: the header first, then one turn per year.
type Line struct {
	Header *game.TranscriptHeader `json:"header,omitempty"`
	Turn   *game.TurnLogEntry     `json:"turn,omitempty"`
}

// TranscriptLogger writes a game's transcript to
// <dir>/games/<game_id>.jsonl.zst. The file name is fixed by the header.
type TranscriptLogger struct {
	dir string
	w   *JSONLZstdWriter
}

func NewTranscriptLogger(dataDir string) *TranscriptLogger {
	return &TranscriptLogger{dir: filepath.Join(dataDir, "games")}
}

func TranscriptPath(dataDir, gameID string) string {
	return filepath.Join(dataDir, "games", gameID+".jsonl.zst")
}

func (l *TranscriptLogger) WriteHeader(h game.TranscriptHeader) error {
	if l.w != nil {
		return fmt.Errorf("transcript: header already written to %s", l.w.Path())
	}
	l.w = NewJSONLZstdWriter(filepath.Join(l.dir, h.GameID+".jsonl.zst"))
	return l.w.Write(Line{Header: &h})
}

func (l *TranscriptLogger) WriteTurn(e game.TurnLogEntry) error {
	if l.w == nil {
		return fmt.Errorf("transcript: turn %d before header", e.Year)
	}
	return l.w.Write(Line{Turn: &e})
}

func (l *TranscriptLogger) Close() error {
	if l.w == nil {
		return nil
	}
	return l.w.Close()
}

// ReadTranscript decodes a transcript written by TranscriptLogger.
func ReadTranscript(path string) (game.TranscriptHeader, []game.TurnLogEntry, error) {
	var (
		header    game.TranscriptHeader
		turns     []game.TurnLogEntry
		hasHeader bool
	)
	f, err := os.Open(path)
	if err != nil {
		return header, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return header, nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for n := 1; sc.Scan(); n++ {
		var line Line
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return header, nil, fmt.Errorf("%s:%d: unmarshal: %w", filepath.Base(path), n, err)
		}
		switch {
		case line.Header != nil:
			if hasHeader {
				return header, nil, fmt.Errorf("%s:%d: second header", filepath.Base(path), n)
			}
			header, hasHeader = *line.Header, true
		case line.Turn != nil:
			if !hasHeader {
				return header, nil, fmt.Errorf("%s:%d: turn before header", filepath.Base(path), n)
			}
			turns = append(turns, *line.Turn)
		}
	}
	if err := sc.Err(); err != nil {
		return header, nil, err
	}
	if !hasHeader {
		return header, nil, fmt.Errorf("%s: missing header", filepath.Base(path))
	}
	return header, turns, nil
}
