package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sfcgrowth.ai/internal/protocol"
	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/dilemma"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/replay"
	"sfcgrowth.ai/internal/sim/solver"
	"sfcgrowth.ai/internal/sim/tuning"
)

// TranscriptSink is a game.Transcript owned by one connection.
type TranscriptSink interface {
	game.Transcript
	Close() error
}

type Options struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	// Solver is shared by every session and must be stateless.
	Solver solver.Solver
	// NewTranscript, when set, is attached to each new session and closed
	// when the connection ends.
	NewTranscript func() TranscriptSink
	// OnGameEnd, when set, is called once a session reaches a terminal phase.
	OnGameEnd func(*game.Session)
	Logger    *log.Logger
}

type Server struct {
	opts Options
	log  *log.Logger

	upgrader websocket.Upgrader

	sessions atomic.Int64
	started  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
}

// Metrics is a point-in-time view of the server's session counters.
type Metrics struct {
	Sessions int64
	Started  int64
	Finished int64
	Failed   int64
}

func (s *Server) Metrics() Metrics {
	return Metrics{
		Sessions: s.sessions.Load(),
		Started:  s.started.Load(),
		Finished: s.finished.Load(),
		Failed:   s.failed.Load(),
	}
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		opts: opts,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, sink := s.handshake(conn)
		if sess == nil {
			return
		}
		if sink != nil {
			defer func() {
				if err := sink.Close(); err != nil {
					s.log.Printf("game %s: close transcript: %v", sess.ID, err)
				}
			}()
		}
		s.started.Add(1)
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.log.Printf("game %s: connected from %s", sess.ID, r.RemoteAddr)

		// Reader loop. Every ACT is handled to completion before the next read.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				_ = writeError(conn, "", protocol.ErrProtoBadRequest, "expected ACT")
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				_ = writeError(conn, "", protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			if err := protocol.Validate(protocol.TypeAct, msg); err != nil {
				_ = writeError(conn, "", protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				_ = writeError(conn, "", protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			terminalBefore := terminal(sess.Phase())
			if err := s.dispatch(conn, sess, act); err != nil {
				break
			}
			if !terminalBefore && terminal(sess.Phase()) {
				s.ended(sess)
			}
		}
		s.log.Printf("game %s: disconnected in %s at year %d", sess.ID, sess.Phase(), sess.Year())
	}
}

func (s *Server) ended(sess *game.Session) {
	if sess.Phase() == game.PhaseSimulationError {
		s.failed.Add(1)
	} else {
		s.finished.Add(1)
	}
	if s.opts.OnGameEnd != nil {
		s.opts.OnGameEnd(sess)
	}
}

func terminal(p game.Phase) bool {
	return p == game.PhaseGameOver || p == game.PhaseSimulationError
}

func (s *Server) handshake(conn *websocket.Conn) (*game.Session, TranscriptSink) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, nil
	}
	if base.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeError(conn, "", protocol.ErrProtoBadRequest, err.Error())
		return nil, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}

	seed := rand.Uint64()
	if hello.Seed != nil {
		seed = *hello.Seed
	}
	sess, err := game.New(game.Config{
		CharacterID: hello.CharacterID,
		Seed:        seed,
		Tuning:      s.opts.Tuning,
		Replay:      replay.Options{ReplayLaterCards: hello.ReplayLaterCards},
	}, s.opts.Catalogs, s.opts.Solver, s.log)
	if err != nil {
		code := protocol.ErrInternal
		if errors.Is(err, game.ErrUnknownCharacter) {
			code = protocol.ErrUnknownCharacter
		}
		_ = writeError(conn, "", code, err.Error())
		return nil, nil
	}

	var sink TranscriptSink
	if s.opts.NewTranscript != nil {
		sink = s.opts.NewTranscript()
		if err := sess.SetTranscript(sink); err != nil {
			s.log.Printf("game %s: transcript header: %v", sess.ID, err)
		}
	}

	if err := writeJSON(conn, welcome(sess, s.opts.Catalogs)); err != nil {
		return nil, sink
	}
	if err := writeJSON(conn, stateMsg(sess, s.opts.Catalogs, "")); err != nil {
		return nil, sink
	}
	return sess, sink
}

// dispatch applies one ACT and answers it. Only write failures are returned.
func (s *Server) dispatch(conn *websocket.Conn, sess *game.Session, act protocol.ActMsg) error {
	var (
		st  protocol.StateMsg
		err error
	)
	switch act.Action {
	case protocol.ActionBeginYear:
		_, err = sess.BeginYear()
		st = stateMsg(sess, s.opts.Catalogs, act.ActID)

	case protocol.ActionChoose:
		var out dilemma.Outcome
		out, err = sess.ChooseDilemma(dilemma.Choice(act.Choice))
		st = stateMsg(sess, s.opts.Catalogs, act.ActID)
		if err == nil {
			st.Outcome = &protocol.DilemmaOutcome{Added: out.Added, Replaced: out.Replaced, Removed: out.Removed}
		}

	case protocol.ActionPlay:
		_, err = sess.PlayPolicies(act.Cards)
		st = stateMsg(sess, s.opts.Catalogs, act.ActID)
		if err != nil && sess.Phase() == game.PhaseSimulationError {
			// The failure is the new state of the game; stateMsg carries it.
			if werr := writeJSON(conn, st); werr != nil {
				return werr
			}
			return writeError(conn, act.ActID, protocol.ErrSimulationFailed, err.Error())
		}

	case protocol.ActionReport:
		var rep replay.Report
		rep, err = sess.ImpactReport()
		if err == nil {
			return writeJSON(conn, reportMsg(rep, act.ActID))
		}

	default:
		return writeError(conn, act.ActID, protocol.ErrBadRequest, "unknown action")
	}

	if err != nil {
		return writeError(conn, act.ActID, errorCode(err), err.Error())
	}
	return writeJSON(conn, st)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrGameOver):
		return protocol.ErrGameOver
	case errors.Is(err, game.ErrWrongPhase):
		return protocol.ErrWrongPhase
	case errors.Is(err, game.ErrTooManyCards):
		return protocol.ErrTooManyCards
	case errors.Is(err, game.ErrCardNotInHand):
		return protocol.ErrCardNotInHand
	case errors.Is(err, game.ErrNoDilemma):
		return protocol.ErrNoDilemma
	case errors.Is(err, dilemma.ErrUnknownChoice):
		return protocol.ErrBadRequest
	case errors.Is(err, solver.ErrNoConvergence):
		return protocol.ErrSimulationFailed
	}
	return protocol.ErrInternal
}

func writeError(conn *websocket.Conn, actID, code, message string) error {
	return writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		ActID:           actID,
		Code:            code,
		Message:         message,
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
