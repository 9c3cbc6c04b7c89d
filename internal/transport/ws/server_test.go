package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"sfcgrowth.ai/internal/protocol"
	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/solver"
	"sfcgrowth.ai/internal/sim/tuning"
)

type memSink struct {
	mu     sync.Mutex
	header game.TranscriptHeader
	turns  []game.TurnLogEntry
	closed bool
}

func (m *memSink) WriteHeader(h game.TranscriptHeader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.header = h
	return nil
}

func (m *memSink) WriteTurn(e game.TurnLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, e)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func newTestServer(t *testing.T, sink *memSink, ended chan<- string) (*httptest.Server, *catalogs.Catalogs) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	require.NoError(t, err)

	tune := tuning.Defaults()
	tune.EndYear = 3
	tune.Dilemmas.LastYear = 3

	opts := Options{
		Catalogs: cats,
		Tuning:   tune,
		Solver:   solver.NewGrowthModel(tune.Solver.MaxIterations, tune.Solver.Threshold),
	}
	if sink != nil {
		opts.NewTranscript = func() TranscriptSink { return sink }
	}
	if ended != nil {
		opts.OnGameEnd = func(s *game.Session) { ended <- s.ID }
	}
	srv := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(srv.Close)
	return srv, cats
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func recv(t *testing.T, conn *websocket.Conn, want string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	base, err := protocol.DecodeBase(msg)
	require.NoError(t, err)
	require.Equal(t, want, base.Type, "message: %s", msg)
	return msg
}

func act(action string) protocol.ActMsg {
	return protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Action: action}
}

func hello(characterID string, seed uint64) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		CharacterID:     characterID,
		Seed:            &seed,
	}
}

func TestServer_FullGame(t *testing.T) {
	sink := &memSink{}
	ended := make(chan string, 1)
	srv, cats := newTestServer(t, sink, ended)
	conn := dial(t, srv)

	send(t, conn, hello(cats.Characters.IDs[0], 42))

	var w protocol.WelcomeMsg
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeWelcome), &w))
	require.Equal(t, uint64(42), w.Seed)
	require.Equal(t, cats.Characters.IDs[0], w.Character.ID)
	require.Equal(t, cats.Digest(), w.Catalogs.Combined)
	require.Equal(t, 3, w.Rules.EndYear)

	var st protocol.StateMsg
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeState), &st))
	require.Equal(t, string(game.PhaseYearStart), st.Phase)
	require.Equal(t, w.GameID, st.GameID)

	for year := 1; year <= 3; year++ {
		a := act(protocol.ActionBeginYear)
		a.ActID = "begin"
		send(t, conn, a)
		st = protocol.StateMsg{}
		require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeState), &st))
		require.Equal(t, "begin", st.ActID)

		if st.Dilemma != nil {
			offered := st.Dilemma.ID
			c := act(protocol.ActionChoose)
			c.Choice = "A"
			send(t, conn, c)
			st = protocol.StateMsg{}
			require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeState), &st))
			require.NotNil(t, st.Outcome)
			require.Nil(t, st.Dilemma)
			require.Contains(t, st.SeenDilemmas, offered)
		}
		require.Equal(t, string(game.PhasePolicySelection), st.Phase)
		require.NotEmpty(t, st.Hand)

		p := act(protocol.ActionPlay)
		p.Cards = []string{st.Hand[0].Name}
		send(t, conn, p)
		st = protocol.StateMsg{}
		require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeState), &st))
		require.Equal(t, year, st.Year)
		require.NotNil(t, st.LastTurn)
		require.Equal(t, []string{p.Cards[0]}, st.LastTurn.Cards)
		require.NotEmpty(t, st.LastTurn.Digest)
		require.Contains(t, st.Indicators, "gdp_index")
	}
	require.Equal(t, string(game.PhaseGameOver), st.Phase)
	require.NotNil(t, st.ObjectivesMet)

	select {
	case id := <-ended:
		require.Equal(t, w.GameID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("OnGameEnd not called")
	}

	send(t, conn, act(protocol.ActionReport))
	var rep protocol.ReportMsg
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeReport), &rep))
	require.Equal(t, 3, rep.FinalYear)
	require.Len(t, rep.Impacts, 3)

	send(t, conn, act(protocol.ActionBeginYear))
	var e protocol.ErrorMsg
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeError), &e))
	require.Equal(t, protocol.ErrGameOver, e.Code)

	conn.Close()
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.closed
	}, 5*time.Second, 10*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, w.GameID, sink.header.GameID)
	require.Len(t, sink.turns, 3)
}

func TestServer_Errors(t *testing.T) {
	srv, cats := newTestServer(t, nil, nil)
	conn := dial(t, srv)

	send(t, conn, hello(cats.Characters.IDs[0], 1))
	recv(t, conn, protocol.TypeWelcome)
	recv(t, conn, protocol.TypeState)

	early := act(protocol.ActionPlay)
	early.Cards = []string{"x"}

	cases := []struct {
		name string
		msg  any
		code string
	}{
		{"play before begin", early, protocol.ErrWrongPhase},
		{"choose without choice", act(protocol.ActionChoose), protocol.ErrProtoBadRequest},
		{"unknown action", act("DANCE"), protocol.ErrProtoBadRequest},
		{"wrong type", hello(cats.Characters.IDs[0], 1), protocol.ErrProtoBadRequest},
	}
	for _, tc := range cases {
		send(t, conn, tc.msg)
		var e protocol.ErrorMsg
		require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeError), &e), tc.name)
		require.Equal(t, tc.code, e.Code, tc.name)
	}

	send(t, conn, act(protocol.ActionBeginYear))
	var st protocol.StateMsg
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeState), &st))

	p := act(protocol.ActionPlay)
	p.Cards = []string{"Not A Card"}
	send(t, conn, p)
	var e protocol.ErrorMsg
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeError), &e))
	require.Equal(t, protocol.ErrCardNotInHand, e.Code)

	send(t, conn, act(protocol.ActionReport))
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeError), &e))
	require.Equal(t, protocol.ErrWrongPhase, e.Code)
}

func TestServer_UnknownCharacter(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	conn := dial(t, srv)

	send(t, conn, hello("nobody", 1))
	var e protocol.ErrorMsg
	require.NoError(t, json.Unmarshal(recv(t, conn, protocol.TypeError), &e))
	require.Equal(t, protocol.ErrUnknownCharacter, e.Code)
}
