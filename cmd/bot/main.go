package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"sfcgrowth.ai/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "player name")
		character = flag.String("character", "", "character id (required)")
		seed      = flag.Uint64("seed", 0, "game seed (0: server picks)")
		boosted   = flag.Bool("boosted", true, "prefer cards boosted by the character bonus")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if *character == "" {
		logger.Fatalf("missing -character")
	}
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		CharacterID:     *character,
	}
	if *seed != 0 {
		hello.Seed = seed
	}

	b := &bot{conn: conn, log: logger, rng: rand.New(rand.NewPCG(*seed, uint64(time.Now().UnixNano()))), preferBoosted: *boosted}
	rep, err := b.play(hello)
	if err != nil {
		logger.Fatalf("play: %v", err)
	}
	for _, im := range rep.Impacts {
		if !im.Available {
			logger.Printf("fork %d %v: unavailable (%s)", im.ForkYear, im.Cards, im.Error)
			continue
		}
		logger.Printf("fork %d %v: %v", im.ForkYear, im.Cards, im.Diff)
	}
}

type bot struct {
	conn          *websocket.Conn
	log           *log.Logger
	rng           *rand.Rand
	preferBoosted bool

	actSeq int
	rules  protocol.Rules
}

// play runs one game to the end and returns the impact report.
func (b *bot) play(hello protocol.HelloMsg) (protocol.ReportMsg, error) {
	if b.log == nil {
		b.log = log.New(io.Discard, "", 0)
	}
	if err := b.conn.WriteJSON(hello); err != nil {
		return protocol.ReportMsg{}, fmt.Errorf("send HELLO: %w", err)
	}
	var w protocol.WelcomeMsg
	if err := b.read(protocol.TypeWelcome, &w); err != nil {
		return protocol.ReportMsg{}, err
	}
	b.rules = w.Rules
	b.log.Printf("WELCOME game_id=%s character=%s seed=%d", w.GameID, w.Character.ID, w.Seed)

	var st protocol.StateMsg
	if err := b.read(protocol.TypeState, &st); err != nil {
		return protocol.ReportMsg{}, err
	}
	for st.Phase != "GAME_OVER" {
		if st.Phase == "SIMULATION_ERROR" {
			return protocol.ReportMsg{}, fmt.Errorf("simulation failed: %s", st.Error)
		}
		next, err := b.step(st)
		if err != nil {
			return protocol.ReportMsg{}, err
		}
		st = next
	}
	b.log.Printf("game over after year %d, objectives met: %v", st.Year, st.ObjectivesMet != nil && *st.ObjectivesMet)

	var rep protocol.ReportMsg
	if err := b.act(protocol.ActionReport, nil, "", protocol.TypeReport, &rep); err != nil {
		return protocol.ReportMsg{}, err
	}
	return rep, nil
}

func (b *bot) step(st protocol.StateMsg) (protocol.StateMsg, error) {
	var next protocol.StateMsg
	switch {
	case st.Phase == "YEAR_START" && st.Dilemma != nil:
		choice := "A"
		if b.rng.IntN(2) == 1 {
			choice = "B"
		}
		b.log.Printf("dilemma %s: choose %s", st.Dilemma.ID, choice)
		return next, b.act(protocol.ActionChoose, nil, choice, protocol.TypeState, &next)
	case st.Phase == "YEAR_START":
		return next, b.act(protocol.ActionBeginYear, nil, "", protocol.TypeState, &next)
	case st.Phase == "POLICY_SELECTION":
		cards := b.pick(st.Hand)
		if err := b.act(protocol.ActionPlay, cards, "", protocol.TypeState, &next); err != nil {
			return next, err
		}
		if next.LastTurn != nil {
			b.log.Printf("year %d played %v events %v", next.LastTurn.Year, next.LastTurn.Cards, next.LastTurn.Events)
		}
		return next, nil
	}
	return next, fmt.Errorf("unexpected phase %s", st.Phase)
}

func (b *bot) pick(hand []protocol.CardView) []string {
	idx := b.rng.Perm(len(hand))
	if b.preferBoosted {
		sort.SliceStable(idx, func(i, j int) bool { return hand[idx[i]].Boosted && !hand[idx[j]].Boosted })
	}
	n := b.rules.MaxCardsPerYear
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, hand[i].Name)
	}
	return out
}

var errServer = errors.New("server error")

func (b *bot) act(action string, cards []string, choice, want string, out any) error {
	b.actSeq++
	msg := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ActID:           fmt.Sprintf("A%d", b.actSeq),
		Action:          action,
		Choice:          choice,
		Cards:           cards,
	}
	if err := b.conn.WriteJSON(msg); err != nil {
		return err
	}
	return b.read(want, out)
}

// read decodes the next message into out, or fails on an ERROR or any
// other type.
func (b *bot) read(want string, out any) error {
	_, raw, err := b.conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return err
	}
	switch base.Type {
	case want:
		return json.Unmarshal(raw, out)
	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(raw, &e)
		return fmt.Errorf("%w: %s: %s", errServer, e.Code, e.Message)
	}
	return fmt.Errorf("expected %s, got %s", want, base.Type)
}
