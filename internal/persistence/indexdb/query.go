package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"

	"sfcgrowth.ai/internal/sim/game"
)

// CharacterSummary aggregates finished games per character.
type CharacterSummary struct {
	CharacterID   string
	Games         int
	Failed        int
	ObjectivesMet int
	AvgGDPIndex   float64
	AvgInflation  float64
	AvgDebtGDP    float64
}

func (s *SQLiteIndex) Summary(ctx context.Context) ([]CharacterSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT character_id,
			COUNT(*),
			SUM(CASE WHEN phase = ? THEN 1 ELSE 0 END),
			COALESCE(SUM(objectives_met), 0),
			COALESCE(AVG(gdp_index), 0),
			COALESCE(AVG(inflation), 0),
			COALESCE(AVG(debt_gdp), 0)
		FROM games
		WHERE finished_at IS NOT NULL
		GROUP BY character_id
		ORDER BY character_id`, string(game.PhaseSimulationError))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CharacterSummary
	for rows.Next() {
		var c CharacterSummary
		if err := rows.Scan(&c.CharacterID, &c.Games, &c.Failed, &c.ObjectivesMet, &c.AvgGDPIndex, &c.AvgInflation, &c.AvgDebtGDP); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Turns returns the recorded turns of one game in year order.
func (s *SQLiteIndex) Turns(ctx context.Context, gameID string) ([]game.TurnLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT year, dilemma, choice, hand_json, cards_json, events_json, digest, error
		FROM turns WHERE game_id = ? ORDER BY year`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.TurnLogEntry
	for rows.Next() {
		var (
			e                   game.TurnLogEntry
			dilemma, choice     sql.NullString
			digest, errText     sql.NullString
			hand, cards, events string
		)
		if err := rows.Scan(&e.Year, &dilemma, &choice, &hand, &cards, &events, &digest, &errText); err != nil {
			return nil, err
		}
		e.Dilemma, e.Choice, e.Digest, e.Error = dilemma.String, choice.String, digest.String, errText.String
		for _, f := range []struct {
			raw string
			dst *[]string
		}{{hand, &e.Hand}, {cards, &e.Cards}, {events, &e.Events}} {
			if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ImpactDiff returns the recorded GDP index impact per fork year of one
// game; unavailable forks are absent.
func (s *SQLiteIndex) ImpactDiff(ctx context.Context, gameID string) (map[int]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fork_year, gdp_index_diff FROM impacts
		WHERE game_id = ? AND available = 1 ORDER BY fork_year`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]float64{}
	for rows.Next() {
		var (
			year int
			diff sql.NullFloat64
		)
		if err := rows.Scan(&year, &diff); err != nil {
			return nil, err
		}
		if diff.Valid {
			out[year] = diff.Float64
		}
	}
	return out, rows.Err()
}
