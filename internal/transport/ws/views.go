package ws

import (
	"sfcgrowth.ai/internal/protocol"
	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/game"
	"sfcgrowth.ai/internal/sim/replay"
)

func welcome(sess *game.Session, cats *catalogs.Catalogs) protocol.WelcomeMsg {
	ch := sess.Character()
	tune := sess.Tuning()

	bonus := protocol.BonusView{Multiplier: ch.Bonus.Multiplier, Criteria: []string{}}
	for _, cr := range ch.Bonus.Criteria {
		bonus.Criteria = append(bonus.Criteria, string(cr.Stance)+" "+string(cr.Type))
	}
	objectives := make([]protocol.ObjectiveView, 0, len(ch.Objectives))
	for _, o := range ch.Objectives {
		objectives = append(objectives, protocol.ObjectiveView{Key: o.Key, Label: o.Label, Condition: o.Condition, Target: o.Target})
	}

	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		GameID:          sess.ID,
		Seed:            sess.Seed(),
		Character: protocol.CharacterView{
			ID:          ch.ID,
			Name:        ch.Name,
			Description: ch.Description,
			Bonus:       bonus,
			Objectives:  objectives,
		},
		Rules: protocol.Rules{
			EndYear:         tune.EndYear,
			MaxCardsPerYear: tune.MaxCardsPerYear,
			DrawTarget:      tune.DrawTarget,
		},
		Catalogs: protocol.CatalogDigests{
			Parameters: cats.Parameters.Digest,
			Cards:      cats.Cards.Digest,
			Events:     cats.Events.Digest,
			Characters: cats.Characters.Digest,
			Dilemmas:   cats.Dilemmas.Digest,
			Combined:   cats.Digest(),
		},
	}
}

func cardView(c catalogs.Card, bonus catalogs.BonusRule) protocol.CardView {
	v := protocol.CardView{
		Name:        c.Name,
		Type:        string(c.Type),
		Stance:      string(c.Stance),
		Boosted:     bonus.Multiplier != 0 && bonus.Matches(c),
		Description: c.Description,
	}
	if t, ok := c.Lifetime.(catalogs.Temporary); ok {
		v.Duration = t.Turns
	}
	return v
}

func stateMsg(sess *game.Session, cats *catalogs.Catalogs, actID string) protocol.StateMsg {
	st := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		ActID:           actID,
		GameID:          sess.ID,
		Phase:           string(sess.Phase()),
		Year:            sess.Year(),
		Hand:            []protocol.CardView{},
		SeenDilemmas:    sess.SeenDilemmas(),
	}

	bonus := sess.Character().Bonus
	for _, name := range sess.Hand() {
		if c, ok := cats.Card(name); ok {
			st.Hand = append(st.Hand, cardView(c, bonus))
		}
	}

	if d := sess.PendingDilemma(); d != nil {
		st.Dilemma = &protocol.DilemmaView{
			ID:         d.ID,
			Title:      d.Title,
			FlavorText: d.FlavorText,
			OptionA:    protocol.OptionView(d.OptionA),
			OptionB:    protocol.OptionView(d.OptionB),
		}
	}

	if hist := sess.History(); len(hist) > 0 {
		last := hist[len(hist)-1]
		st.LastTurn = &protocol.TurnView{Year: last.Year, Cards: last.Cards, Events: last.Events, Digest: last.Digest}
		st.Indicators = sess.Indicators()
	}

	if sess.Phase() == game.PhaseGameOver {
		results, met, err := sess.Objectives()
		if err == nil {
			for _, r := range results {
				actual, ok := r.Actual, r.Met
				st.Objectives = append(st.Objectives, protocol.ObjectiveView{
					Key:       r.Objective.Key,
					Label:     r.Objective.Label,
					Condition: r.Objective.Condition,
					Target:    r.Objective.Target,
					Actual:    &actual,
					Met:       &ok,
				})
			}
			st.ObjectivesMet = &met
		}
	}
	if err := sess.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

func reportMsg(rep replay.Report, actID string) protocol.ReportMsg {
	msg := protocol.ReportMsg{
		Type:            protocol.TypeReport,
		ProtocolVersion: protocol.Version,
		ActID:           actID,
		FinalYear:       rep.FinalYear,
		Real:            rep.Real,
		Impacts:         make([]protocol.ImpactView, 0, len(rep.Impacts)),
	}
	for _, im := range rep.Impacts {
		msg.Impacts = append(msg.Impacts, protocol.ImpactView{
			ForkYear:  im.ForkYear,
			Cards:     im.Cards,
			Available: im.Available,
			Diff:      im.Diff,
			Error:     im.Error,
		})
	}
	return msg
}
