package replay

import (
	"blackjack-lite/blackjack"
	"blackjack-lite/card"
	"blackjack-lite/env"
)

func rulesInfo(r blackjack.Rules) RulesInfo {
	return RulesInfo{
		Decks:         r.Decks,
		S17:           r.S17,
		DAS:           r.DAS,
		Double11VsAce: r.Double11VsAce,
	}
}

func episodeStartEvent(snap blackjack.Snapshot, question string) *EpisodeStartEvent {
	var playerCards []string
	if len(snap.Hands) > 0 {
		playerCards = card.RankStrings(snap.Hands[0].Cards)
	}
	return &EpisodeStartEvent{
		Rules:       rulesInfo(snap.Rules),
		PlayerCards: playerCards,
		DealerUp:    snap.DealerUp.String(),
		Question:    question,
	}
}

func statePromptEvent(snap blackjack.Snapshot, message string, allowed []blackjack.ActionType) *StatePromptEvent {
	out := &StatePromptEvent{
		Message:        message,
		HandIndex:      snap.ActiveIndex,
		HandCount:      len(snap.Hands),
		AllowedActions: blackjack.ActionNames(allowed),
	}
	if active, ok := snap.ActiveHand(); ok {
		out.Hand = card.RankStrings(active.Cards)
		out.Total = active.Total
		out.Soft = active.Soft
	}
	return out
}

func actionResultEvent(res env.TurnResult) *ActionResultEvent {
	out := &ActionResultEvent{
		Action:   res.Action.String(),
		Salvaged: res.Salvaged,
	}
	if res.Shaping != nil {
		out.Shaping = &ShapingInfo{
			Baseline: res.Shaping.Baseline.String(),
			Q:        res.Shaping.Q,
			V:        res.Shaping.V,
			Delta:    res.Shaping.Q - res.Shaping.V,
		}
	}
	return out
}

func correctiveEvent(message string, allowed []blackjack.ActionType) *CorrectiveEvent {
	return &CorrectiveEvent{
		Message:        message,
		AllowedActions: blackjack.ActionNames(allowed),
	}
}

func settlementEvent(message string, res *blackjack.SettlementResult) *SettlementEvent {
	out := &SettlementEvent{
		Message:     message,
		DealerCards: card.RankStrings(res.DealerCards),
		DealerTotal: res.DealerTotal,
		Hands:       make([]HandOutcome, 0, len(res.Hands)),
		TotalPayout: res.TotalPayout,
	}
	for _, h := range res.Hands {
		out.Hands = append(out.Hands, HandOutcome{
			Cards:   card.RankStrings(h.Cards),
			Total:   h.Total,
			Doubled: h.Doubled,
			Natural: h.Natural,
			Payout:  h.Payout,
		})
	}
	return out
}

func scoreEvent(e *env.Episode) *ScoreEvent {
	s := e.Score()
	return &ScoreEvent{
		FirstActionEV:  s.FirstActionEV,
		DeltaEVSum:     s.DeltaEVSum,
		RealizedReturn: s.RealizedReturn,
		StrictFormat:   s.StrictFormat,
		Reward:         s.Reward,
		Settled:        e.Settled(),
		Turns:          e.Turns(),
	}
}

// expectedState captures what the environment wanted at a failed step; best
// effort when the episode is already over.
func expectedState(e *env.Episode) *ExpectedState {
	snap := e.Snapshot()
	out := &ExpectedState{HandIndex: snap.ActiveIndex}
	if active, ok := snap.ActiveHand(); ok {
		out.Hand = card.RankStrings(active.Cards)
		out.Total = active.Total
	}
	if allowed, err := e.LegalActions(); err == nil {
		out.AllowedActions = blackjack.ActionNames(allowed)
	}
	return out
}

func containsActionType(list []blackjack.ActionType, a blackjack.ActionType) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
