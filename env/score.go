package env

import (
	"blackjack-lite/blackjack"
	"blackjack-lite/card"
)

// Reward weights. The shaping sum is the trained signal; the others are
// logged metrics, with a small bonus for clean formatting.
const (
	WeightFirstActionEV  = 0.0
	WeightDeltaEVSum     = 1.0
	WeightRealizedReturn = 0.0
	WeightStrictFormat   = 0.1

	firstActionEVSeed = 42
)

// Score 单局评分拆解
type Score struct {
	FirstActionEV  float64 `json:"first_action_ev"`
	DeltaEVSum     float64 `json:"delta_ev_sum"`
	RealizedReturn float64 `json:"realized_return"`
	StrictFormat   float64 `json:"strict_format"`
	Reward         float64 `json:"reward"`
}

// Score aggregates the episode's reward components. Call it after Done.
func (e *Episode) Score() Score {
	s := Score{
		FirstActionEV:  e.firstActionEV(),
		DeltaEVSum:     e.game.DeltaEVSum(),
		RealizedReturn: e.realized,
		StrictFormat:   e.strictFormat(),
	}
	s.Reward = WeightFirstActionEV*s.FirstActionEV +
		WeightDeltaEVSum*s.DeltaEVSum +
		WeightRealizedReturn*s.RealizedReturn +
		WeightStrictFormat*s.StrictFormat
	return s
}

// firstActionEV prices the opening decision on the pre-action deal with a
// fixed evaluation seed so the metric is comparable across episodes. A run
// where no action was ever parsed scores -1.
func (e *Episode) firstActionEV() float64 {
	action := e.firstAction
	if !e.hasFirstAction {
		a, ok := blackjack.ParseActionType(e.lastParsed)
		if !ok {
			return -1.0
		}
		action = a
	}
	shoe, err := card.ShoeFromCounts(e.firstState.ShoeCounts)
	if err != nil {
		return 0
	}
	if len(e.firstState.Hands) == 0 {
		return 0
	}
	ev, err := blackjack.EstimateActionEV(*shoe, e.firstState.Hands[0].Cards,
		e.firstState.DealerUp, e.firstState.Rules, action, firstActionEVSeed, e.opts.EVSamples)
	if err != nil {
		return 0
	}
	return ev
}

// strictFormat averages per-reply tag compliance and zeroes out entirely
// once any reply needed the fallback extractor.
func (e *Episode) strictFormat() float64 {
	if e.formatSalvaged || len(e.formatScores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range e.formatScores {
		sum += v
	}
	return sum / float64(len(e.formatScores))
}
