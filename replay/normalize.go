package replay

import (
	"fmt"
	"strings"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
	"blackjack-lite/env"
)

type normalizedStep struct {
	reply    string
	action   blackjack.ActionType
	scripted bool
}

type normalizedSpec struct {
	rules blackjack.Rules
	deal  *dealCards
	shoe  map[string]int
	seed  int64
	opts  env.Options
	steps []normalizedStep
}

type dealCards struct {
	player [2]card.Rank
	up     card.Rank
	hole   card.Rank
}

func normalizeSpec(spec EpisodeSpec) (normalizedSpec, error) {
	var out normalizedSpec
	out.rules = blackjack.DefaultRules()

	if spec.Rules != nil {
		if spec.Rules.Decks != 0 {
			if spec.Rules.Decks < 1 || spec.Rules.Decks > 8 {
				return out, &ReplayError{StepIndex: -1, Reason: "invalid_rules", Message: "decks must be between 1 and 8"}
			}
			out.rules.Decks = spec.Rules.Decks
		}
		if spec.Rules.S17 != nil {
			out.rules.S17 = *spec.Rules.S17
		}
		if spec.Rules.DAS != nil {
			out.rules.DAS = *spec.Rules.DAS
		}
		out.rules.Double11VsAce = spec.Rules.Double11VsAce
	}

	if spec.Deal != nil {
		deal, err := parseDeal(spec.Deal)
		if err != nil {
			return out, err
		}
		out.deal = deal
	}

	if len(spec.Shoe) > 0 {
		if out.deal == nil {
			return out, &ReplayError{StepIndex: -1, Reason: "invalid_shoe", Message: "a shoe override requires an explicit deal"}
		}
		if _, err := card.ShoeFromCounts(spec.Shoe); err != nil {
			return out, &ReplayError{StepIndex: -1, Reason: "invalid_shoe", Message: err.Error()}
		}
		out.shoe = spec.Shoe
	}

	// A zero seed would fall through to a clock seed downstream; tapes have
	// to be reproducible.
	out.seed = 1
	if spec.RNG != nil && spec.RNG.Seed != 0 {
		out.seed = spec.RNG.Seed
	}

	if spec.Env != nil {
		if spec.Env.EVSamples < 0 {
			return out, &ReplayError{StepIndex: -1, Reason: "invalid_env", Message: "ev_samples must be >= 0"}
		}
		if spec.Env.MaxTurns < 0 {
			return out, &ReplayError{StepIndex: -1, Reason: "invalid_env", Message: "max_turns must be >= 0"}
		}
		out.opts = env.Options{
			EVSamples: spec.Env.EVSamples,
			MaxTurns:  spec.Env.MaxTurns,
			UseThink:  spec.Env.UseThink,
		}
	}

	out.steps = make([]normalizedStep, 0, len(spec.Steps))
	for i, step := range spec.Steps {
		hasAction := strings.TrimSpace(step.Action) != ""
		hasReply := step.Reply != ""
		if hasAction == hasReply {
			return out, &ReplayError{
				StepIndex: int32(i),
				Reason:    "invalid_step",
				Message:   "step must set exactly one of action or reply",
			}
		}
		if hasReply {
			out.steps = append(out.steps, normalizedStep{reply: step.Reply})
			continue
		}
		action, ok := blackjack.ParseActionType(strings.TrimSpace(step.Action))
		if !ok {
			return out, &ReplayError{
				StepIndex: int32(i),
				Reason:    "invalid_action",
				Message:   fmt.Sprintf("unknown action %q", step.Action),
			}
		}
		out.steps = append(out.steps, normalizedStep{action: action, scripted: true})
	}
	return out, nil
}

func parseDeal(spec *DealSpec) (*dealCards, error) {
	if len(spec.Player) != 2 {
		return nil, &ReplayError{StepIndex: -1, Reason: "invalid_deal", Message: "player must contain exactly 2 cards"}
	}
	var out dealCards
	for i, s := range spec.Player {
		r, err := card.ParseRank(strings.TrimSpace(s))
		if err != nil {
			return nil, &ReplayError{StepIndex: -1, Reason: "invalid_card", Message: fmt.Sprintf("player[%d]: %v", i, err)}
		}
		out.player[i] = r
	}
	up, err := card.ParseRank(strings.TrimSpace(spec.DealerUp))
	if err != nil {
		return nil, &ReplayError{StepIndex: -1, Reason: "invalid_card", Message: fmt.Sprintf("dealer_up: %v", err)}
	}
	hole, err := card.ParseRank(strings.TrimSpace(spec.DealerHole))
	if err != nil {
		return nil, &ReplayError{StepIndex: -1, Reason: "invalid_card", Message: fmt.Sprintf("dealer_hole: %v", err)}
	}
	out.up = up
	out.hole = hole
	return &out, nil
}
