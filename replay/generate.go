package replay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"blackjack-lite/card"
	"blackjack-lite/env"
)

const defaultEpisodeID = "replay_local"

// GenerateReplayTape drives one scripted episode through the environment and
// records every exchanged event. Scripted actions are validated against the
// live legal set before they are submitted; raw replies go through the parser
// exactly as a model reply would, so a corrective exchange is a tape event,
// not an error.
func GenerateReplayTape(spec EpisodeSpec) (*ReplayTape, error) {
	ns, err := normalizeSpec(spec)
	if err != nil {
		return nil, err
	}

	ex := env.Example{Seed: ns.seed, Rules: ns.rules, Shoe: ns.shoe}
	if ns.deal != nil {
		ex.PlayerCards = []card.Rank{ns.deal.player[0], ns.deal.player[1]}
		ex.DealerUp = ns.deal.up
		ex.DealerHole = ns.deal.hole
	}
	episode, err := env.NewEpisode(ex, ns.opts)
	if err != nil {
		return nil, &ReplayError{StepIndex: -1, Reason: "engine_init_failed", Message: err.Error()}
	}

	builder := newTapeBuilder(defaultEpisodeID)
	first := episode.FirstState()
	builder.addEpisodeStart(episodeStartEvent(first, episode.Question()))

	opening, err := episode.LegalActions()
	if err != nil {
		return nil, &ReplayError{StepIndex: -1, Reason: "prompt_build_failed", Message: err.Error()}
	}
	builder.addStatePrompt(statePromptEvent(first, episode.Question(), opening))

	for stepIdx, step := range ns.steps {
		if episode.Done() {
			return nil, &ReplayError{
				StepIndex: int32(stepIdx),
				Reason:    "no_step_expected",
				Message:   "episode is already complete; no further steps are allowed",
			}
		}
		allowed, err := episode.LegalActions()
		if err != nil {
			return nil, &ReplayError{StepIndex: int32(stepIdx), Reason: "prompt_build_failed", Message: err.Error()}
		}

		reply := step.reply
		if step.scripted {
			if !containsActionType(allowed, step.action) {
				return nil, &ReplayError{
					StepIndex: int32(stepIdx),
					Reason:    "illegal_action",
					Message:   fmt.Sprintf("action %s is not legal for the active hand", step.action),
					Expected:  expectedState(episode),
				}
			}
			reply = "<answer>" + step.action.String() + "</answer>"
		}

		res, err := episode.Submit(reply)
		if err != nil {
			return nil, &ReplayError{
				StepIndex: int32(stepIdx),
				Reason:    "step_apply_failed",
				Message:   err.Error(),
				Expected:  expectedState(episode),
			}
		}

		if res.Invalid {
			builder.addCorrective(correctiveEvent(res.Message, allowed))
			if res.Done {
				builder.addScore(scoreEvent(episode))
				break
			}
			continue
		}

		builder.addActionResult(actionResultEvent(res))
		if res.Settlement != nil {
			builder.addSettlement(settlementEvent(res.Message, res.Settlement))
			builder.addScore(scoreEvent(episode))
			break
		}
		if res.Done {
			// Turn budget ran out mid-hand.
			builder.addScore(scoreEvent(episode))
			break
		}

		snap := episode.Snapshot()
		next, err := episode.LegalActions()
		if err != nil {
			return nil, &ReplayError{StepIndex: int32(stepIdx), Reason: "prompt_build_failed", Message: err.Error()}
		}
		builder.addStatePrompt(statePromptEvent(snap, res.Message, next))
	}

	return &ReplayTape{
		TapeVersion: 1,
		EpisodeID:   builder.episodeID,
		Events:      builder.events,
	}, nil
}

type tapeBuilder struct {
	episodeID string
	seq       uint64
	events    []ReplayEvent
}

func newTapeBuilder(episodeID string) *tapeBuilder {
	return &tapeBuilder{
		episodeID: episodeID,
		events:    make([]ReplayEvent, 0, 16),
	}
}

func (b *tapeBuilder) addEpisodeStart(ev *EpisodeStartEvent) {
	b.pushEnvelope(&TapeEnvelope{EpisodeStart: ev})
}

func (b *tapeBuilder) addStatePrompt(ev *StatePromptEvent) {
	b.pushEnvelope(&TapeEnvelope{StatePrompt: ev})
}

func (b *tapeBuilder) addActionResult(ev *ActionResultEvent) {
	b.pushEnvelope(&TapeEnvelope{ActionResult: ev})
}

func (b *tapeBuilder) addCorrective(ev *CorrectiveEvent) {
	b.pushEnvelope(&TapeEnvelope{Corrective: ev})
}

func (b *tapeBuilder) addSettlement(ev *SettlementEvent) {
	b.pushEnvelope(&TapeEnvelope{Settlement: ev})
}

func (b *tapeBuilder) addScore(ev *ScoreEvent) {
	b.pushEnvelope(&TapeEnvelope{Score: ev})
}

func (b *tapeBuilder) pushEnvelope(env *TapeEnvelope) {
	b.seq++
	env.EpisodeID = b.episodeID
	env.Seq = b.seq
	env.TsMs = int64(b.seq)
	bin, _ := json.Marshal(env)
	b.events = append(b.events, ReplayEvent{
		Type:        payloadType(env),
		Seq:         b.seq,
		Value:       env,
		EnvelopeB64: base64.StdEncoding.EncodeToString(bin),
	})
}

func payloadType(env *TapeEnvelope) string {
	switch {
	case env.EpisodeStart != nil:
		return "episodeStart"
	case env.StatePrompt != nil:
		return "statePrompt"
	case env.ActionResult != nil:
		return "actionResult"
	case env.Corrective != nil:
		return "corrective"
	case env.Settlement != nil:
		return "settlement"
	case env.Score != nil:
		return "score"
	default:
		return "unknown"
	}
}
