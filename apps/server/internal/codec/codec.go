// Package codec defines the JSON frames spoken on the rollout websocket.
// Server pushes reuse the tape payload structs from blackjack-lite/replay, so
// a live session stream and a stored episode tape decode identically.
package codec

import (
	"fmt"
	"time"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
	"blackjack-lite/env"
	"blackjack-lite/replay"
)

// ClientEnvelope is one frame from a runner. Exactly one payload is set.
type ClientEnvelope struct {
	ClientSeq uint64 `json:"client_seq,omitempty"`

	Auth         *AuthRequest         `json:"auth,omitempty"`
	EpisodeStart *EpisodeStartRequest `json:"episode_start,omitempty"`
	Turn         *TurnRequest         `json:"turn,omitempty"`
	Abort        *AbortRequest        `json:"abort,omitempty"`
}

// AuthRequest must be the first frame on a fresh connection.
type AuthRequest struct {
	SessionToken string `json:"session_token"`
}

// EpisodeStartRequest deals a new hand. Either explicit rules/seed, or a
// suite stage reference; the stage then dictates both.
type EpisodeStartRequest struct {
	Rules     *replay.RulesSpec `json:"rules,omitempty"`
	Seed      int64             `json:"seed,omitempty"`
	EVSamples int               `json:"ev_samples,omitempty"`
	MaxTurns  int               `json:"max_turns,omitempty"`
	UseThink  bool              `json:"use_think,omitempty"`
	Suite     string            `json:"suite,omitempty"`
	Stage     int               `json:"stage,omitempty"`
}

// TurnRequest carries one raw model reply for the active episode.
type TurnRequest struct {
	Reply string `json:"reply"`
}

// AbortRequest gives up on the active episode without settlement.
type AbortRequest struct{}

// ServerEnvelope is one frame to a runner. Exactly one payload is set.
type ServerEnvelope struct {
	EpisodeID  string `json:"episode_id,omitempty"`
	ServerSeq  uint64 `json:"server_seq"`
	ServerTsMs int64  `json:"server_ts_ms"`

	Hello         *HelloPayload             `json:"hello,omitempty"`
	Error         *ErrorPayload             `json:"error,omitempty"`
	EpisodeStart  *replay.EpisodeStartEvent `json:"episode_start,omitempty"`
	StatePrompt   *replay.StatePromptEvent  `json:"state_prompt,omitempty"`
	ActionResult  *replay.ActionResultEvent `json:"action_result,omitempty"`
	Corrective    *replay.CorrectiveEvent   `json:"corrective,omitempty"`
	Settlement    *replay.SettlementEvent   `json:"settlement,omitempty"`
	Score         *replay.ScoreEvent        `json:"score,omitempty"`
	SuiteProgress *SuiteProgressPayload     `json:"suite_progress,omitempty"`
}

// HelloPayload acknowledges a successful websocket auth.
type HelloPayload struct {
	RunnerID   uint64 `json:"runner_id"`
	RunnerName string `json:"runner_name"`
	SessionID  string `json:"session_id"`
	Resumed    bool   `json:"resumed"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuiteProgressPayload reports stage standing after a suite episode ends.
type SuiteProgressPayload struct {
	SuiteID           string  `json:"suite_id"`
	Stage             int     `json:"stage"`
	EpisodesPlayed    int     `json:"episodes_played"`
	EpisodesTotal     int     `json:"episodes_total"`
	MeanDeltaEV       float64 `json:"mean_delta_ev"`
	TargetMeanDeltaEV float64 `json:"target_mean_delta_ev"`
	Cleared           bool    `json:"cleared"`
	HighestUnlocked   int     `json:"highest_unlocked"`
}

// Wrap stamps common fields and slots the payload into its envelope field.
func Wrap(episodeID string, serverSeq uint64, payload any) *ServerEnvelope {
	e := &ServerEnvelope{
		EpisodeID:  episodeID,
		ServerSeq:  serverSeq,
		ServerTsMs: time.Now().UnixMilli(),
	}

	switch p := payload.(type) {
	case *HelloPayload:
		e.Hello = p
	case *ErrorPayload:
		e.Error = p
	case *replay.EpisodeStartEvent:
		e.EpisodeStart = p
	case *replay.StatePromptEvent:
		e.StatePrompt = p
	case *replay.ActionResultEvent:
		e.ActionResult = p
	case *replay.CorrectiveEvent:
		e.Corrective = p
	case *replay.SettlementEvent:
		e.Settlement = p
	case *replay.ScoreEvent:
		e.Score = p
	case *SuiteProgressPayload:
		e.SuiteProgress = p
	}

	return e
}

// PayloadType names the payload an envelope carries, for the event stream.
func PayloadType(e *ServerEnvelope) string {
	switch {
	case e == nil:
		return "unknown"
	case e.Hello != nil:
		return "hello"
	case e.Error != nil:
		return "error"
	case e.EpisodeStart != nil:
		return "episodeStart"
	case e.StatePrompt != nil:
		return "statePrompt"
	case e.ActionResult != nil:
		return "actionResult"
	case e.Corrective != nil:
		return "corrective"
	case e.Settlement != nil:
		return "settlement"
	case e.Score != nil:
		return "score"
	case e.SuiteProgress != nil:
		return "suiteProgress"
	default:
		return "unknown"
	}
}

// Type names the payload of a client frame.
func (c *ClientEnvelope) Type() string {
	switch {
	case c == nil:
		return "unknown"
	case c.Auth != nil:
		return "auth"
	case c.EpisodeStart != nil:
		return "episodeStart"
	case c.Turn != nil:
		return "turn"
	case c.Abort != nil:
		return "abort"
	default:
		return "unknown"
	}
}

// RulesFromSpec resolves an optional wire rules block against the defaults.
func RulesFromSpec(spec *replay.RulesSpec) (blackjack.Rules, error) {
	rules := blackjack.DefaultRules()
	if spec == nil {
		return rules, nil
	}
	if spec.Decks != 0 {
		if spec.Decks < 1 || spec.Decks > 8 {
			return rules, fmt.Errorf("decks must be between 1 and 8, got %d", spec.Decks)
		}
		rules.Decks = spec.Decks
	}
	if spec.S17 != nil {
		rules.S17 = *spec.S17
	}
	if spec.DAS != nil {
		rules.DAS = *spec.DAS
	}
	rules.Double11VsAce = spec.Double11VsAce
	return rules, nil
}

// RulesToInfo converts engine rules to the wire shape.
func RulesToInfo(r blackjack.Rules) replay.RulesInfo {
	return replay.RulesInfo{
		Decks:         r.Decks,
		S17:           r.S17,
		DAS:           r.DAS,
		Double11VsAce: r.Double11VsAce,
	}
}

// EpisodeStartPayload captures the opening deal as the runner sees it.
func EpisodeStartPayload(snap blackjack.Snapshot, question string) *replay.EpisodeStartEvent {
	var playerCards []string
	if len(snap.Hands) > 0 {
		playerCards = card.RankStrings(snap.Hands[0].Cards)
	}
	return &replay.EpisodeStartEvent{
		Rules:       RulesToInfo(snap.Rules),
		PlayerCards: playerCards,
		DealerUp:    snap.DealerUp.String(),
		Question:    question,
	}
}

// StatePromptPayload pairs the environment's message with the active hand.
func StatePromptPayload(snap blackjack.Snapshot, message string, allowed []blackjack.ActionType) *replay.StatePromptEvent {
	out := &replay.StatePromptEvent{
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

func ActionResultPayload(res env.TurnResult) *replay.ActionResultEvent {
	out := &replay.ActionResultEvent{
		Action:   res.Action.String(),
		Salvaged: res.Salvaged,
	}
	if res.Shaping != nil {
		out.Shaping = &replay.ShapingInfo{
			Baseline: res.Shaping.Baseline.String(),
			Q:        res.Shaping.Q,
			V:        res.Shaping.V,
			Delta:    res.Shaping.Q - res.Shaping.V,
		}
	}
	return out
}

func CorrectivePayload(message string, allowed []blackjack.ActionType) *replay.CorrectiveEvent {
	return &replay.CorrectiveEvent{
		Message:        message,
		AllowedActions: blackjack.ActionNames(allowed),
	}
}

func SettlementPayload(message string, res *blackjack.SettlementResult) *replay.SettlementEvent {
	out := &replay.SettlementEvent{
		Message:     message,
		DealerCards: card.RankStrings(res.DealerCards),
		DealerTotal: res.DealerTotal,
		Hands:       make([]replay.HandOutcome, 0, len(res.Hands)),
		TotalPayout: res.TotalPayout,
	}
	for _, h := range res.Hands {
		out.Hands = append(out.Hands, replay.HandOutcome{
			Cards:   card.RankStrings(h.Cards),
			Total:   h.Total,
			Doubled: h.Doubled,
			Natural: h.Natural,
			Payout:  h.Payout,
		})
	}
	return out
}

// ScorePayload snapshots the reward breakdown of a finished episode.
func ScorePayload(e *env.Episode) *replay.ScoreEvent {
	s := e.Score()
	return &replay.ScoreEvent{
		FirstActionEV:  s.FirstActionEV,
		DeltaEVSum:     s.DeltaEVSum,
		RealizedReturn: s.RealizedReturn,
		StrictFormat:   s.StrictFormat,
		Reward:         s.Reward,
		Settled:        e.Settled(),
		Turns:          e.Turns(),
	}
}
