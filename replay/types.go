package replay

// EpisodeSpec scripts one dealt blackjack hand: table rules, an optional
// explicit deal, and the replies to feed the environment in order. Replies
// are raw model text; Action entries are shorthand for a well formed tag.
type EpisodeSpec struct {
	Rules *RulesSpec     `json:"rules,omitempty"`
	Deal  *DealSpec      `json:"deal,omitempty"`
	Shoe  map[string]int `json:"shoe,omitempty"`
	Steps []StepSpec     `json:"steps"`
	RNG   *RNGSpec       `json:"rng,omitempty"`
	Env   *EnvSpec       `json:"env,omitempty"`
}

type RulesSpec struct {
	Decks         int   `json:"decks"`
	S17           *bool `json:"s17,omitempty"`
	DAS           *bool `json:"das,omitempty"`
	Double11VsAce bool  `json:"double_11_vs_ace,omitempty"`
}

// DealSpec forces the opening cards. Shoe, when present, is the post-deal
// remainder and requires a forced deal.
type DealSpec struct {
	Player     []string `json:"player"`
	DealerUp   string   `json:"dealer_up"`
	DealerHole string   `json:"dealer_hole"`
}

// StepSpec is one scripted turn: either a bare action name, validated before
// it is submitted, or a raw reply that exercises the parser as written.
type StepSpec struct {
	Action string `json:"action,omitempty"`
	Reply  string `json:"reply,omitempty"`
}

type RNGSpec struct {
	Seed int64 `json:"seed"`
}

type EnvSpec struct {
	EVSamples int  `json:"ev_samples,omitempty"`
	MaxTurns  int  `json:"max_turns,omitempty"`
	UseThink  bool `json:"use_think,omitempty"`
}

type ReplayTape struct {
	TapeVersion int           `json:"tape_version"`
	EpisodeID   string        `json:"episode_id"`
	Events      []ReplayEvent `json:"events"`
}

type ReplayEvent struct {
	Type        string        `json:"type"`
	Seq         uint64        `json:"seq"`
	Value       *TapeEnvelope `json:"value,omitempty"`
	EnvelopeB64 string        `json:"envelope_b64,omitempty"`
}

// TapeEnvelope carries exactly one event payload, JSON-encoded on the wire.
type TapeEnvelope struct {
	EpisodeID string `json:"episode_id"`
	Seq       uint64 `json:"seq"`
	TsMs      int64  `json:"ts_ms"`

	EpisodeStart *EpisodeStartEvent `json:"episode_start,omitempty"`
	StatePrompt  *StatePromptEvent  `json:"state_prompt,omitempty"`
	ActionResult *ActionResultEvent `json:"action_result,omitempty"`
	Corrective   *CorrectiveEvent   `json:"corrective,omitempty"`
	Settlement   *SettlementEvent   `json:"settlement,omitempty"`
	Score        *ScoreEvent        `json:"score,omitempty"`
}

type EpisodeStartEvent struct {
	Rules       RulesInfo `json:"rules"`
	PlayerCards []string  `json:"player_cards"`
	DealerUp    string    `json:"dealer_up"`
	Question    string    `json:"question"`
}

type RulesInfo struct {
	Decks         int  `json:"decks"`
	S17           bool `json:"s17"`
	DAS           bool `json:"das"`
	Double11VsAce bool `json:"double_11_vs_ace"`
}

type StatePromptEvent struct {
	Message        string   `json:"message"`
	Hand           []string `json:"hand"`
	Total          int      `json:"total"`
	Soft           bool     `json:"soft"`
	HandIndex      int      `json:"hand_index"`
	HandCount      int      `json:"hand_count"`
	AllowedActions []string `json:"allowed_actions"`
}

type ActionResultEvent struct {
	Action   string       `json:"action"`
	Salvaged bool         `json:"salvaged,omitempty"`
	Shaping  *ShapingInfo `json:"shaping,omitempty"`
}

type ShapingInfo struct {
	Baseline string  `json:"baseline"`
	Q        float64 `json:"q"`
	V        float64 `json:"v"`
	Delta    float64 `json:"delta"`
}

type CorrectiveEvent struct {
	Message        string   `json:"message"`
	AllowedActions []string `json:"allowed_actions"`
}

type SettlementEvent struct {
	Message     string        `json:"message"`
	DealerCards []string      `json:"dealer_cards"`
	DealerTotal int           `json:"dealer_total"`
	Hands       []HandOutcome `json:"hands"`
	TotalPayout float64       `json:"total_payout"`
}

type HandOutcome struct {
	Cards   []string `json:"cards"`
	Total   int      `json:"total"`
	Doubled bool     `json:"doubled"`
	Natural bool     `json:"natural"`
	Payout  float64  `json:"payout"`
}

type ScoreEvent struct {
	FirstActionEV  float64 `json:"first_action_ev"`
	DeltaEVSum     float64 `json:"delta_ev_sum"`
	RealizedReturn float64 `json:"realized_return"`
	StrictFormat   float64 `json:"strict_format"`
	Reward         float64 `json:"reward"`
	Settled        bool    `json:"settled"`
	Turns          int     `json:"turns"`
}
