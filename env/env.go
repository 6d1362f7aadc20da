package env

import (
	"errors"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
)

// ErrEpisodeComplete Submit 在回合结束后调用
var ErrEpisodeComplete = errors.New("episode already complete")

// DefaultMaxTurns 单局回复预算（无效回复同样计入）
const DefaultMaxTurns = 12

// Options 环境参数
type Options struct {
	EVSamples int  // <=0 取 200
	MaxTurns  int  // <=0 取 12
	UseThink  bool // 提示词风格，影响格式评分
}

// Episode drives one dealt hand end to end: parse the reply, validate the
// action, apply it to the engine, and render the environment's next message.
// Episodes are single threaded; run one goroutine per episode.
type Episode struct {
	opts   Options
	game   *blackjack.Game
	parser *Parser

	question   string
	firstState blackjack.Snapshot

	turnCount      int
	firstAction    blackjack.ActionType
	hasFirstAction bool
	lastParsed     string
	formatScores   []float64
	formatSalvaged bool

	realized    float64
	dealerFinal []card.Rank
	done        bool
	settled     bool
}

// TurnResult is the outcome of one Submit call.
type TurnResult struct {
	Message    string                      `json:"message"`
	Done       bool                        `json:"done"`
	Invalid    bool                        `json:"invalid"`  // corrective reply, nothing advanced
	Salvaged   bool                        `json:"salvaged"` // fallback extraction rescued this reply
	Action     blackjack.ActionType        `json:"action"`
	Shaping    *blackjack.TurnShaping      `json:"shaping,omitempty"`
	Settlement *blackjack.SettlementResult `json:"settlement,omitempty"`
}

// NewEpisode builds the engine state for one dataset example.
func NewEpisode(ex Example, opts Options) (*Episode, error) {
	if opts.EVSamples <= 0 {
		opts.EVSamples = blackjack.DefaultEVSamples
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	g, err := blackjack.NewGame(blackjack.Config{
		Rules:       ex.Rules,
		Seed:        ex.Seed,
		EVSamples:   opts.EVSamples,
		PlayerCards: ex.PlayerCards,
		DealerUp:    ex.DealerUp,
		DealerHole:  ex.DealerHole,
		ShoeCounts:  ex.Shoe,
	})
	if err != nil {
		return nil, err
	}
	e := &Episode{
		opts:       opts,
		game:       g,
		parser:     NewParser(opts.UseThink),
		firstState: g.Snapshot(),
		question:   ex.Question,
	}
	if e.question == "" {
		legal, err := g.LegalActions()
		if err != nil {
			return nil, err
		}
		active, _ := e.firstState.ActiveHand()
		e.question = StateMessage(active.Cards, e.firstState.DealerUp, e.firstState.Rules, legal)
	}
	return e, nil
}

// Submit processes one model reply and returns the environment's answer.
func (e *Episode) Submit(text string) (TurnResult, error) {
	if e.done {
		return TurnResult{}, ErrEpisodeComplete
	}
	e.turnCount++
	e.formatScores = append(e.formatScores, e.parser.FormatScore(text))

	parsed := e.parser.ParseAnswer(text)
	e.lastParsed = parsed
	action, known := blackjack.ParseActionType(parsed)
	// The opening decision is recorded before validation, from the tag only.
	if known && !e.hasFirstAction {
		e.firstAction = action
		e.hasFirstAction = true
	}

	allowed, err := e.game.LegalActions()
	if err != nil {
		return TurnResult{}, err
	}

	salvaged := false
	if !known || !containsAction(allowed, action) {
		fb, ok := InferActionFromText(text, allowed)
		if !ok {
			res := TurnResult{Message: CorrectiveMessage(allowed), Invalid: true}
			e.finishIfOutOfTurns(&res)
			return res, nil
		}
		action = fb
		salvaged = true
		e.formatSalvaged = true
	}

	settle, err := e.game.Act(action)
	if err != nil {
		// Post-validation failures mean shoe exhaustion or an engine fault.
		return TurnResult{}, err
	}

	res := TurnResult{Action: action, Salvaged: salvaged}
	if sh, ok := e.game.LastShaping(); ok {
		res.Shaping = &sh
	}
	if settle != nil {
		e.done = true
		e.settled = true
		e.realized = settle.TotalPayout
		e.dealerFinal = append([]card.Rank{}, settle.DealerCards...)
		res.Done = true
		res.Settlement = settle
		res.Message = TerminalMessage(action, settle.DealerCards, settle.TotalPayout)
		return res, nil
	}

	snap := e.game.Snapshot()
	active, ok := snap.ActiveHand()
	if !ok {
		return TurnResult{}, blackjack.ErrInvalidState("no active hand on a live episode")
	}
	legal, err := e.game.LegalActions()
	if err != nil {
		return TurnResult{}, err
	}
	res.Message = StateMessage(active.Cards, snap.DealerUp, snap.Rules, legal)
	e.finishIfOutOfTurns(&res)
	return res, nil
}

// finishIfOutOfTurns aborts a still running episode once the reply budget is
// spent. Unsettled episodes keep a realized return of zero.
func (e *Episode) finishIfOutOfTurns(res *TurnResult) {
	if e.done || e.turnCount < e.opts.MaxTurns {
		return
	}
	e.game.Abort()
	e.done = true
	res.Done = true
}

// Abort ends a still running episode without settlement. Turns already
// scored keep their contributions; the realized return stays zero.
func (e *Episode) Abort() {
	if e.done {
		return
	}
	e.game.Abort()
	e.done = true
}

// Question 开局状态消息
func (e *Episode) Question() string {
	return e.question
}

// LegalActions lists the actions the active hand may take right now.
func (e *Episode) LegalActions() ([]blackjack.ActionType, error) {
	return e.game.LegalActions()
}

func (e *Episode) Done() bool {
	return e.done
}

// Settled reports whether the episode reached a real settlement rather than
// running out the turn budget.
func (e *Episode) Settled() bool {
	return e.settled
}

func (e *Episode) Turns() int {
	return e.turnCount
}

func (e *Episode) RealizedReturn() float64 {
	return e.realized
}

func (e *Episode) DealerFinal() []card.Rank {
	return append([]card.Rank{}, e.dealerFinal...)
}

// Snapshot 当前引擎快照
func (e *Episode) Snapshot() blackjack.Snapshot {
	return e.game.Snapshot()
}

// FirstState 开局快照（发牌后、首个动作前）
func (e *Episode) FirstState() blackjack.Snapshot {
	return e.firstState
}

func (e *Episode) Rules() blackjack.Rules {
	return e.game.Rules()
}

func (e *Episode) FormatSalvaged() bool {
	return e.formatSalvaged
}

// FirstAction reports the first well formed action the model ever sent,
// whether or not it was legal at the time.
func (e *Episode) FirstAction() (blackjack.ActionType, bool) {
	return e.firstAction, e.hasFirstAction
}
