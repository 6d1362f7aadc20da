package blackjack

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"blackjack-lite/blackjack/oracle"
	"blackjack-lite/card"
)

// Game 单人对庄的一局二十一点
type Game struct {
	cfg Config
	rng *rand.Rand
	mu  sync.Mutex

	shoe       card.Shoe
	dealerUp   card.Rank
	dealerHole card.Rank

	hands       []Hand
	canDouble   []bool
	canSplit    []bool
	doubled     []bool
	activeIndex int

	phase       Phase
	turns       int
	deltaEVSum  float64
	lastShaping *TurnShaping
	result      *SettlementResult
}

// TurnShaping 单回合 Q/V 估值记录
type TurnShaping struct {
	Action   ActionType `json:"action"`
	Baseline ActionType `json:"baseline"`
	Q        float64    `json:"q"`
	V        float64    `json:"v"`
}

// NewGame 创建并发牌
func NewGame(cfg Config) (*Game, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.EVSamples <= 0 {
		cfg.EVSamples = DefaultEVSamples
	}
	if cfg.CRNSeed == 0 {
		cfg.CRNSeed = DefaultCRNSeed
	}
	g := &Game{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		phase: PhaseTypeAwaitAction,
	}
	if err := g.deal(); err != nil {
		return nil, err
	}
	return g, nil
}

// deal builds the shoe and the opening hands. Without a forced deal the draw
// order is fixed: player, player, upcard, hole.
func (g *Game) deal() error {
	if g.cfg.ShoeCounts != nil {
		s, err := card.ShoeFromCounts(g.cfg.ShoeCounts)
		if err != nil {
			return err
		}
		g.shoe = *s
	} else {
		g.shoe = *card.NewShoe(g.cfg.Rules.Decks)
	}

	var first Hand
	if len(g.cfg.PlayerCards) == 2 {
		first = append(Hand{}, g.cfg.PlayerCards...)
		g.dealerUp = g.cfg.DealerUp
		g.dealerHole = g.cfg.DealerHole
		if g.cfg.ShoeCounts == nil {
			// A fresh shoe still has to give up the forced cards.
			for _, r := range []card.Rank{first[0], first[1], g.dealerUp, g.dealerHole} {
				if !g.shoe.Remove(r) {
					return fmt.Errorf("forced deal exhausts rank %s", r)
				}
			}
		}
	} else {
		drawn := make([]card.Rank, 0, 4)
		for n := 0; n < 4; n++ {
			r, err := g.shoe.Draw(g.rng)
			if err != nil {
				return err
			}
			drawn = append(drawn, r)
		}
		first = Hand{drawn[0], drawn[1]}
		g.dealerUp = drawn[2]
		g.dealerHole = drawn[3]
	}

	g.hands = []Hand{first}
	g.canDouble = []bool{true}
	g.canSplit = []bool{first.IsPair()}
	g.doubled = []bool{false}
	g.activeIndex = 0
	return nil
}

// LegalActions 当前活动手牌的合法动作（顺序固定：HIT STAND DOUBLE SPLIT）
func (g *Game) LegalActions() ([]ActionType, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseTypeAwaitAction {
		return nil, ErrEpisodeOver
	}
	return g.legalActionsLocked(), nil
}

func (g *Game) legalActionsLocked() []ActionType {
	i := g.activeIndex
	acts := []ActionType{ActionTypeHit, ActionTypeStand}
	if g.canDouble[i] {
		acts = append(acts, ActionTypeDouble)
	}
	if g.canSplit[i] {
		acts = append(acts, ActionTypeSplit)
	}
	return acts
}

// Act applies one player action to the active hand. A nil SettlementResult
// means the episode continues and the caller reads the next state from
// Snapshot. Shaping runs before the shoe mutates so Q and V both price the
// pre-action state.
func (g *Game) Act(action ActionType) (*SettlementResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseTypeAwaitAction {
		return nil, ErrEpisodeOver
	}
	if action == ActionTypeNone {
		return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, action)
	}
	if !containsActionType(g.legalActionsLocked(), action) {
		return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, action)
	}

	g.applyShapingLocked(action)
	g.turns++

	i := g.activeIndex
	switch action {
	case ActionTypeHit:
		r, err := g.shoe.Draw(g.rng)
		if err != nil {
			return nil, err
		}
		g.hands[i] = append(g.hands[i], r)
		g.canDouble[i] = false
		g.canSplit[i] = false
		if g.hands[i].Eval().Total > 21 {
			return g.advanceLocked()
		}
		// Hitting to exactly 21 still waits for an explicit stand.
		return nil, nil

	case ActionTypeStand:
		return g.advanceLocked()

	case ActionTypeDouble:
		if !g.canDouble[i] {
			return nil, ErrInvalidState("double not allowed on this hand")
		}
		r, err := g.shoe.Draw(g.rng)
		if err != nil {
			return nil, err
		}
		g.hands[i] = append(g.hands[i], r)
		g.doubled[i] = true
		// Forced stand; a bust surfaces at settlement.
		return g.advanceLocked()

	case ActionTypeSplit:
		if !g.canSplit[i] || !g.hands[i].IsPair() {
			return nil, ErrInvalidState("split not allowed on this hand")
		}
		l, err := g.shoe.Draw(g.rng)
		if err != nil {
			return nil, err
		}
		r, err := g.shoe.Draw(g.rng)
		if err != nil {
			return nil, err
		}
		left := Hand{g.hands[i][0], l}
		right := Hand{g.hands[i][1], r}
		das := g.cfg.Rules.DAS
		g.hands[i] = left
		g.hands = insertHand(g.hands, i+1, right)
		g.canDouble[i] = das
		g.canDouble = insertBool(g.canDouble, i+1, das)
		g.canSplit[i] = false
		g.canSplit = insertBool(g.canSplit, i+1, false)
		g.doubled[i] = false
		g.doubled = insertBool(g.doubled, i+1, false)
		// Play continues on the left hand.
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, action)
}

// applyShapingLocked accumulates Q-V for the chosen action against the chart
// baseline under common random numbers. Estimator faults leave the sum as is.
func (g *Game) applyShapingLocked(action ActionType) {
	g.lastShaping = nil
	i := g.activeIndex
	hand := g.hands[i]
	allowed := g.legalActionsLocked()

	baseline := actionFromOracle(oracle.Recommend(hand, g.dealerUp, oracle.Options{
		DAS:           g.cfg.Rules.DAS,
		Double11VsAce: g.cfg.Rules.Double11VsAce,
	}))
	if !containsActionType(allowed, baseline) {
		switch {
		case containsActionType(allowed, ActionTypeStand):
			baseline = ActionTypeStand
		case containsActionType(allowed, ActionTypeHit):
			baseline = ActionTypeHit
		default:
			baseline = allowed[0]
		}
	}

	q, err := EstimateActionEV(g.shoe, hand, g.dealerUp, g.cfg.Rules, action, g.cfg.CRNSeed, g.cfg.EVSamples)
	if err != nil {
		return
	}
	v, err := EstimateActionEV(g.shoe, hand, g.dealerUp, g.cfg.Rules, baseline, g.cfg.CRNSeed, g.cfg.EVSamples)
	if err != nil {
		return
	}
	g.deltaEVSum += q - v
	g.lastShaping = &TurnShaping{Action: action, Baseline: baseline, Q: q, V: v}
}

// advanceLocked moves play to the next split hand, or settles once every
// hand has resolved.
func (g *Game) advanceLocked() (*SettlementResult, error) {
	if g.activeIndex+1 < len(g.hands) {
		g.activeIndex++
		return nil, nil
	}
	res, err := g.settleLocked()
	if err != nil {
		return nil, err
	}
	g.result = res
	g.phase = PhaseTypeSettled
	g.activeIndex = len(g.hands)
	return res, nil
}

// Abort ends an unfinished episode without settlement, e.g. when the turn
// budget runs out or a session drops. Later calls to Act fail with
// ErrEpisodeOver.
func (g *Game) Abort() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == PhaseTypeAwaitAction {
		g.phase = PhaseTypeAborted
	}
}

// DeltaEVSum 已累计的塑形回报
func (g *Game) DeltaEVSum() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deltaEVSum
}

// LastShaping reports the Q/V record of the most recent validated action,
// when the estimator completed.
func (g *Game) LastShaping() (TurnShaping, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastShaping == nil {
		return TurnShaping{}, false
	}
	return *g.lastShaping, true
}

// Rules 只读规则
func (g *Game) Rules() Rules {
	return g.cfg.Rules
}
