package blackjack

import "blackjack-lite/card"

// HandSnapshot 单手牌快照
type HandSnapshot struct {
	Cards     []card.Rank `json:"cards"`
	Total     int         `json:"total"`
	Soft      bool        `json:"soft"`
	Natural   bool        `json:"natural"`
	Bust      bool        `json:"bust"`
	CanDouble bool        `json:"can_double"`
	CanSplit  bool        `json:"can_split"`
	Doubled   bool        `json:"doubled"`
}

// Snapshot 牌局全量快照。庄家暗牌包含在内，对外展示由调用方裁剪。
type Snapshot struct {
	Phase       Phase             `json:"phase"`
	Rules       Rules             `json:"rules"`
	DealerUp    card.Rank         `json:"dealer_up"`
	DealerHole  card.Rank         `json:"dealer_hole"`
	Hands       []HandSnapshot    `json:"hands"`
	ActiveIndex int               `json:"active_index"`
	ShoeCounts  map[string]int    `json:"shoe_counts"`
	Turns       int               `json:"turns"`
	DeltaEVSum  float64           `json:"delta_ev_sum"`
	Result      *SettlementResult `json:"result,omitempty"`
}

// Snapshot 深拷贝当前牌局状态
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		Phase:       g.phase,
		Rules:       g.cfg.Rules,
		DealerUp:    g.dealerUp,
		DealerHole:  g.dealerHole,
		ActiveIndex: g.activeIndex,
		ShoeCounts:  g.shoe.CountsByRank(),
		Turns:       g.turns,
		DeltaEVSum:  g.deltaEVSum,
	}
	for i, h := range g.hands {
		ev := h.Eval()
		snap.Hands = append(snap.Hands, HandSnapshot{
			Cards:     append([]card.Rank{}, h...),
			Total:     ev.Total,
			Soft:      ev.Soft,
			Natural:   ev.Natural,
			Bust:      ev.Total > 21,
			CanDouble: g.canDouble[i],
			CanSplit:  g.canSplit[i],
			Doubled:   g.doubled[i],
		})
	}
	if g.result != nil {
		r := *g.result
		r.DealerCards = append([]card.Rank{}, g.result.DealerCards...)
		r.Hands = append([]HandResult{}, g.result.Hands...)
		for i := range r.Hands {
			r.Hands[i].Cards = append([]card.Rank{}, g.result.Hands[i].Cards...)
		}
		snap.Result = &r
	}
	return snap
}

// ActiveHand returns the snapshot of the hand awaiting a decision.
func (s Snapshot) ActiveHand() (HandSnapshot, bool) {
	if s.ActiveIndex < 0 || s.ActiveIndex >= len(s.Hands) {
		return HandSnapshot{}, false
	}
	return s.Hands[s.ActiveIndex], true
}
