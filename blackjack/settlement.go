package blackjack

import "blackjack-lite/card"

const blackjackPayout = 1.5

// HandResult 单手结算明细（以底注为单位）
type HandResult struct {
	Cards   []card.Rank `json:"cards"`
	Total   int         `json:"total"`
	Doubled bool        `json:"doubled"`
	Natural bool        `json:"natural"`
	Payout  float64     `json:"payout"`
}

// SettlementResult 庄家亮牌补牌后的整局结算
type SettlementResult struct {
	DealerCards   []card.Rank  `json:"dealer_cards"`
	DealerTotal   int          `json:"dealer_total"`
	DealerNatural bool         `json:"dealer_natural"`
	Hands         []HandResult `json:"hands"`
	TotalPayout   float64      `json:"total_payout"`
}

// comparePayout settles one player total against the dealer in bet units,
// before any doubling multiplier. Naturals pay 3:2 and beat non-natural 21.
func comparePayout(playerTotal, dealerTotal int, playerNatural, dealerNatural bool) float64 {
	if playerNatural && !dealerNatural {
		return blackjackPayout
	}
	if dealerNatural && !playerNatural {
		return -1
	}
	if playerTotal > 21 {
		return -1
	}
	if dealerTotal > 21 {
		return 1
	}
	if playerTotal > dealerTotal {
		return 1
	}
	if playerTotal < dealerTotal {
		return -1
	}
	return 0
}

// settleLocked plays out the dealer on a copy of the shoe and scores every
// player hand. The live shoe is left untouched; only the rng stream advances.
func (g *Game) settleLocked() (*SettlementResult, error) {
	local := g.shoe
	dealerCards, err := dealerPlay(&local, g.dealerUp, g.dealerHole, g.cfg.Rules.S17, g.rng)
	if err != nil {
		return nil, err
	}
	dev := dealerCards.Eval()
	res := &SettlementResult{
		DealerCards:   append([]card.Rank{}, dealerCards...),
		DealerTotal:   dev.Total,
		DealerNatural: dev.Natural,
	}
	for i, h := range g.hands {
		hev := h.Eval()
		natural := hev.Natural && !g.doubled[i]
		mult := 1.0
		if g.doubled[i] {
			mult = 2.0
		}
		pay := comparePayout(hev.Total, dev.Total, natural, dev.Natural) * mult
		res.Hands = append(res.Hands, HandResult{
			Cards:   append([]card.Rank{}, h...),
			Total:   hev.Total,
			Doubled: g.doubled[i],
			Natural: natural,
			Payout:  pay,
		})
		res.TotalPayout += pay
	}
	return res, nil
}
