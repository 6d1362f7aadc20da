package blackjack

import "blackjack-lite/card"

// Hand 玩家单手牌
type Hand []card.Rank

// HandEval is the ace-aware reading of a hand: the best total, whether an
// ace is still counted as 11, and whether the two cards form a natural.
type HandEval struct {
	Total   int
	Soft    bool
	Natural bool
}

func (h Hand) Clone() Hand {
	return append(Hand{}, h...)
}

func (h Hand) IsPair() bool {
	return len(h) == 2 && h[0] == h[1]
}

// Eval 计算手牌点数。A 先按 11，超过 21 逐张降为 1。
func (h Hand) Eval() HandEval {
	total, aces := 0, 0
	for _, r := range h {
		if r.IsAce() {
			aces++
		}
		total += r.Value()
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	natural := len(h) == 2 &&
		((h[0].IsAce() && h[1].IsTen()) || (h[0].IsTen() && h[1].IsAce()))
	return HandEval{
		Total:   total,
		Soft:    aces > 0,
		Natural: natural,
	}
}

func (h Hand) Bust() bool {
	return h.Eval().Total > 21
}
