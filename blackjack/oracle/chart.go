// Package oracle holds the basic-strategy charts used both as the rollout
// policy inside EV estimation and as the per-turn baseline. Recommendations
// ignore legality; callers degrade to an allowed action themselves.
package oracle

import "blackjack-lite/card"

// Options 查表规则开关
type Options struct {
	DAS           bool
	Double11VsAce bool
}

// Recommend looks up the chart action for an arbitrary hand. Pairs route to
// the pair table; any hand still holding an ace at or under 21 routes to the
// soft table keyed by total-11 clamped into the 2..9 companion range; the
// rest is the hard table.
func Recommend(cards []card.Rank, up card.Rank, o Options) Action {
	if len(cards) == 2 && cards[0] == cards[1] {
		return pairAction(cards[0], up, o.DAS)
	}
	total, hasAce := 0, false
	for _, r := range cards {
		if r.IsAce() {
			hasAce = true
		}
		total += r.Value()
	}
	for total > 21 && hasAce {
		total -= 10
	}
	if hasAce && total <= 21 {
		v := total - 11
		if v < 2 {
			v = 2
		}
		if v > 9 {
			v = 9
		}
		return softAction(v, up)
	}
	return hardAction(total, up, o.Double11VsAce)
}

func pairAction(r card.Rank, up card.Rank, das bool) Action {
	d := up.Value()
	switch r {
	case card.RankAce, card.Rank8:
		return ActionSplit
	case card.RankTen:
		return ActionStand
	case card.Rank9:
		if (d >= 2 && d <= 6) || d == 8 || d == 9 {
			return ActionSplit
		}
		return ActionStand
	case card.Rank7:
		if d >= 2 && d <= 7 {
			return ActionSplit
		}
		return ActionHit
	case card.Rank6:
		if (d >= 3 && d <= 6) || (das && d == 2) {
			return ActionSplit
		}
		return ActionHit
	case card.Rank5:
		if d >= 2 && d <= 9 {
			return ActionDouble
		}
		return ActionHit
	case card.Rank4:
		if das && (d == 5 || d == 6) {
			return ActionSplit
		}
		return ActionHit
	default: // 2s and 3s
		if (d >= 4 && d <= 7) || (das && (d == 2 || d == 3)) {
			return ActionSplit
		}
		return ActionHit
	}
}

// softAction keys on the non-ace companion value v in 2..9 (A,7 has v=7).
func softAction(v int, up card.Rank) Action {
	d := up.Value()
	switch {
	case v >= 8:
		return ActionStand
	case v == 7:
		if d >= 3 && d <= 6 {
			return ActionDouble
		}
		if d == 2 || d == 7 || d == 8 {
			return ActionStand
		}
		return ActionHit
	case v == 6:
		if d >= 3 && d <= 6 {
			return ActionDouble
		}
		return ActionHit
	case v == 5:
		if d >= 4 && d <= 6 {
			return ActionDouble
		}
		return ActionHit
	default: // 2..4
		if d == 5 || d == 6 {
			return ActionDouble
		}
		return ActionHit
	}
}

func hardAction(total int, up card.Rank, double11VsAce bool) Action {
	d := up.Value()
	switch {
	case total >= 17:
		return ActionStand
	case total >= 13:
		if d >= 2 && d <= 6 {
			return ActionStand
		}
		return ActionHit
	case total == 12:
		if d >= 4 && d <= 6 {
			return ActionStand
		}
		return ActionHit
	case total == 11:
		if d == 11 && !double11VsAce {
			return ActionHit
		}
		return ActionDouble
	case total == 10:
		if d >= 2 && d <= 9 {
			return ActionDouble
		}
		return ActionHit
	case total == 9:
		if d >= 3 && d <= 6 {
			return ActionDouble
		}
		return ActionHit
	default:
		return ActionHit
	}
}
