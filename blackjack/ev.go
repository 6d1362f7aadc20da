package blackjack

import (
	"math/rand"

	"blackjack-lite/blackjack/oracle"
	"blackjack-lite/card"
)

const (
	// DefaultEVSamples 每个动作默认蒙特卡洛样本数
	DefaultEVSamples = 200
	// DefaultCRNSeed Q/V 共用随机数流的默认种子
	DefaultCRNSeed = 12345

	invalidActionPenalty = -1.0
)

// EstimateActionEV Monte Carlo EV of taking action now; the continuation is
// played under the charts. All trials share one rng stream seeded with seed,
// so two estimates from the same seed see identical card sequences.
func EstimateActionEV(shoe card.Shoe, cards []card.Rank, up card.Rank, rules Rules, action ActionType, seed int64, samples int) (float64, error) {
	if samples <= 0 {
		samples = DefaultEVSamples
	}
	rng := rand.New(rand.NewSource(seed))
	ev := 0.0
	for n := 0; n < samples; n++ {
		v, err := evTrial(shoe, cards, up, rules, action, rng)
		if err != nil {
			return 0, err
		}
		ev += v
	}
	return ev / float64(samples), nil
}

// evTrial runs one sampled continuation on a private copy of the shoe.
func evTrial(shoe card.Shoe, cards []card.Rank, up card.Rank, rules Rules, action ActionType, rng *rand.Rand) (float64, error) {
	local := shoe
	hand := append(Hand{}, cards...)
	switch action {
	case ActionTypeHit:
		r, err := local.Draw(rng)
		if err != nil {
			return 0, err
		}
		hand = append(hand, r)
		return playHandPolicy(&local, hand, up, rules, rng, false, false)

	case ActionTypeStand:
		hole, err := local.Draw(rng)
		if err != nil {
			return 0, err
		}
		dealer, err := dealerPlay(&local, up, hole, rules.S17, rng)
		if err != nil {
			return 0, err
		}
		hev, dev := hand.Eval(), dealer.Eval()
		return comparePayout(hev.Total, dev.Total, hev.Natural, dev.Natural), nil

	case ActionTypeDouble:
		// Computed even off two cards; the env rejects those before play.
		r, err := local.Draw(rng)
		if err != nil {
			return 0, err
		}
		hand = append(hand, r)
		hole, err := local.Draw(rng)
		if err != nil {
			return 0, err
		}
		dealer, err := dealerPlay(&local, up, hole, rules.S17, rng)
		if err != nil {
			return 0, err
		}
		hev, dev := hand.Eval(), dealer.Eval()
		return 2 * comparePayout(hev.Total, dev.Total, false, dev.Natural), nil

	case ActionTypeSplit:
		if !hand.IsPair() {
			return invalidActionPenalty, nil
		}
		l, err := local.Draw(rng)
		if err != nil {
			return 0, err
		}
		r, err := local.Draw(rng)
		if err != nil {
			return 0, err
		}
		left := Hand{hand[0], l}
		right := Hand{hand[1], r}
		// Both branches fork the same post-draw shoe but share the rng stream.
		leftShoe := local
		evLeft, err := playHandPolicy(&leftShoe, left, up, rules, rng, rules.DAS, false)
		if err != nil {
			return 0, err
		}
		rightShoe := local
		evRight, err := playHandPolicy(&rightShoe, right, up, rules, rng, rules.DAS, false)
		if err != nil {
			return 0, err
		}
		return evLeft + evRight, nil

	default:
		return invalidActionPenalty, nil
	}
}

// playHandPolicy finishes one hand under the charts and settles it against a
// freshly drawn dealer hand, returning net profit in bet units. The dealer
// is played out even when the hand busts so the rng stream stays aligned
// across actions estimated from the same seed.
func playHandPolicy(shoe *card.Shoe, hand Hand, up card.Rank, rules Rules, rng *rand.Rand, allowDouble, allowSplit bool) (float64, error) {
	opts := oracle.Options{DAS: rules.DAS, Double11VsAce: rules.Double11VsAce}
	canDouble := allowDouble
	for {
		if hand.Eval().Total >= 21 {
			break
		}
		act := oracle.Recommend(hand, up, opts)
		if act == oracle.ActionSplit && allowSplit && hand.IsPair() {
			l, err := shoe.Draw(rng)
			if err != nil {
				return 0, err
			}
			r, err := shoe.Draw(rng)
			if err != nil {
				return 0, err
			}
			left := Hand{hand[0], l}
			right := Hand{hand[1], r}
			leftShoe := *shoe
			evLeft, err := playHandPolicy(&leftShoe, left, up, rules, rng, rules.DAS, false)
			if err != nil {
				return 0, err
			}
			rightShoe := *shoe
			evRight, err := playHandPolicy(&rightShoe, right, up, rules, rng, rules.DAS, false)
			if err != nil {
				return 0, err
			}
			return evLeft + evRight, nil
		}
		if act == oracle.ActionDouble && canDouble {
			d, err := shoe.Draw(rng)
			if err != nil {
				return 0, err
			}
			hand = append(hand, d)
			hole, err := shoe.Draw(rng)
			if err != nil {
				return 0, err
			}
			dealer, err := dealerPlay(shoe, up, hole, rules.S17, rng)
			if err != nil {
				return 0, err
			}
			hev, dev := hand.Eval(), dealer.Eval()
			return 2 * comparePayout(hev.Total, dev.Total, false, dev.Natural), nil
		}
		if act == oracle.ActionHit {
			d, err := shoe.Draw(rng)
			if err != nil {
				return 0, err
			}
			hand = append(hand, d)
			canDouble = false
			continue
		}
		// STAND, or an action the rollout cannot take here
		break
	}
	hole, err := shoe.Draw(rng)
	if err != nil {
		return 0, err
	}
	dealer, err := dealerPlay(shoe, up, hole, rules.S17, rng)
	if err != nil {
		return 0, err
	}
	hev, dev := hand.Eval(), dealer.Eval()
	return comparePayout(hev.Total, dev.Total, hev.Natural, dev.Natural), nil
}
