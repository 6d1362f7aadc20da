package blackjack

import (
	"errors"
	"testing"

	"blackjack-lite/card"
)

func sixDeckShoe(t *testing.T) card.Shoe {
	t.Helper()
	return *card.NewShoe(6)
}

func TestEstimateStandOnBustedHand(t *testing.T) {
	// A busted hand loses every trial, whatever the dealer draws.
	shoe := stackedShoe(t, card.RankTen, 40)
	ev, err := EstimateActionEV(shoe,
		[]card.Rank{card.RankTen, card.RankTen, card.Rank5},
		card.Rank9, tenRules(), ActionTypeStand, 42, 50)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	if ev != -1 {
		t.Fatalf("ev=%v want exactly -1", ev)
	}
}

func TestEstimateStandOnNatural(t *testing.T) {
	// Dealer upcard 9 can never make a natural, so every trial pays 3:2.
	shoe := stackedShoe(t, card.RankTen, 40)
	ev, err := EstimateActionEV(shoe,
		[]card.Rank{card.RankAce, card.RankTen},
		card.Rank9, tenRules(), ActionTypeStand, 42, 50)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	if ev != 1.5 {
		t.Fatalf("ev=%v want exactly 1.5", ev)
	}
}

func TestEstimateHitOverTenShoe(t *testing.T) {
	// 16 + forced ten busts; the rollout still burns a hole card and plays
	// the dealer, then scores -1 on every trial.
	shoe := stackedShoe(t, card.RankTen, 40)
	ev, err := EstimateActionEV(shoe,
		[]card.Rank{card.RankTen, card.Rank6},
		card.RankTen, tenRules(), ActionTypeHit, 42, 50)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	if ev != -1 {
		t.Fatalf("ev=%v want exactly -1", ev)
	}
}

func TestEstimateDoubleOverTenShoe(t *testing.T) {
	// 11 doubles into 21 against a dealer 19: +2 on every trial.
	shoe := stackedShoe(t, card.RankTen, 40)
	ev, err := EstimateActionEV(shoe,
		[]card.Rank{card.Rank5, card.Rank6},
		card.Rank9, tenRules(), ActionTypeDouble, 42, 50)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	if ev != 2 {
		t.Fatalf("ev=%v want exactly 2", ev)
	}
}

func TestEstimateSplitOverTenShoe(t *testing.T) {
	// Split eights each catch a ten and beat the dealer 17: +2 per trial.
	shoe := stackedShoe(t, card.RankTen, 40)
	ev, err := EstimateActionEV(shoe,
		[]card.Rank{card.Rank8, card.Rank8},
		card.Rank7, tenRules(), ActionTypeSplit, 42, 50)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	if ev != 2 {
		t.Fatalf("ev=%v want exactly 2", ev)
	}
}

func TestEstimateSplitRequiresPair(t *testing.T) {
	shoe := sixDeckShoe(t)
	for _, cards := range [][]card.Rank{
		{card.RankTen, card.Rank9},
		{card.Rank8, card.Rank8, card.Rank2},
	} {
		ev, err := EstimateActionEV(shoe, cards, card.Rank6, DefaultRules(), ActionTypeSplit, 42, 20)
		if err != nil {
			t.Fatalf("EstimateActionEV: %v", err)
		}
		if ev != invalidActionPenalty {
			t.Fatalf("cards %v: ev=%v want %v", cards, ev, invalidActionPenalty)
		}
	}
}

func TestEstimateUnknownActionPenalty(t *testing.T) {
	shoe := sixDeckShoe(t)
	ev, err := EstimateActionEV(shoe,
		[]card.Rank{card.RankTen, card.Rank9},
		card.Rank6, DefaultRules(), ActionTypeNone, 42, 20)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	if ev != invalidActionPenalty {
		t.Fatalf("ev=%v want %v", ev, invalidActionPenalty)
	}
}

func TestEstimateSameSeedReproduces(t *testing.T) {
	shoe := sixDeckShoe(t)
	cards := []card.Rank{card.RankTen, card.Rank6}
	a, err := EstimateActionEV(shoe, cards, card.RankTen, DefaultRules(), ActionTypeHit, 12345, 100)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	b, err := EstimateActionEV(shoe, cards, card.RankTen, DefaultRules(), ActionTypeHit, 12345, 100)
	if err != nil {
		t.Fatalf("EstimateActionEV: %v", err)
	}
	if a != b {
		t.Fatalf("same seed diverged: %v vs %v", a, b)
	}
}

func TestSameSeedGapIsConstant(t *testing.T) {
	// The HIT-STAND gap estimated on one seed never varies across calls.
	shoe := sixDeckShoe(t)
	cards := []card.Rank{card.RankTen, card.Rank6}
	gap := func() float64 {
		t.Helper()
		q, err := EstimateActionEV(shoe, cards, card.RankTen, DefaultRules(), ActionTypeHit, DefaultCRNSeed, 100)
		if err != nil {
			t.Fatalf("EstimateActionEV(HIT): %v", err)
		}
		v, err := EstimateActionEV(shoe, cards, card.RankTen, DefaultRules(), ActionTypeStand, DefaultCRNSeed, 100)
		if err != nil {
			t.Fatalf("EstimateActionEV(STAND): %v", err)
		}
		return q - v
	}
	first := gap()
	for i := 0; i < 3; i++ {
		if g := gap(); g != first {
			t.Fatalf("gap diverged: %v vs %v", g, first)
		}
	}
}

func TestEstimateEmptyShoeErrors(t *testing.T) {
	shoe, err := card.ShoeFromCounts(map[string]int{})
	if err != nil {
		t.Fatalf("ShoeFromCounts: %v", err)
	}
	_, err = EstimateActionEV(*shoe,
		[]card.Rank{card.RankTen, card.Rank6},
		card.RankTen, DefaultRules(), ActionTypeHit, 42, 10)
	if !errors.Is(err, card.ErrEmptyShoe) {
		t.Fatalf("err=%v want ErrEmptyShoe", err)
	}
}
