package blackjack

import (
	"math/rand"

	"blackjack-lite/card"
)

// dealerPlay runs the dealer automaton from the two dealt cards: draw below
// 17, stand above 17 or busted, and at exactly 17 stand on hard 17 always
// and on soft 17 only when s17 is in force.
func dealerPlay(shoe *card.Shoe, up, hole card.Rank, s17 bool, rng *rand.Rand) (Hand, error) {
	cards := Hand{up, hole}
	for {
		ev := cards.Eval()
		if ev.Total > 17 {
			return cards, nil
		}
		if ev.Total == 17 {
			if !ev.Soft || s17 {
				return cards, nil
			}
			// soft 17 under H17 falls through to draw
		}
		r, err := shoe.Draw(rng)
		if err != nil {
			return cards, err
		}
		cards = append(cards, r)
	}
}
