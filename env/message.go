package env

import (
	"fmt"
	"strings"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
)

const rulesDetails = "Rules details: Double only on two cards; Split only on identical pairs; one split max; " +
	"Double after split only if DAS; No surrender; Blackjack pays 3:2."

// StateMessage renders the acting player's view of the table: rules line,
// active hand with total and soft marker, dealer upcard, allowed actions.
func StateMessage(cards []card.Rank, up card.Rank, rules blackjack.Rules, allowed []blackjack.ActionType) string {
	ev := blackjack.Hand(cards).Eval()
	softStr := ""
	if ev.Soft && ev.Total <= 21 {
		softStr = " (soft)"
	}
	dealerWord := "stands"
	if !rules.S17 {
		dealerWord = "hits"
	}
	dasWord := "allowed"
	if !rules.DAS {
		dasWord = "not allowed"
	}
	return fmt.Sprintf(
		"Blackjack — dealer %s on soft 17; DAS %s; shoe: %d deck(s).\n"+
			"Your active hand: %s (total: %d%s). Dealer upcard: %s.\n"+
			"Allowed actions: %s. Respond with one of these inside <answer>...</answer>.\n%s",
		dealerWord, dasWord, rules.Decks,
		strings.Join(card.RankStrings(cards), ", "), ev.Total, softStr, up,
		strings.Join(blackjack.ActionNames(allowed), ", "), rulesDetails)
}

// CorrectiveMessage asks for a retry after an unusable reply.
func CorrectiveMessage(allowed []blackjack.ActionType) string {
	names := blackjack.ActionNames(allowed)
	examples := make([]string, len(names))
	for i, n := range names {
		examples[i] = "<answer>" + n + "</answer>"
	}
	return fmt.Sprintf("Invalid action. Allowed: %s.\nReply exactly with one of: %s",
		strings.Join(names, ", "), strings.Join(examples, " | "))
}

// TerminalMessage reports the settlement, prefixed by how the final hand
// ended.
func TerminalMessage(action blackjack.ActionType, dealer []card.Rank, payoff float64) string {
	var lead string
	switch action {
	case blackjack.ActionTypeHit:
		lead = "Bust."
	case blackjack.ActionTypeDouble:
		lead = "Double: drew one card and stood."
	default:
		lead = "Standing."
	}
	return fmt.Sprintf("%s Dealer: %s. Result: %+.1f bets. Hand over.",
		lead, strings.Join(card.RankStrings(dealer), ", "), payoff)
}
