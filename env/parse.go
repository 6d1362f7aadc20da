package env

import (
	"regexp"
	"strings"

	"blackjack-lite/blackjack"
)

// Parser extracts the action answer from a model reply. The primary path
// reads the first well formed <answer> tag; InferActionFromText covers the
// common formatting mistakes.
type Parser struct {
	useThink bool
}

func NewParser(useThink bool) *Parser {
	return &Parser{useThink: useThink}
}

var (
	answerRe = regexp.MustCompile(`(?s)<answer>\s*(.*?)\s*</answer>`)
	thinkRe  = regexp.MustCompile(`(?s)<think>\s*(.*?)\s*</think>`)

	strictAnswerRe = regexp.MustCompile(`<ANSWER\s*>\s*(HIT|STAND|DOUBLE|SPLIT)\s*</ANSWER>`)
	sloppyAnswerRe = regexp.MustCompile(`<ANSWER[-:\s]*\s*(HIT|STAND|DOUBLE|SPLIT)\s*</ANSWER>`)

	tokenRes = map[blackjack.ActionType]*regexp.Regexp{
		blackjack.ActionTypeHit:    regexp.MustCompile(`\bHIT\b`),
		blackjack.ActionTypeStand:  regexp.MustCompile(`\bSTAND\b`),
		blackjack.ActionTypeDouble: regexp.MustCompile(`\bDOUBLE\b`),
		blackjack.ActionTypeSplit:  regexp.MustCompile(`\bSPLIT\b`),
	}
)

// ParseAnswer returns the trimmed, uppercased content of the first <answer>
// tag, or "" when the reply carries none.
func (p *Parser) ParseAnswer(text string) string {
	m := answerRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(m[1]))
}

// FormatScore grades how much of the expected tag structure a reply carries:
// one point per expected field, averaged.
func (p *Parser) FormatScore(text string) float64 {
	fields := 1.0
	score := 0.0
	if p.useThink {
		fields = 2.0
		if thinkRe.MatchString(text) {
			score++
		}
	}
	if answerRe.MatchString(text) {
		score++
	}
	return score / fields
}

// InferActionFromText is the best effort fallback extractor. It tries, in
// order: a proper tag, a mistyped tag like <answer-STAND</answer>, and
// finally a lone allowed token anywhere in the text. Every route only
// returns an action from the allowed list.
func InferActionFromText(text string, allowed []blackjack.ActionType) (blackjack.ActionType, bool) {
	t := strings.ToUpper(text)
	for _, re := range []*regexp.Regexp{strictAnswerRe, sloppyAnswerRe} {
		if m := re.FindStringSubmatch(t); m != nil {
			if a, ok := blackjack.ParseActionType(m[1]); ok && containsAction(allowed, a) {
				return a, true
			}
		}
	}
	var hits []blackjack.ActionType
	for _, a := range blackjack.PlayableActions {
		if tokenRes[a].MatchString(t) && containsAction(allowed, a) {
			hits = append(hits, a)
		}
	}
	if len(hits) == 1 {
		return hits[0], true
	}
	return blackjack.ActionTypeNone, false
}

func containsAction(list []blackjack.ActionType, a blackjack.ActionType) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
