package env

import (
	"errors"
	"strings"
	"testing"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
)

func tenShoe() map[string]int {
	return map[string]int{"10": 40}
}

func oneDeckRules() blackjack.Rules {
	return blackjack.Rules{Decks: 1, S17: true, DAS: true}
}

func forcedExample(player [2]card.Rank, up, hole card.Rank, shoe map[string]int, rules blackjack.Rules) Example {
	return Example{
		Seed:        1,
		Rules:       rules,
		Shoe:        shoe,
		PlayerCards: []card.Rank{player[0], player[1]},
		DealerUp:    up,
		DealerHole:  hole,
	}
}

func newTestEpisode(t *testing.T, ex Example, opts Options) *Episode {
	t.Helper()
	if opts.EVSamples == 0 {
		opts.EVSamples = 8
	}
	e, err := NewEpisode(ex, opts)
	if err != nil {
		t.Fatalf("NewEpisode: %v", err)
	}
	return e
}

func TestEpisodeStandOnNatural(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankAce, card.RankTen},
		card.Rank9, card.Rank9, tenShoe(), oneDeckRules()),
		Options{UseThink: true})

	res, err := e.Submit("<think>21 already.</think><answer>STAND</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Done || res.Invalid || res.Salvaged {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Message != "Standing. Dealer: 9, 9. Result: +1.5 bets. Hand over." {
		t.Fatalf("message %q", res.Message)
	}
	if !e.Settled() || e.RealizedReturn() != 1.5 {
		t.Fatalf("settled=%v realized=%v", e.Settled(), e.RealizedReturn())
	}

	s := e.Score()
	if s.DeltaEVSum != 0 {
		t.Fatalf("DeltaEVSum=%v want exactly 0 for the chart action", s.DeltaEVSum)
	}
	if s.FirstActionEV != 1.5 {
		t.Fatalf("FirstActionEV=%v want exactly 1.5", s.FirstActionEV)
	}
	if s.StrictFormat != 1.0 {
		t.Fatalf("StrictFormat=%v want 1.0", s.StrictFormat)
	}
	if s.RealizedReturn != 1.5 {
		t.Fatalf("RealizedReturn=%v want 1.5", s.RealizedReturn)
	}

	if _, err := e.Submit("<answer>HIT</answer>"); !errors.Is(err, ErrEpisodeComplete) {
		t.Fatalf("submit after completion: err=%v want ErrEpisodeComplete", err)
	}
}

func TestEpisodeHitBustMessage(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankTen, card.Rank6},
		card.RankTen, card.RankTen, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("<answer>HIT</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Message != "Bust. Dealer: 10, 10. Result: -1.0 bets. Hand over." {
		t.Fatalf("message %q", res.Message)
	}
	if !res.Done || e.RealizedReturn() != -1 {
		t.Fatalf("done=%v realized=%v", res.Done, e.RealizedReturn())
	}
}

func TestEpisodeDoubleMessage(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.Rank5, card.Rank6},
		card.Rank9, card.Rank7, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("<answer>DOUBLE</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Message != "Double: drew one card and stood. Dealer: 9, 7, 10. Result: +2.0 bets. Hand over." {
		t.Fatalf("message %q", res.Message)
	}
}

func TestEpisodeCorrectiveReply(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankTen, card.Rank6},
		card.RankTen, card.RankTen, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("I fold")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Invalid || res.Done {
		t.Fatalf("unexpected result %+v", res)
	}
	want := "Invalid action. Allowed: HIT, STAND, DOUBLE.\n" +
		"Reply exactly with one of: <answer>HIT</answer> | <answer>STAND</answer> | <answer>DOUBLE</answer>"
	if res.Message != want {
		t.Fatalf("message %q want %q", res.Message, want)
	}
	if snap := e.Snapshot(); len(snap.Hands[0].Cards) != 2 {
		t.Fatal("an invalid reply must not mutate the hand")
	}

	// The episode continues normally afterwards.
	res, err = e.Submit("<answer>STAND</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Done {
		t.Fatal("expected settlement")
	}
}

func TestEpisodeSalvageMistypedTag(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankTen, card.Rank9},
		card.RankTen, card.Rank9, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("<answer-STAND</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Salvaged || res.Invalid || !res.Done {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Action != blackjack.ActionTypeStand {
		t.Fatalf("action %s want STAND", res.Action)
	}
	if _, ok := e.FirstAction(); ok {
		t.Fatal("salvage must not backfill the first parsed action")
	}

	s := e.Score()
	if s.StrictFormat != 0 {
		t.Fatalf("StrictFormat=%v want 0 after salvage", s.StrictFormat)
	}
	if s.FirstActionEV != -1 {
		t.Fatalf("FirstActionEV=%v want -1 when nothing was ever parsed", s.FirstActionEV)
	}
}

func TestEpisodeSalvageLoneToken(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankTen, card.Rank9},
		card.RankTen, card.Rank9, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("Definitely STAND here.")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Salvaged || res.Action != blackjack.ActionTypeStand {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEpisodeAmbiguousTokensRejected(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankTen, card.Rank9},
		card.RankTen, card.Rank9, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("HIT or STAND, hard to say")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Invalid {
		t.Fatalf("ambiguous tokens should draw a corrective reply, got %+v", res)
	}
}

func TestEpisodeRecordsIllegalFirstAction(t *testing.T) {
	// A parsed but illegal SPLIT is still the recorded first action, and the
	// opening EV metric prices it as the invalid-action penalty.
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankTen, card.Rank6},
		card.RankTen, card.RankTen, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("<answer>SPLIT</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Invalid {
		t.Fatalf("expected corrective reply, got %+v", res)
	}
	if a, ok := e.FirstAction(); !ok || a != blackjack.ActionTypeSplit {
		t.Fatalf("first action %v/%v want SPLIT", a, ok)
	}
	if s := e.Score(); s.FirstActionEV != -1 {
		t.Fatalf("FirstActionEV=%v want -1 for an impossible split", s.FirstActionEV)
	}
}

func TestEpisodeTurnBudget(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.RankTen, card.Rank6},
		card.RankTen, card.RankTen, tenShoe(), oneDeckRules()),
		Options{MaxTurns: 3})

	for i := 0; i < 2; i++ {
		res, err := e.Submit("???")
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if res.Done {
			t.Fatalf("budget ended early at %d", i)
		}
	}
	res, err := e.Submit("???")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Done {
		t.Fatal("third reply must exhaust the budget")
	}
	if e.Settled() {
		t.Fatal("a budget abort is not a settlement")
	}
	if e.RealizedReturn() != 0 {
		t.Fatalf("realized=%v want 0", e.RealizedReturn())
	}
	if snap := e.Snapshot(); snap.Phase != blackjack.PhaseTypeAborted {
		t.Fatalf("phase=%v want aborted", snap.Phase)
	}
	if _, err := e.Submit("<answer>HIT</answer>"); !errors.Is(err, ErrEpisodeComplete) {
		t.Fatalf("err=%v want ErrEpisodeComplete", err)
	}
}

func TestEpisodeSplitPlaythrough(t *testing.T) {
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.Rank8, card.Rank8},
		card.RankTen, card.Rank7, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("<answer>SPLIT</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Done {
		t.Fatal("split must not settle")
	}
	if !strings.Contains(res.Message, "Your active hand: 8, 10 (total: 18).") {
		t.Fatalf("message %q should show the left split hand", res.Message)
	}
	if !strings.Contains(res.Message, "Allowed actions: HIT, STAND, DOUBLE.") {
		t.Fatalf("message %q should offer double after split under DAS", res.Message)
	}

	if res, err = e.Submit("<answer>STAND</answer>"); err != nil || res.Done {
		t.Fatalf("stand left hand: %+v err=%v", res, err)
	}
	res, err = e.Submit("<answer>STAND</answer>")
	if err != nil {
		t.Fatalf("stand right hand: %v", err)
	}
	if res.Message != "Standing. Dealer: 10, 7. Result: +2.0 bets. Hand over." {
		t.Fatalf("message %q", res.Message)
	}
	if s := e.Score(); s.DeltaEVSum != 0 {
		t.Fatalf("DeltaEVSum=%v want exactly 0 along the chart line", s.DeltaEVSum)
	}
}

func TestEpisodeShapingPunishesOffChartPlay(t *testing.T) {
	// Forced tens make both estimates exact: hitting 11 earns +1 per trial
	// while the chart double earns +2, so one off-chart turn sums to -1.
	e := newTestEpisode(t, forcedExample(
		[2]card.Rank{card.Rank5, card.Rank6},
		card.Rank9, card.Rank7, tenShoe(), oneDeckRules()),
		Options{})

	res, err := e.Submit("<answer>HIT</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Done {
		t.Fatal("drawing to 21 must not settle")
	}
	if res.Shaping == nil || res.Shaping.Baseline != blackjack.ActionTypeDouble {
		t.Fatalf("shaping %+v want baseline DOUBLE", res.Shaping)
	}
	if res.Shaping.Q != 1.0 || res.Shaping.V != 2.0 {
		t.Fatalf("Q=%v V=%v want exactly 1 and 2", res.Shaping.Q, res.Shaping.V)
	}

	res, err = e.Submit("<answer>STAND</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Message != "Standing. Dealer: 9, 7, 10. Result: +1.0 bets. Hand over." {
		t.Fatalf("message %q", res.Message)
	}

	s := e.Score()
	if s.DeltaEVSum != -1.0 {
		t.Fatalf("DeltaEVSum=%v want exactly -1", s.DeltaEVSum)
	}
	if s.FirstActionEV != 1.0 {
		t.Fatalf("FirstActionEV=%v want exactly 1 for the opening hit", s.FirstActionEV)
	}
	if s.StrictFormat != 1.0 {
		t.Fatalf("StrictFormat=%v want 1", s.StrictFormat)
	}
}

func TestEpisodeGeneratesQuestion(t *testing.T) {
	e := newTestEpisode(t, Example{Seed: 42, Rules: blackjack.DefaultRules()}, Options{})
	q := e.Question()
	if !strings.HasPrefix(q, "Blackjack — dealer stands on soft 17; DAS allowed; shoe: 6 deck(s).") {
		t.Fatalf("question %q", q)
	}
	if !strings.Contains(q, "Allowed actions: HIT, STAND, DOUBLE") {
		t.Fatalf("question %q lacks the action menu", q)
	}
}
