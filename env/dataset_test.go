package env

import (
	"reflect"
	"strings"
	"testing"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
)

func TestGenerateDeterministic(t *testing.T) {
	opts := GenerateOptions{Total: 20, Seed: 7, RandomizeRules: true}
	a, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed must reproduce the dataset")
	}
	if len(a) != 20 {
		t.Fatalf("len=%d want 20", len(a))
	}
}

func TestGenerateExamplesReconcile(t *testing.T) {
	exs, err := Generate(GenerateOptions{Total: 30, Seed: 11, RandomizeRules: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, ex := range exs {
		shoe, err := card.ShoeFromCounts(ex.Shoe)
		if err != nil {
			t.Fatalf("example %d shoe: %v", i, err)
		}
		// Post-deal shoe plus the four dealt cards restores the full decks.
		if got, want := shoe.Count()+4, 52*ex.Rules.Decks; got != want {
			t.Fatalf("example %d: %d cards accounted for, want %d", i, got, want)
		}
		if len(ex.PlayerCards) != 2 {
			t.Fatalf("example %d: player cards %v", i, ex.PlayerCards)
		}
		if ex.DealerUp == card.RankInvalid || ex.DealerHole == card.RankInvalid {
			t.Fatalf("example %d: missing dealer cards", i)
		}
		if ex.Seed < 0 || ex.Seed >= 1<<30 {
			t.Fatalf("example %d: seed %d out of range", i, ex.Seed)
		}
		found := false
		for _, d := range []int{1, 2, 4, 6, 8} {
			if ex.Rules.Decks == d {
				found = true
			}
		}
		if !found {
			t.Fatalf("example %d: decks %d not a shoe size option", i, ex.Rules.Decks)
		}
	}
}

func TestGenerateQuestionMatchesDeal(t *testing.T) {
	exs, err := Generate(GenerateOptions{Total: 25, Seed: 3, RandomizeRules: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, ex := range exs {
		allowed := []blackjack.ActionType{blackjack.ActionTypeHit, blackjack.ActionTypeStand, blackjack.ActionTypeDouble}
		if ex.PlayerCards[0] == ex.PlayerCards[1] {
			allowed = append(allowed, blackjack.ActionTypeSplit)
		}
		want := StateMessage(ex.PlayerCards, ex.DealerUp, ex.Rules, allowed)
		if ex.Question != want {
			t.Fatalf("example %d question:\n%q\nwant:\n%q", i, ex.Question, want)
		}
		if strings.Contains(ex.Question, "SPLIT") != (ex.PlayerCards[0] == ex.PlayerCards[1]) {
			t.Fatalf("example %d: split offer does not match the deal", i)
		}
	}
}

func TestGenerateFixedRules(t *testing.T) {
	rules := blackjack.Rules{Decks: 2, S17: false, DAS: false}
	exs, err := Generate(GenerateOptions{Total: 10, Seed: 5, Rules: rules})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, ex := range exs {
		if ex.Rules != rules {
			t.Fatalf("example %d rules %+v want %+v", i, ex.Rules, rules)
		}
		if !strings.Contains(ex.Question, "dealer hits on soft 17; DAS not allowed; shoe: 2 deck(s)") {
			t.Fatalf("example %d question %q does not reflect the rules", i, ex.Question)
		}
	}
}

func TestGeneratedExampleRunsAsEpisode(t *testing.T) {
	exs, err := Generate(GenerateOptions{Total: 1, Seed: 9})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	e, err := NewEpisode(exs[0], Options{EVSamples: 8})
	if err != nil {
		t.Fatalf("NewEpisode: %v", err)
	}
	if e.Question() != exs[0].Question {
		t.Fatal("episode must keep the dataset question verbatim")
	}
	res, err := e.Submit("<answer>STAND</answer>")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Done || !strings.Contains(res.Message, "Hand over.") {
		t.Fatalf("unexpected result %+v", res)
	}
}
