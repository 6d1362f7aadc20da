package replay

import (
	"encoding/base64"
	"encoding/json"
	"reflect"
	"testing"
)

func TestGenerateReplayTape_IsDeterministic(t *testing.T) {
	spec := baseEpisodeSpec()

	tapeA, err := GenerateReplayTape(spec)
	if err != nil {
		t.Fatalf("GenerateReplayTape A failed: %v", err)
	}
	tapeB, err := GenerateReplayTape(spec)
	if err != nil {
		t.Fatalf("GenerateReplayTape B failed: %v", err)
	}

	if !reflect.DeepEqual(tapeA, tapeB) {
		t.Fatalf("expected deterministic replay tape for the same EpisodeSpec")
	}

	want := []string{
		"episodeStart", "statePrompt",
		"actionResult", "statePrompt", // split
		"actionResult", "statePrompt", // stand left
		"actionResult", "settlement", "score", // stand right
	}
	got := eventTypes(tapeA)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("event sequence %v want %v", got, want)
	}
}

func TestGenerateReplayTape_RawReplyCorrectiveIsAnEvent(t *testing.T) {
	spec := baseEpisodeSpec()
	spec.Deal = &DealSpec{Player: []string{"10", "9"}, DealerUp: "10", DealerHole: "7"}
	spec.Steps = []StepSpec{
		{Reply: "no idea what to do"},
		{Action: "STAND"},
	}

	tape, err := GenerateReplayTape(spec)
	if err != nil {
		t.Fatalf("GenerateReplayTape failed: %v", err)
	}
	want := []string{"episodeStart", "statePrompt", "corrective", "actionResult", "settlement", "score"}
	if got := eventTypes(tape); !reflect.DeepEqual(got, want) {
		t.Fatalf("event sequence %v want %v", got, want)
	}
}

func TestGenerateReplayTape_ReturnsReplayErrorOnIllegalAction(t *testing.T) {
	spec := baseEpisodeSpec()
	spec.Deal = &DealSpec{Player: []string{"10", "9"}, DealerUp: "10", DealerHole: "7"}
	spec.Steps = []StepSpec{{Action: "SPLIT"}}

	_, err := GenerateReplayTape(spec)
	if err == nil {
		t.Fatalf("expected replay generation to fail on an illegal scripted action")
	}
	replayErr, ok := err.(*ReplayError)
	if !ok {
		t.Fatalf("expected ReplayError type, got %T", err)
	}
	if replayErr.Reason != "illegal_action" {
		t.Fatalf("unexpected reason: %s", replayErr.Reason)
	}
	if replayErr.Expected == nil || len(replayErr.Expected.AllowedActions) == 0 {
		t.Fatalf("expected replay error to include the legal action set")
	}
}

func TestGenerateReplayTape_SpecValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*EpisodeSpec)
		reason string
	}{
		{"decks out of range", func(s *EpisodeSpec) { s.Rules = &RulesSpec{Decks: 9} }, "invalid_rules"},
		{"shoe without deal", func(s *EpisodeSpec) { s.Deal = nil }, "invalid_shoe"},
		{"bad player card", func(s *EpisodeSpec) { s.Deal.Player = []string{"8", "X"} }, "invalid_card"},
		{"one player card", func(s *EpisodeSpec) { s.Deal.Player = []string{"8"} }, "invalid_deal"},
		{"step with both fields", func(s *EpisodeSpec) {
			s.Steps = []StepSpec{{Action: "STAND", Reply: "STAND"}}
		}, "invalid_step"},
		{"unknown action", func(s *EpisodeSpec) { s.Steps = []StepSpec{{Action: "SURRENDER"}} }, "invalid_action"},
		{"negative samples", func(s *EpisodeSpec) { s.Env = &EnvSpec{EVSamples: -1} }, "invalid_env"},
	}
	for _, tc := range cases {
		spec := baseEpisodeSpec()
		tc.mutate(&spec)
		_, err := GenerateReplayTape(spec)
		replayErr, ok := err.(*ReplayError)
		if !ok {
			t.Fatalf("%s: expected ReplayError, got %v", tc.name, err)
		}
		if replayErr.Reason != tc.reason {
			t.Fatalf("%s: reason %s want %s", tc.name, replayErr.Reason, tc.reason)
		}
	}
}

func TestWireReplayTapeRoundTrip(t *testing.T) {
	tape, err := GenerateReplayTape(baseEpisodeSpec())
	if err != nil {
		t.Fatalf("GenerateReplayTape failed: %v", err)
	}
	wire := ToWireReplayTape(tape)
	if wire.TapeVersion != 1 || wire.EpisodeID != tape.EpisodeID {
		t.Fatalf("wire header %+v", wire)
	}
	if len(wire.Events) != len(tape.Events) {
		t.Fatalf("wire events %d want %d", len(wire.Events), len(tape.Events))
	}
	raw, err := base64.StdEncoding.DecodeString(wire.Events[0].EnvelopeB64)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var decoded TapeEnvelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if decoded.Seq != wire.Events[0].Seq || decoded.EpisodeStart == nil {
		t.Fatalf("decoded envelope %+v", decoded)
	}
}

func eventTypes(tape *ReplayTape) []string {
	out := make([]string, 0, len(tape.Events))
	for _, e := range tape.Events {
		out = append(out, e.Type)
	}
	return out
}

func baseEpisodeSpec() EpisodeSpec {
	return EpisodeSpec{
		Rules: &RulesSpec{Decks: 1},
		Deal:  &DealSpec{Player: []string{"8", "8"}, DealerUp: "10", DealerHole: "7"},
		Shoe:  map[string]int{"10": 40},
		Steps: []StepSpec{
			{Action: "SPLIT"},
			{Action: "STAND"},
			{Action: "STAND"},
		},
		RNG: &RNGSpec{Seed: 42},
		Env: &EnvSpec{EVSamples: 8},
	}
}
