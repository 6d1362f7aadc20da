package codec

import (
	"encoding/json"
	"testing"

	"blackjack-lite/blackjack"
	"blackjack-lite/replay"
)

func TestWrapRoundTrip(t *testing.T) {
	env := Wrap("sess_ab12_e3", 7, &replay.ScoreEvent{
		DeltaEVSum:   -0.42,
		StrictFormat: 1,
		Reward:       -0.32,
		Settled:      true,
		Turns:        2,
	})
	if env.ServerTsMs == 0 {
		t.Fatalf("Wrap must stamp server_ts_ms")
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded ServerEnvelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.EpisodeID != "sess_ab12_e3" || decoded.ServerSeq != 7 {
		t.Fatalf("lost envelope fields: %+v", decoded)
	}
	if PayloadType(&decoded) != "score" {
		t.Fatalf("expected score payload, got %s", PayloadType(&decoded))
	}
	if decoded.Score.DeltaEVSum != -0.42 || !decoded.Score.Settled {
		t.Fatalf("lost score fields: %+v", decoded.Score)
	}
}

func TestPayloadTypeNames(t *testing.T) {
	cases := []struct {
		payload any
		want    string
	}{
		{&HelloPayload{}, "hello"},
		{&ErrorPayload{}, "error"},
		{&replay.EpisodeStartEvent{}, "episodeStart"},
		{&replay.StatePromptEvent{}, "statePrompt"},
		{&replay.ActionResultEvent{}, "actionResult"},
		{&replay.CorrectiveEvent{}, "corrective"},
		{&replay.SettlementEvent{}, "settlement"},
		{&replay.ScoreEvent{}, "score"},
		{&SuiteProgressPayload{}, "suiteProgress"},
		{nil, "unknown"},
	}
	for _, tc := range cases {
		env := Wrap("", 1, tc.payload)
		if got := PayloadType(env); got != tc.want {
			t.Fatalf("payload %T: expected %s, got %s", tc.payload, tc.want, got)
		}
	}
	if PayloadType(nil) != "unknown" {
		t.Fatalf("nil envelope must be unknown")
	}
}

func TestClientEnvelopeType(t *testing.T) {
	cases := []struct {
		env  *ClientEnvelope
		want string
	}{
		{&ClientEnvelope{Auth: &AuthRequest{SessionToken: "tok"}}, "auth"},
		{&ClientEnvelope{EpisodeStart: &EpisodeStartRequest{Seed: 1}}, "episodeStart"},
		{&ClientEnvelope{Turn: &TurnRequest{Reply: "<answer>HIT</answer>"}}, "turn"},
		{&ClientEnvelope{Abort: &AbortRequest{}}, "abort"},
		{&ClientEnvelope{}, "unknown"},
		{nil, "unknown"},
	}
	for _, tc := range cases {
		if got := tc.env.Type(); got != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, got)
		}
	}
}

func TestRulesFromSpec(t *testing.T) {
	rules, err := RulesFromSpec(nil)
	if err != nil {
		t.Fatalf("nil spec: %v", err)
	}
	if rules != blackjack.DefaultRules() {
		t.Fatalf("nil spec must resolve to defaults, got %+v", rules)
	}

	f := false
	rules, err = RulesFromSpec(&replay.RulesSpec{Decks: 2, S17: &f, Double11VsAce: true})
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if rules.Decks != 2 || rules.S17 || !rules.DAS || !rules.Double11VsAce {
		t.Fatalf("unexpected rules %+v", rules)
	}

	if _, err := RulesFromSpec(&replay.RulesSpec{Decks: 9}); err == nil {
		t.Fatalf("expected error for 9 decks")
	}
	if _, err := RulesFromSpec(&replay.RulesSpec{Decks: -1}); err == nil {
		t.Fatalf("expected error for negative decks")
	}
}
