// Package suite defines graded evaluation ladders: ordered stages of
// episodes with fixed rules and seeds, cleared by holding the mean
// delta-EV per episode above a target. Stage N+1 unlocks once stage N is
// cleared; stage 0 is always open.
package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"blackjack-lite/blackjack"
)

// Stage is one rung of a suite ladder.
type Stage struct {
	Index    int
	Name     string
	Episodes int // settled episodes required before the stage can clear
	Rules    blackjack.Rules

	// SeedBase anchors the deal sequence: episode k of this stage is dealt
	// with seed SeedBase+k, so every runner faces the same deals.
	SeedBase int64

	// TargetMeanDeltaEV is the clearing bar. Delta-EV is 0 for the oracle
	// action and negative otherwise, so targets are <= 0.
	TargetMeanDeltaEV float64
}

type Suite struct {
	ID     string
	Name   string
	Stages []Stage
}

func (s *Suite) Stage(index int) (*Stage, bool) {
	if s == nil || index < 0 || index >= len(s.Stages) {
		return nil, false
	}
	return &s.Stages[index], true
}

// Registry holds the known suites in declaration order.
type Registry struct {
	suites map[string]*Suite
	order  []string
}

func (r *Registry) Get(id string) (*Suite, bool) {
	s, ok := r.suites[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

func (r *Registry) List() []*Suite {
	out := make([]*Suite, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.suites[id])
	}
	return out
}

func (r *Registry) add(s *Suite) {
	id := strings.ToLower(strings.TrimSpace(s.ID))
	if _, exists := r.suites[id]; !exists {
		r.order = append(r.order, id)
	}
	r.suites[id] = s
}

// BuiltinRegistry returns the suites shipped with the server.
func BuiltinRegistry() *Registry {
	r := &Registry{suites: make(map[string]*Suite)}
	for _, s := range builtinSuites() {
		r.add(s)
	}
	return r
}

// LoadRegistry returns the builtin suites, extended or overridden by the
// JSON file named in SUITE_CONFIG_PATH when set.
func LoadRegistry() (*Registry, error) {
	r := BuiltinRegistry()
	path := strings.TrimSpace(os.Getenv("SUITE_CONFIG_PATH"))
	if path == "" {
		return r, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite config: %w", err)
	}
	extras, err := parseSuiteFile(raw)
	if err != nil {
		return nil, fmt.Errorf("parse suite config %s: %w", path, err)
	}
	for _, s := range extras {
		r.add(s)
	}
	return r, nil
}

func builtinSuites() []*Suite {
	standard := blackjack.DefaultRules()
	hitSoft17 := standard
	hitSoft17.S17 = false
	hitSoft17.Double11VsAce = true
	singleDeck := standard
	singleDeck.Decks = 1

	return []*Suite{
		{
			ID:   "basic",
			Name: "Basic Strategy Ladder",
			Stages: []Stage{
				{Index: 0, Name: "warmup", Episodes: 8, Rules: standard, SeedBase: 1000, TargetMeanDeltaEV: -0.25},
				{Index: 1, Name: "standard-shoe", Episodes: 16, Rules: standard, SeedBase: 2000, TargetMeanDeltaEV: -0.12},
				{Index: 2, Name: "hit-soft-17", Episodes: 16, Rules: hitSoft17, SeedBase: 3000, TargetMeanDeltaEV: -0.12},
				{Index: 3, Name: "single-deck", Episodes: 24, Rules: singleDeck, SeedBase: 4000, TargetMeanDeltaEV: -0.08},
			},
		},
	}
}

type stageSpec struct {
	Name              string  `json:"name"`
	Episodes          int     `json:"episodes"`
	Decks             int     `json:"decks"`
	S17               *bool   `json:"s17"`
	DAS               *bool   `json:"das"`
	Double11VsAce     bool    `json:"double_11_vs_ace"`
	SeedBase          int64   `json:"seed_base"`
	TargetMeanDeltaEV float64 `json:"target_mean_delta_ev"`
}

type suiteSpec struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Stages []stageSpec `json:"stages"`
}

func parseSuiteFile(raw []byte) ([]*Suite, error) {
	var specs []suiteSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, err
	}
	out := make([]*Suite, 0, len(specs))
	for _, spec := range specs {
		s, err := spec.toSuite()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (spec suiteSpec) toSuite() (*Suite, error) {
	id := strings.ToLower(strings.TrimSpace(spec.ID))
	if id == "" {
		return nil, fmt.Errorf("suite id is required")
	}
	if len(spec.Stages) == 0 {
		return nil, fmt.Errorf("suite %s has no stages", id)
	}
	s := &Suite{
		ID:     id,
		Name:   spec.Name,
		Stages: make([]Stage, 0, len(spec.Stages)),
	}
	if s.Name == "" {
		s.Name = id
	}
	for i, st := range spec.Stages {
		if st.Episodes <= 0 {
			return nil, fmt.Errorf("suite %s stage %d: episodes must be positive", id, i)
		}
		if st.TargetMeanDeltaEV > 0 {
			return nil, fmt.Errorf("suite %s stage %d: target mean delta-EV must be <= 0", id, i)
		}
		rules := blackjack.DefaultRules()
		if st.Decks != 0 {
			if st.Decks < 1 || st.Decks > 8 {
				return nil, fmt.Errorf("suite %s stage %d: decks must be 1..8", id, i)
			}
			rules.Decks = st.Decks
		}
		if st.S17 != nil {
			rules.S17 = *st.S17
		}
		if st.DAS != nil {
			rules.DAS = *st.DAS
		}
		rules.Double11VsAce = st.Double11VsAce
		name := strings.TrimSpace(st.Name)
		if name == "" {
			name = fmt.Sprintf("stage-%d", i)
		}
		s.Stages = append(s.Stages, Stage{
			Index:             i,
			Name:              name,
			Episodes:          st.Episodes,
			Rules:             rules,
			SeedBase:          st.SeedBase,
			TargetMeanDeltaEV: st.TargetMeanDeltaEV,
		})
	}
	return s, nil
}
