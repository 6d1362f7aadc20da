package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"blackjack-lite/blackjack"
	"blackjack-lite/blackjack/oracle"
	"blackjack-lite/card"
	"blackjack-lite/env"
)

type cliConfig struct {
	rules   blackjack.Rules
	seed    int64
	samples int
	auto    int
	noise   float64
}

func main() {
	var (
		decks   = flag.Int("decks", 6, "number of decks in the shoe")
		s17     = flag.Bool("s17", true, "dealer stands on soft 17")
		h17     = flag.Bool("h17", false, "dealer hits soft 17 (overrides -s17)")
		das     = flag.Bool("das", true, "double after split allowed")
		noDAS   = flag.Bool("no-das", false, "double after split not allowed (overrides -das)")
		d11     = flag.Bool("double-11-vs-ace", false, "chart doubles hard 11 against an ace")
		seed    = flag.Int64("seed", 0, "master seed; 0 seeds from the clock")
		samples = flag.Int("samples", 0, "EV trials per estimate; 0 uses the default")
		auto    = flag.Int("auto", 0, "play N hands with the chart advisor instead of reading stdin")
		noise   = flag.Float64("noise", 0, "advisor mistake rate in -auto mode")
	)
	flag.Parse()

	cfg := cliConfig{
		rules: blackjack.Rules{
			Decks:         *decks,
			S17:           *s17 && !*h17,
			DAS:           *das && !*noDAS,
			Double11VsAce: *d11,
		},
		seed:    *seed,
		samples: *samples,
		auto:    *auto,
		noise:   *noise,
	}
	if cfg.seed == 0 {
		cfg.seed = time.Now().UnixNano()
	}

	var err error
	if cfg.auto > 0 {
		err = runAuto(cfg)
	} else {
		err = runInteractive(cfg, bufio.NewScanner(os.Stdin))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "blackjackcli:", err)
		os.Exit(1)
	}
}

func runInteractive(cfg cliConfig, in *bufio.Scanner) error {
	master := rand.New(rand.NewSource(cfg.seed))
	bankroll := 0.0
	for {
		res, err := playOnce(cfg, master.Int63(), in)
		if err != nil {
			return err
		}
		bankroll += res
		fmt.Printf("Bankroll change this session: %+.1f bets\n", bankroll)
		again, ok := readLine(in, "Play another hand? (y/n): ")
		if !ok {
			break
		}
		again = strings.ToLower(strings.TrimSpace(again))
		if again != "y" && again != "yes" {
			break
		}
	}
	fmt.Printf("Final bankroll change: %+.1f bets\n", bankroll)
	return nil
}

// playOnce deals one hand and plays it to settlement. Quitting mid-hand
// scores zero.
func playOnce(cfg cliConfig, handSeed int64, in *bufio.Scanner) (float64, error) {
	game, err := blackjack.NewGame(blackjack.Config{
		Rules:     cfg.rules,
		Seed:      handSeed,
		EVSamples: cfg.samples,
	})
	if err != nil {
		return 0, err
	}

	fmt.Println("\n=== New Hand ===")
	for {
		snap := game.Snapshot()
		if snap.Phase != blackjack.PhaseTypeAwaitAction {
			return 0, nil
		}
		allowed, err := game.LegalActions()
		if err != nil {
			return 0, err
		}
		active, ok := snap.ActiveHand()
		if !ok {
			return 0, fmt.Errorf("no active hand")
		}
		if len(snap.Hands) > 1 {
			fmt.Printf("\n-- Split hand %d of %d --\n", snap.ActiveIndex+1, len(snap.Hands))
		}
		fmt.Println(env.StateMessage(active.Cards, snap.DealerUp, snap.Rules, allowed))

		raw, alive := readLine(in, "Your action (HIT/STAND/DOUBLE/SPLIT, or Q to quit hand): ")
		if !alive {
			game.Abort()
			fmt.Println("Hand aborted.")
			return 0, nil
		}
		upper := strings.ToUpper(strings.TrimSpace(raw))
		if upper == "Q" || upper == "QUIT" {
			game.Abort()
			fmt.Println("Hand aborted.")
			return 0, nil
		}

		// Plain tokens and tagged answers both work at the prompt.
		action, found := env.InferActionFromText(raw, allowed)
		if !found {
			printInvalid(allowed)
			continue
		}

		before := snap.ActiveIndex
		settle, err := game.Act(action)
		if err != nil {
			return 0, err
		}
		if action == blackjack.ActionTypeHit {
			after := game.Snapshot()
			if h := after.Hands[before]; h.Bust {
				fmt.Printf("Busted with %d.\n", h.Total)
			}
		}
		if settle != nil {
			printSettlement(settle)
			return settle.TotalPayout, nil
		}
	}
}

func printInvalid(allowed []blackjack.ActionType) {
	names := blackjack.ActionNames(allowed)
	examples := make([]string, len(names))
	for i, n := range names {
		examples[i] = "<answer>" + n + "</answer>"
	}
	fmt.Printf("Invalid action. Allowed: %s\nType one of: %s (no tags), or reply exactly with: %s\n\n",
		strings.Join(names, ", "), strings.Join(names, ", "), strings.Join(examples, " | "))
}

func printSettlement(res *blackjack.SettlementResult) {
	fmt.Printf("Dealer: %s (total %d).\n",
		strings.Join(card.RankStrings(res.DealerCards), ", "), res.DealerTotal)
	for i, h := range res.Hands {
		fmt.Printf("Hand %d: %s (total %d) -> %+.1f bets\n",
			i+1, strings.Join(card.RankStrings(h.Cards), ", "), h.Total, h.Payout)
	}
	fmt.Printf("Result: %+.1f bets.\n\n", res.TotalPayout)
}

// runAuto plays N hands through the environment with the chart advisor and
// prints per-hand scores plus session means.
func runAuto(cfg cliConfig) error {
	master := rand.New(rand.NewSource(cfg.seed))
	var advisor oracle.Advisor = oracle.NewChartAdvisor(oracle.Options{
		DAS:           cfg.rules.DAS,
		Double11VsAce: cfg.rules.Double11VsAce,
	})
	if cfg.noise > 0 {
		advisor = oracle.NewNoisyAdvisor(advisor, cfg.noise, master.Int63())
	}
	fmt.Printf("advisor: %s, hands: %d\n", advisor.Name(), cfg.auto)

	var sumReward, sumDelta, sumFirst, sumRealized float64
	settled := 0
	for n := 0; n < cfg.auto; n++ {
		ep, err := env.NewEpisode(env.Example{Seed: master.Int63(), Rules: cfg.rules},
			env.Options{EVSamples: cfg.samples})
		if err != nil {
			return err
		}
		for !ep.Done() {
			allowed, err := ep.LegalActions()
			if err != nil {
				return err
			}
			snap := ep.Snapshot()
			active, ok := snap.ActiveHand()
			if !ok {
				return fmt.Errorf("no active hand on a live episode")
			}
			pick := advisor.Advise(oracle.HandView{
				Cards:    active.Cards,
				DealerUp: snap.DealerUp,
				Allowed:  toOracleActions(allowed),
			})
			if _, err := ep.Submit("<answer>" + pick.String() + "</answer>"); err != nil {
				return err
			}
		}
		s := ep.Score()
		sumReward += s.Reward
		sumDelta += s.DeltaEVSum
		sumFirst += s.FirstActionEV
		sumRealized += s.RealizedReturn
		if ep.Settled() {
			settled++
		}
		fmt.Printf("hand %3d: reward=%+.3f delta_ev=%+.3f realized=%+.1f\n",
			n+1, s.Reward, s.DeltaEVSum, s.RealizedReturn)
	}

	total := float64(cfg.auto)
	fmt.Printf("\nhands: %d settled: %d\n", cfg.auto, settled)
	fmt.Printf("mean reward:          %+.4f\n", sumReward/total)
	fmt.Printf("mean delta_ev:        %+.4f\n", sumDelta/total)
	fmt.Printf("mean first_action_ev: %+.4f\n", sumFirst/total)
	fmt.Printf("mean realized:        %+.4f\n", sumRealized/total)
	return nil
}

func toOracleActions(list []blackjack.ActionType) []oracle.Action {
	out := make([]oracle.Action, 0, len(list))
	for _, a := range list {
		switch a {
		case blackjack.ActionTypeHit:
			out = append(out, oracle.ActionHit)
		case blackjack.ActionTypeStand:
			out = append(out, oracle.ActionStand)
		case blackjack.ActionTypeDouble:
			out = append(out, oracle.ActionDouble)
		case blackjack.ActionTypeSplit:
			out = append(out, oracle.ActionSplit)
		}
	}
	return out
}

func readLine(in *bufio.Scanner, prompt string) (string, bool) {
	fmt.Print(prompt)
	if !in.Scan() {
		return "", false
	}
	return in.Text(), true
}
