package env

import (
	"math/rand"
	"time"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
)

// Example 单局初始局面（数据集条目）。Shoe 为发牌后的残靴。
type Example struct {
	Question    string          `json:"question"`
	Seed        int64           `json:"seed"`
	Rules       blackjack.Rules `json:"rules"`
	Shoe        map[string]int  `json:"shoe"`
	PlayerCards []card.Rank     `json:"player_cards"`
	DealerUp    card.Rank       `json:"dealer_up"`
	DealerHole  card.Rank       `json:"dealer_hole"`
}

// GenerateOptions 数据集生成参数
type GenerateOptions struct {
	Total          int             // <=0 取 200
	Seed           int64           // 0 表示使用时间种子
	Rules          blackjack.Rules // 固定规则（RandomizeRules 为 false 时生效）
	RandomizeRules bool            // 每条示例重抽 decks/s17/das/double_11_vs_ace
}

var deckChoices = []int{1, 2, 4, 6, 8}

// Generate deals Total independent opening scenarios. Each example carries
// everything an episode needs to replay the exact deal: rules, the post-deal
// shoe, both player cards, and the dealer's up and hole cards.
func Generate(opts GenerateOptions) ([]Example, error) {
	total := opts.Total
	if total <= 0 {
		total = 200
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	out := make([]Example, 0, total)
	for n := 0; n < total; n++ {
		rules := opts.Rules
		if rules.Decks <= 0 {
			rules = blackjack.DefaultRules()
		}
		if opts.RandomizeRules {
			rules.Decks = deckChoices[rng.Intn(len(deckChoices))]
			rules.S17 = rng.Intn(2) == 0
			rules.DAS = rng.Intn(2) == 0
			rules.Double11VsAce = rng.Intn(2) == 1
		}

		shoe := card.NewShoe(rules.Decks)
		var drawn [4]card.Rank
		for i := range drawn {
			r, err := shoe.Draw(rng)
			if err != nil {
				return nil, err
			}
			drawn[i] = r
		}
		player := []card.Rank{drawn[0], drawn[1]}
		up, hole := drawn[2], drawn[3]

		allowed := []blackjack.ActionType{blackjack.ActionTypeHit, blackjack.ActionTypeStand, blackjack.ActionTypeDouble}
		if player[0] == player[1] {
			allowed = append(allowed, blackjack.ActionTypeSplit)
		}

		out = append(out, Example{
			Question:    StateMessage(player, up, rules, allowed),
			Seed:        rng.Int63n(1 << 30),
			Rules:       rules,
			Shoe:        shoe.CountsByRank(),
			PlayerCards: player,
			DealerUp:    up,
			DealerHole:  hole,
		})
	}
	return out, nil
}
