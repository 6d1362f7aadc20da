package blackjack

import (
	"fmt"

	"blackjack-lite/card"
)

// Rules 台面规则
type Rules struct {
	Decks         int  `json:"num_decks"`        // 牌靴副数
	S17           bool `json:"s17"`              // 庄家软17停牌（false 即 H17 补牌）
	DAS           bool `json:"das"`              // 分牌后允许加倍
	Double11VsAce bool `json:"double_11_vs_ace"` // 硬11对庄家A是否按加倍推荐
}

func DefaultRules() Rules {
	return Rules{
		Decks:         6,
		S17:           true,
		DAS:           true,
		Double11VsAce: false,
	}
}

// Config 单局配置。强制发牌字段留空时从牌靴按序抽取。
type Config struct {
	Rules Rules
	Seed  int64 // 0 表示使用时间种子

	EVSamples int   // 每个动作的蒙特卡洛样本数，<=0 取 200
	CRNSeed   int64 // Q/V 共用随机数种子，0 取 12345

	PlayerCards []card.Rank    // 必须为空或恰好两张
	DealerUp    card.Rank      // 与 DealerHole 成对出现
	DealerHole  card.Rank      //
	ShoeCounts  map[string]int // 发牌后的残靴；为空则按 Rules.Decks 新建并扣除发出的牌
}

func DefaultConfig() Config {
	return Config{
		Rules:     DefaultRules(),
		EVSamples: DefaultEVSamples,
		CRNSeed:   DefaultCRNSeed,
	}
}

func (c Config) validate() error {
	if c.ShoeCounts == nil && c.Rules.Decks <= 0 {
		return fmt.Errorf("invalid Decks %d", c.Rules.Decks)
	}
	if n := len(c.PlayerCards); n != 0 && n != 2 {
		return fmt.Errorf("PlayerCards must hold 0 or 2 cards, got %d", n)
	}
	forcedUp := c.DealerUp != card.RankInvalid
	forcedHole := c.DealerHole != card.RankInvalid
	if forcedUp != forcedHole {
		return fmt.Errorf("DealerUp and DealerHole must be set together")
	}
	if len(c.PlayerCards) == 2 && !forcedUp {
		return fmt.Errorf("forced PlayerCards require a forced dealer deal")
	}
	if forcedUp && len(c.PlayerCards) != 2 {
		return fmt.Errorf("forced dealer deal requires forced PlayerCards")
	}
	return nil
}
