package card

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rank 牌面点数（十点桶模型）
//
// 编码规则:
// - 1: A
// - 2..9: 对应点数
// - 10: 10/J/Q/K 合并为一档
type Rank byte

const (
	RankInvalid Rank = 0
	RankAce     Rank = 1
	Rank2       Rank = 2
	Rank3       Rank = 3
	Rank4       Rank = 4
	Rank5       Rank = 5
	Rank6       Rank = 6
	Rank7       Rank = 7
	Rank8       Rank = 8
	Rank9       Rank = 9
	RankTen     Rank = 10
)

// NumRanks 点数档数
const NumRanks = 10

// ShoeRanks 固定扫描顺序: 2..10, A。
// 抽牌时按此顺序累计计数，保证同一随机流结果可复现。
var ShoeRanks = [NumRanks]Rank{
	Rank2, Rank3, Rank4, Rank5, Rank6, Rank7, Rank8, Rank9, RankTen, RankAce,
}

func (r Rank) String() string {
	switch {
	case r == RankAce:
		return "A"
	case r >= Rank2 && r <= Rank9:
		return fmt.Sprintf("%d", byte(r))
	case r == RankTen:
		return "10"
	}
	return "Invalid"
}

// Value 基础点数: A 记 11（软硬由求值器决定），10/J/Q/K 记 10。
func (r Rank) Value() int {
	if r == RankAce {
		return 11
	}
	return int(r)
}

func (r Rank) IsAce() bool {
	return r == RankAce
}

func (r Rank) IsTen() bool {
	return r == RankTen
}

// Index maps a rank onto 0..NumRanks-1 following ShoeRanks order.
func (r Rank) Index() int {
	if r == RankAce {
		return NumRanks - 1
	}
	if r >= Rank2 && r <= RankTen {
		return int(r) - 2
	}
	return -1
}

// MarshalJSON 以点数字符串形式序列化（"A"、"10"），未设置时为空串
func (r Rank) MarshalJSON() ([]byte, error) {
	if r == RankInvalid {
		return json.Marshal("")
	}
	return json.Marshal(r.String())
}

func (r *Rank) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = RankInvalid
		return nil
	}
	v, err := ParseRank(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRank 将字符串 (如 "A", "7", "10", "K") 转换为 Rank 常量
func ParseRank(s string) (Rank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return RankAce, nil
	case "2":
		return Rank2, nil
	case "3":
		return Rank3, nil
	case "4":
		return Rank4, nil
	case "5":
		return Rank5, nil
	case "6":
		return Rank6, nil
	case "7":
		return Rank7, nil
	case "8":
		return Rank8, nil
	case "9":
		return Rank9, nil
	case "T", "10", "J", "Q", "K":
		return RankTen, nil
	default:
		return RankInvalid, fmt.Errorf("invalid rank: %s", s)
	}
}

// ParseRanks converts a list of rank strings, failing on the first bad entry.
func ParseRanks(ss []string) ([]Rank, error) {
	out := make([]Rank, len(ss))
	for i, s := range ss {
		r, err := ParseRank(s)
		if err != nil {
			return nil, fmt.Errorf("ranks[%d]: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// RankStrings renders ranks for prompts and wire payloads.
func RankStrings(rs []Rank) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}
