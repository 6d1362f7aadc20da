package card

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrEmptyShoe is returned by Draw when no cards remain.
var ErrEmptyShoe = errors.New("shoe is empty")

// Shoe 牌靴：按点数档计数的剩余牌池。
// 值语义：整体赋值即得到一份独立拷贝（模拟试验用）。
type Shoe struct {
	counts [NumRanks]int
	total  int
}

// NewShoe 构建 num_decks 副牌的新牌靴（每档 4 张/副，十点档 16 张/副）。
func NewShoe(decks int) *Shoe {
	s := &Shoe{}
	for _, r := range ShoeRanks {
		n := 4 * decks
		if r == RankTen {
			n = 16 * decks
		}
		s.counts[r.Index()] = n
		s.total += n
	}
	return s
}

// ShoeFromCounts rebuilds a shoe from a rank-string count map
// (the serialized form used by datasets and episode specs).
func ShoeFromCounts(m map[string]int) (*Shoe, error) {
	s := &Shoe{}
	for key, n := range m {
		r, err := ParseRank(key)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("negative count %d for rank %s", n, key)
		}
		s.counts[r.Index()] += n
		s.total += n
	}
	return s, nil
}

// Count 获取总牌数
func (s *Shoe) Count() int {
	return s.total
}

func (s *Shoe) CountOf(r Rank) int {
	i := r.Index()
	if i < 0 {
		return 0
	}
	return s.counts[i]
}

// Clone returns an independent copy. Cheap: the backing store is an array.
func (s *Shoe) Clone() Shoe {
	return *s
}

// Draw removes one card, chosen uniformly over the remaining individual
// cards: a single random index into the cumulative count, resolved by a
// scan in ShoeRanks order. Identical rng state and shoe state reproduce
// the identical card.
func (s *Shoe) Draw(rng *rand.Rand) (Rank, error) {
	if s.total <= 0 {
		return RankInvalid, ErrEmptyShoe
	}
	k := rng.Intn(s.total)
	cum := 0
	for _, r := range ShoeRanks {
		c := s.counts[r.Index()]
		if c <= 0 {
			continue
		}
		cum += c
		if k < cum {
			s.counts[r.Index()]--
			s.total--
			return r, nil
		}
	}
	// Unreachable while counts and total agree.
	return RankInvalid, ErrEmptyShoe
}

// Remove takes one specific card out of the shoe (building a shoe
// consistent with an externally supplied deal). Reports false when that
// rank is exhausted.
func (s *Shoe) Remove(r Rank) bool {
	i := r.Index()
	if i < 0 || s.counts[i] <= 0 {
		return false
	}
	s.counts[i]--
	s.total--
	return true
}

// Add returns one card of the given rank to the shoe.
func (s *Shoe) Add(r Rank) {
	i := r.Index()
	if i < 0 {
		return
	}
	s.counts[i]++
	s.total++
}

// CountsByRank serializes the shoe as a rank-string count map.
func (s *Shoe) CountsByRank() map[string]int {
	m := make(map[string]int, NumRanks)
	for _, r := range ShoeRanks {
		m[r.String()] = s.counts[r.Index()]
	}
	return m
}
