package oracle

import "math/rand"

// NoisyAdvisor wraps another advisor and substitutes a uniformly random
// allowed action at the given mistake rate. Used when generating imperfect
// play traces.
type NoisyAdvisor struct {
	inner Advisor
	rate  float64
	rng   *rand.Rand
}

func NewNoisyAdvisor(inner Advisor, rate float64, seed int64) *NoisyAdvisor {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &NoisyAdvisor{
		inner: inner,
		rate:  rate,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (n *NoisyAdvisor) Advise(v HandView) Action {
	if len(v.Allowed) > 0 && n.rng.Float64() < n.rate {
		return v.Allowed[n.rng.Intn(len(v.Allowed))]
	}
	return n.inner.Advise(v)
}

func (n *NoisyAdvisor) Name() string {
	return "noisy:" + n.inner.Name()
}
