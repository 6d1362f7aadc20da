package oracle

import "blackjack-lite/card"

// HandView 提供给顾问的当前手牌视图
type HandView struct {
	Cards    []card.Rank
	DealerUp card.Rank
	Allowed  []Action
}

// Advisor 动作顾问接口
type Advisor interface {
	Advise(view HandView) Action
	Name() string
}

// ChartAdvisor answers straight from the charts, degrading to an allowed
// action when the chart pick is unavailable.
type ChartAdvisor struct {
	opts Options
}

func NewChartAdvisor(o Options) *ChartAdvisor {
	return &ChartAdvisor{opts: o}
}

func (c *ChartAdvisor) Advise(v HandView) Action {
	return Degrade(Recommend(v.Cards, v.DealerUp, c.opts), v.Allowed)
}

func (c *ChartAdvisor) Name() string {
	return "chart"
}

// Degrade maps a chart pick onto the allowed list: keep it when listed,
// otherwise prefer STAND, then HIT, then the first allowed action.
func Degrade(pick Action, allowed []Action) Action {
	if len(allowed) == 0 || containsAction(allowed, pick) {
		return pick
	}
	if containsAction(allowed, ActionStand) {
		return ActionStand
	}
	if containsAction(allowed, ActionHit) {
		return ActionHit
	}
	return allowed[0]
}

func containsAction(list []Action, a Action) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
