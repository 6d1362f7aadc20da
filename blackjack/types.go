package blackjack

import "blackjack-lite/blackjack/oracle"

// Phase 回合阶段
type Phase byte

const (
	PhaseTypeAwaitAction Phase = 0
	PhaseTypeSettled     Phase = 1
	PhaseTypeAborted     Phase = 2
)

var PhaseTypeDictionary = map[Phase]string{
	PhaseTypeAwaitAction: "await_action",
	PhaseTypeSettled:     "settled",
	PhaseTypeAborted:     "aborted",
}

// ActionType 动作类型：0-NONE 1-HIT 2-STAND 3-DOUBLE 4-SPLIT
type ActionType byte

const (
	ActionTypeNone   ActionType = 0
	ActionTypeHit    ActionType = 1
	ActionTypeStand  ActionType = 2
	ActionTypeDouble ActionType = 3
	ActionTypeSplit  ActionType = 4
)

var ActionTypeDictionary = map[ActionType]string{
	ActionTypeNone:   "NONE",
	ActionTypeHit:    "HIT",
	ActionTypeStand:  "STAND",
	ActionTypeDouble: "DOUBLE",
	ActionTypeSplit:  "SPLIT",
}

func (a ActionType) String() string {
	if s, ok := ActionTypeDictionary[a]; ok {
		return s
	}
	return "NONE"
}

// ParseActionType maps the wire/token form ("HIT", "stand", …) onto the enum.
func ParseActionType(s string) (ActionType, bool) {
	switch s {
	case "HIT", "hit", "Hit":
		return ActionTypeHit, true
	case "STAND", "stand", "Stand":
		return ActionTypeStand, true
	case "DOUBLE", "double", "Double":
		return ActionTypeDouble, true
	case "SPLIT", "split", "Split":
		return ActionTypeSplit, true
	}
	return ActionTypeNone, false
}

// PlayableActions 全部可提交动作（固定顺序）
var PlayableActions = []ActionType{
	ActionTypeHit, ActionTypeStand, ActionTypeDouble, ActionTypeSplit,
}

func actionFromOracle(a oracle.Action) ActionType {
	switch a {
	case oracle.ActionHit:
		return ActionTypeHit
	case oracle.ActionStand:
		return ActionTypeStand
	case oracle.ActionDouble:
		return ActionTypeDouble
	case oracle.ActionSplit:
		return ActionTypeSplit
	default:
		return ActionTypeNone
	}
}
