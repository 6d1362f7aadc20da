package oracle

// Action is a chart recommendation before any legality check.
type Action byte

const (
	ActionNone Action = iota
	ActionHit
	ActionStand
	ActionDouble
	ActionSplit
)

var actionNames = map[Action]string{
	ActionNone:   "NONE",
	ActionHit:    "HIT",
	ActionStand:  "STAND",
	ActionDouble: "DOUBLE",
	ActionSplit:  "SPLIT",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "NONE"
}
