package replay

import "fmt"

type ReplayError struct {
	StepIndex int32          `json:"step_index"`
	Reason    string         `json:"reason"`
	Message   string         `json:"message"`
	Expected  *ExpectedState `json:"expected,omitempty"`
}

// ExpectedState describes what the environment was actually waiting for when
// a scripted step could not be applied.
type ExpectedState struct {
	HandIndex      int      `json:"hand_index"`
	Hand           []string `json:"hand,omitempty"`
	Total          int      `json:"total,omitempty"`
	AllowedActions []string `json:"allowed_actions,omitempty"`
}

func (e *ReplayError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("replay error(step=%d reason=%s): %s", e.StepIndex, e.Reason, e.Message)
}
