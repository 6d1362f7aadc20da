package blackjack

func containsActionType(list []ActionType, a ActionType) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func insertHand(s []Hand, i int, h Hand) []Hand {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = h
	return s
}

func insertBool(s []bool, i int, v bool) []bool {
	s = append(s, false)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// ActionNames renders an action list in its wire form.
func ActionNames(list []ActionType) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.String())
	}
	return out
}
