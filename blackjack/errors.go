package blackjack

import "errors"

var (
	// ErrEpisodeOver Act/LegalActions 在牌局结束后调用
	ErrEpisodeOver = errors.New("episode already over")
	// ErrActionNotAllowed 当前手牌不允许该动作
	ErrActionNotAllowed = errors.New("action not allowed")
)

type InvalidStateError string

func (e InvalidStateError) Error() string {
	return string(e)
}

func ErrInvalidState(msg string) error {
	return InvalidStateError(msg)
}
