package env

// System prompts shown once per episode; the per-turn table state arrives in
// user messages.
const (
	ThinkAnswerSystemPrompt = "You are a competitive game player. " +
		"Make sure you read the game instructions carefully, and always follow the required format.\n\n" +
		"In each turn of Blackjack, think step-by-step inside <think>...</think> tags, " +
		"then give only the action inside <answer>...</answer> tags."

	NoThinkSystemPrompt = "You are a competitive game player. " +
		"Make sure you read the game instructions carefully, and always follow the required format.\n\n" +
		"In this task, give only the action inside <answer>...</answer> tags."
)

// SystemPrompt returns the prompt flavor plus the closed action vocabulary.
func SystemPrompt(useThink bool) string {
	base := NoThinkSystemPrompt
	if useThink {
		base = ThinkAnswerSystemPrompt
	}
	return base + "\n\nValid actions: HIT, STAND, DOUBLE, SPLIT."
}
