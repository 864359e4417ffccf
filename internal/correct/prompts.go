package correct

import "fmt"

// Prompt strategy names.
const (
	StrategyTranscription = "transcription"
	StrategyMinimal       = "minimal"
	StrategyFormal        = "formal"
	StrategyCode          = "code"
)

// BuildPrompt renders the correction prompt for the given strategy.
// Unknown strategies fall back to the transcription strategy.
func BuildPrompt(strategy, text string) string {
	switch strategy {
	case StrategyMinimal:
		return fmt.Sprintf(
			"Fix only clear errors in this transcribed text. Change as little as possible. "+
				"Return only the corrected text with no explanation.\n\nText: %s", text)
	case StrategyFormal:
		return fmt.Sprintf(
			"Rewrite this transcribed speech as polished formal writing. Fix grammar, "+
				"punctuation and sentence structure while preserving the meaning. "+
				"Return only the rewritten text with no explanation.\n\nText: %s", text)
	case StrategyCode:
		return fmt.Sprintf(
			"This transcribed speech describes code or technical content. Fix transcription "+
				"errors in identifiers, keywords and technical terms. Preserve intended casing "+
				"like camelCase and snake_case. Return only the corrected text with no "+
				"explanation.\n\nText: %s", text)
	default:
		return fmt.Sprintf(
			"Correct any transcription errors in the following text. Fix misheard words, "+
				"add appropriate punctuation and capitalization, but preserve the speaker's "+
				"wording and meaning. Return only the corrected text with no explanation.\n\n"+
				"Text: %s", text)
	}
}
