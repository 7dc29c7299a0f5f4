package llm

import (
	"strings"

	"github.com/avdeyev/mediq/internal/domain"
)

const assistantName = "medical consultation assistant"

const assistantRole = "guide the user through describing their symptoms, " +
	"collect relevant information with the help of the conversation history, " +
	"and offer preliminary care suggestions"

const behaviorRules = `Follow these principles:
1. Guide the user step by step, asking only one question at a time.
2. Use plain, easy-to-understand language and avoid excessive medical jargon.
3. Show understanding and empathy for the user's answers.
4. Never give a definitive diagnosis; only describe possibilities and suggestions.
5. For severe symptoms, advise the user to seek real medical care promptly.
6. Maintain a professional, patient, and friendly tone.`

// BuildSystemPrompt assembles the fixed system prompt from the persona, the
// behavioral rules, the accumulated transcript, and the new user message.
func BuildSystemPrompt(history []domain.Turn, userMessage string) string {
	var b strings.Builder
	b.WriteString("You are a professional ")
	b.WriteString(assistantName)
	b.WriteString(". Your task is to ")
	b.WriteString(assistantRole)
	b.WriteString(".\n")
	b.WriteString(behaviorRules)
	b.WriteString("\nConversation history:\n")
	b.WriteString(RenderHistory(history))
	b.WriteString("\nThe user now says:\n\"")
	b.WriteString(userMessage)
	b.WriteString("\"\nGive professional advice based on the above.")
	return b.String()
}

// RenderHistory folds a transcript into speaker-prefixed lines.
func RenderHistory(history []domain.Turn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		prefix := "AI: "
		if turn.Role == domain.RoleUser {
			prefix = "User: "
		}
		lines = append(lines, prefix+turn.Text)
	}
	return strings.Join(lines, "\n")
}
