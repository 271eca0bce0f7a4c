package provider

import (
	"strings"

	"github.com/saidarshan/devicegateway/internal/model"
)

const basePrompt = "You are a warm, patient voice companion on a devotional audio device. " +
	"Speak plainly and briefly, the listener hears you through a small speaker. " +
	"Never read out URLs, markup, or symbols."

const historyLimit = 20

// BuildSystemPrompt seeds the vendor's conversational state with the
// recent chat history of this user and persona.
func BuildSystemPrompt(identity model.Identity, history []model.ChatMessage) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if identity.Persona.Key != "" {
		b.WriteString(" Persona: ")
		b.WriteString(identity.Persona.Key)
		b.WriteString(".")
	}

	if len(history) == 0 {
		return b.String()
	}

	msgs := history
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}

	b.WriteString("\n\nEarlier conversation, oldest first:\n")
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	return b.String()
}

// BuildFirstMessage is the opening utterance the assistant speaks as soon
// as the session is live.
func BuildFirstMessage(identity model.Identity, history []model.ChatMessage) string {
	if len(history) == 0 {
		return "Hello! I'm here with you. How are you feeling today?"
	}

	return "Welcome back! Shall we pick up where we left off?"
}
