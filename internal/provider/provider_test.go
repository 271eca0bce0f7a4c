package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/model"
)

func TestSelect(t *testing.T) {
	s := NewSelector(config.Providers{})

	cases := []struct {
		provider string
		name     string
	}{
		{"openai", "openai"},
		{"gemini", "gemini"},
		{"elevenlabs", "elevenlabs"},
	}

	for _, tc := range cases {
		d, err := s.Select(model.PersonaConfig{Provider: tc.provider})
		if err != nil {
			t.Fatalf("%s: exp nil got %v", tc.provider, err)
		}
		if d.Name() != tc.name {
			t.Fatalf("exp %s got %s", tc.name, d.Name())
		}
	}
}

func TestSelectUnknownProvider(t *testing.T) {
	s := NewSelector(config.Providers{})

	for _, provider := range []string{"", "azure", "OPENAI"} {
		_, err := s.Select(model.PersonaConfig{Provider: provider})
		if !errors.Is(err, model.ErrUnknownProvider) {
			t.Fatalf("%q: exp %v got %v", provider, model.ErrUnknownProvider, err)
		}
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	identity := model.Identity{Persona: model.PersonaConfig{Key: "sita"}}

	prompt := BuildSystemPrompt(identity, nil)
	if !strings.Contains(prompt, "Persona: sita.") {
		t.Fatalf("persona key missing from prompt: %q", prompt)
	}
	if strings.Contains(prompt, "Earlier conversation") {
		t.Fatal("empty history must not add a transcript section")
	}

	history := []model.ChatMessage{
		{Role: "user", Content: "namaste"},
		{Role: "assistant", Content: "namaste, how are you?"},
	}

	prompt = BuildSystemPrompt(identity, history)
	if !strings.Contains(prompt, "user: namaste\n") {
		t.Fatalf("history missing from prompt: %q", prompt)
	}

	userIdx := strings.Index(prompt, "user: namaste")
	assistantIdx := strings.Index(prompt, "assistant: namaste")
	if userIdx > assistantIdx {
		t.Fatal("history must be oldest first")
	}
}

func TestBuildSystemPromptTruncatesHistory(t *testing.T) {
	history := make([]model.ChatMessage, historyLimit+5)
	for i := range history {
		history[i] = model.ChatMessage{Role: "user", Content: "msg"}
	}
	history[0].Content = "the-oldest-line"

	prompt := BuildSystemPrompt(model.Identity{}, history)
	if strings.Contains(prompt, "the-oldest-line") {
		t.Fatal("overflowed history must drop the oldest lines")
	}
}

func TestBuildFirstMessage(t *testing.T) {
	first := BuildFirstMessage(model.Identity{}, nil)
	returning := BuildFirstMessage(model.Identity{}, []model.ChatMessage{{Role: "user", Content: "hi"}})

	if first == returning {
		t.Fatal("fresh and returning greetings should differ")
	}
	if !strings.Contains(returning, "Welcome back") {
		t.Fatalf("exp welcome-back greeting got %q", returning)
	}
}
