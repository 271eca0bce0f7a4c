// Package provider brokers a device connection against one external
// voice-AI vendor. Exactly one variant is selected per session from the
// identity's persona; after that, callers treat every vendor the same:
// Open, Run until the conversation ends, Close.
package provider

import (
	"context"

	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/device"
	"github.com/saidarshan/devicegateway/internal/model"
)

// SessionParams is everything a vendor needs to run a conversation.
type SessionParams struct {
	Conn     *device.Connection
	Identity model.Identity

	// FirstMessage is the opening utterance, FirstMessage and SystemPrompt
	// are derived from prior chat context before the session opens.
	FirstMessage string
	SystemPrompt string
}

// Session is a live conversation with a vendor. Run relays audio and
// events in both directions until the vendor ends the session, the
// device disconnects, or ctx is canceled. Close tears the vendor side
// down; the device connection belongs to the caller.
type Session interface {
	Run(ctx context.Context) error
	Close() error
}

// Dialer opens sessions against one vendor.
type Dialer interface {
	Name() string
	Open(ctx context.Context, params SessionParams) (Session, error)
}

// Selector resolves a persona to its vendor. An unrecognized provider
// discriminator is a configuration error, never a silent default.
type Selector struct {
	cfg config.Providers
}

func NewSelector(cfg config.Providers) *Selector {
	return &Selector{cfg: cfg}
}

func (s *Selector) Select(persona model.PersonaConfig) (Dialer, error) {
	switch persona.Provider {
	case "openai":
		return &OpenAI{cfg: s.cfg}, nil
	case "gemini":
		return &Gemini{cfg: s.cfg}, nil
	case "elevenlabs":
		return &ElevenLabs{cfg: s.cfg}, nil
	default:
		return nil, model.ErrUnknownProvider
	}
}
