package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/metrics"
	"github.com/saidarshan/devicegateway/internal/model"
)

const elevenLabsConvAIBase = "wss://api.elevenlabs.io/v1/convai/conversation"

// ElevenLabs runs the conversation against a conversational-AI agent.
// The persona's voice field carries the agent id.
type ElevenLabs struct {
	cfg config.Providers
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Open(ctx context.Context, params SessionParams) (Session, error) {
	if e.cfg.ElevenLabsKey == "" {
		return nil, errors.Wrap(model.ErrProviderFailed, "elevenlabs api key is not configured")
	}

	agentID := params.Identity.Persona.Voice
	if agentID == "" {
		return nil, errors.Wrap(model.ErrProviderFailed, "persona has no elevenlabs agent id")
	}

	base := e.cfg.ElevenLabsBase
	if base == "" {
		base = elevenLabsConvAIBase
	}

	u := base + "?agent_id=" + url.QueryEscape(agentID)
	header := http.Header{}
	header.Set("xi-api-key", e.cfg.ElevenLabsKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		return nil, errors.Wrap(model.ErrProviderFailed, "dialing elevenlabs: "+err.Error())
	}

	s := &elevenLabsSession{vendor: conn, params: params}

	if err = s.initiate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	metrics.ProviderSessions.WithLabelValues("elevenlabs").Inc()

	return s, nil
}

type elevenLabsSession struct {
	vendor *websocket.Conn
	params SessionParams
}

func (s *elevenLabsSession) initiate() error {
	init := map[string]interface{}{
		"type": "conversation_initiation_client_data",
		"conversation_config_override": map[string]interface{}{
			"agent": map[string]interface{}{
				"prompt":        map[string]interface{}{"prompt": s.params.SystemPrompt},
				"first_message": s.params.FirstMessage,
			},
		},
	}

	if err := s.vendor.WriteJSON(init); err != nil {
		return errors.Wrap(model.ErrProviderFailed, "sending initiation: "+err.Error())
	}

	return nil
}

func (s *elevenLabsSession) Run(ctx context.Context) error {
	errc := make(chan error, 2)

	go func() { errc <- s.pumpDevice(ctx) }()
	go func() { errc <- s.pumpVendor(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *elevenLabsSession) pumpDevice(ctx context.Context) error {
	for {
		msgType, data, err := s.params.Conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "reading device frame")
		}

		if msgType != websocket.BinaryMessage {
			logDeviceFrame(ctx, data)
			continue
		}

		frame := map[string]string{
			"user_audio_chunk": base64.StdEncoding.EncodeToString(data),
		}
		if err = s.vendor.WriteJSON(frame); err != nil {
			return errors.Wrap(model.ErrProviderFailed, "sending audio chunk: "+err.Error())
		}
	}
}

func (s *elevenLabsSession) pumpVendor(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	for {
		_, data, err := s.vendor.ReadMessage()
		if err != nil {
			return errors.Wrap(model.ErrProviderFailed, "reading vendor frame: "+err.Error())
		}

		eventType, event := parseVendorEvent(data)
		switch eventType {
		case "audio":
			audioEvent, _ := event["audio_event"].(map[string]interface{})
			encoded, _ := audioEvent["audio_base_64"].(string)
			audio, decErr := base64.StdEncoding.DecodeString(encoded)
			if decErr != nil {
				logger.Warn().Err(decErr).Msg("undecodable agent audio")
				continue
			}
			if err = s.params.Conn.SendBinary(audio); err != nil {
				return errors.Wrap(err, "relaying audio to device")
			}

		case "ping":
			pingEvent, _ := event["ping_event"].(map[string]interface{})
			pong := map[string]interface{}{"type": "pong", "event_id": pingEvent["event_id"]}
			if err = s.vendor.WriteJSON(pong); err != nil {
				return errors.Wrap(model.ErrProviderFailed, "answering ping: "+err.Error())
			}

		case "agent_response":
			logger.Debug().Msg("agent response")

		default:
		}
	}
}

func (s *elevenLabsSession) Close() error {
	return s.vendor.Close()
}
