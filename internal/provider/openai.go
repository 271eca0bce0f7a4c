package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/metrics"
	"github.com/saidarshan/devicegateway/internal/model"
)

const (
	openAIRealtimeBase  = "wss://api.openai.com/v1/realtime"
	openAIDefaultModel  = "gpt-4o-realtime-preview"
	openAIDefaultVoice  = "alloy"
	openAISessionUpdate = "session.update"
)

// OpenAI runs the conversation over the realtime websocket API.
type OpenAI struct {
	cfg config.Providers
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Open(ctx context.Context, params SessionParams) (Session, error) {
	if o.cfg.OpenAIKey == "" {
		return nil, errors.Wrap(model.ErrProviderFailed, "openai api key is not configured")
	}

	mdl := o.cfg.OpenAIModel
	if mdl == "" {
		mdl = openAIDefaultModel
	}

	voice := params.Identity.Persona.Voice
	if voice == "" {
		voice = openAIDefaultVoice
	}

	u := openAIRealtimeBase + "?model=" + url.QueryEscape(mdl)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.cfg.OpenAIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		return nil, errors.Wrap(model.ErrProviderFailed, "dialing openai realtime: "+err.Error())
	}

	s := &openAISession{
		vendor: conn,
		params: params,
		voice:  voice,
	}

	if err = s.configure(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	metrics.ProviderSessions.WithLabelValues("openai").Inc()

	return s, nil
}

type openAISession struct {
	vendor *websocket.Conn
	params SessionParams
	voice  string
}

// configure seeds session settings and the opening utterance before any
// audio flows.
func (s *openAISession) configure() error {
	update := map[string]interface{}{
		"type": openAISessionUpdate,
		"session": map[string]interface{}{
			"modalities":          []string{"audio", "text"},
			"instructions":        s.params.SystemPrompt,
			"voice":               s.voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"turn_detection":      map[string]interface{}{"type": "server_vad"},
		},
	}
	if err := s.vendor.WriteJSON(update); err != nil {
		return errors.Wrap(model.ErrProviderFailed, "sending session update: "+err.Error())
	}

	greet := map[string]interface{}{
		"type": "response.create",
		"response": map[string]interface{}{
			"instructions": "Open the conversation by saying exactly: " + s.params.FirstMessage,
		},
	}
	if err := s.vendor.WriteJSON(greet); err != nil {
		return errors.Wrap(model.ErrProviderFailed, "sending first message: "+err.Error())
	}

	return nil
}

func (s *openAISession) Run(ctx context.Context) error {
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

// pumpDevice forwards inbound device audio to the vendor. Text frames are
// gateway chatter (acks, pings), not conversation input.
func (s *openAISession) pumpDevice(ctx context.Context) error {
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
			"type":  "input_audio_buffer.append",
			"audio": base64.StdEncoding.EncodeToString(data),
		}
		if err = s.vendor.WriteJSON(frame); err != nil {
			return errors.Wrap(model.ErrProviderFailed, "appending audio: "+err.Error())
		}
	}
}

// pumpVendor forwards provider audio deltas to the device.
func (s *openAISession) pumpVendor(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	for {
		_, data, err := s.vendor.ReadMessage()
		if err != nil {
			return errors.Wrap(model.ErrProviderFailed, "reading vendor frame: "+err.Error())
		}

		eventType, event := parseVendorEvent(data)
		switch eventType {
		case "response.audio.delta":
			delta, _ := event["delta"].(string)
			audio, decErr := base64.StdEncoding.DecodeString(delta)
			if decErr != nil {
				logger.Warn().Err(decErr).Msg("undecodable audio delta")
				continue
			}
			if err = s.params.Conn.SendBinary(audio); err != nil {
				return errors.Wrap(err, "relaying audio to device")
			}

		case "error":
			logger.Error().Interface("event", event).Msg("openai session error")
			return errors.Wrap(model.ErrProviderFailed, "openai reported an error")

		default:
			// transcript deltas, VAD markers and lifecycle events are not
			// relayed to the device
		}
	}
}

func (s *openAISession) Close() error {
	return s.vendor.Close()
}

func parseVendorEvent(data []byte) (string, map[string]interface{}) {
	event := map[string]interface{}{}
	if err := json.Unmarshal(data, &event); err != nil {
		return "", event
	}
	t, _ := event["type"].(string)

	return t, event
}
