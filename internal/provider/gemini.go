package provider

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/metrics"
	"github.com/saidarshan/devicegateway/internal/model"
)

const (
	geminiDefaultModel = "gemini-2.0-flash-live-001"
	geminiDefaultVoice = "Kore"
	geminiInputMIME    = "audio/pcm;rate=16000"
)

// Gemini runs the conversation over the Live API of the genai SDK.
type Gemini struct {
	cfg config.Providers
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Open(ctx context.Context, params SessionParams) (Session, error) {
	if g.cfg.GeminiKey == "" {
		return nil, errors.Wrap(model.ErrProviderFailed, "gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(model.ErrProviderFailed, "creating gemini client: "+err.Error())
	}

	mdl := g.cfg.GeminiModel
	if mdl == "" {
		mdl = geminiDefaultModel
	}

	voice := params.Identity.Persona.Voice
	if voice == "" {
		voice = geminiDefaultVoice
	}

	live, err := client.Live.Connect(ctx, mdl, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: params.SystemPrompt}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(model.ErrProviderFailed, "connecting gemini live: "+err.Error())
	}

	s := &geminiSession{live: live, params: params}

	if err = s.seed(); err != nil {
		_ = live.Close()
		return nil, err
	}

	metrics.ProviderSessions.WithLabelValues("gemini").Inc()

	return s, nil
}

type geminiSession struct {
	live   *genai.Session
	params SessionParams
}

// seed makes the model speak the opening utterance before any device audio.
func (s *geminiSession) seed() error {
	err := s.live.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: "Open the conversation by saying exactly: " + s.params.FirstMessage}},
		}},
		TurnComplete: genai.Ptr(true),
	})
	if err != nil {
		return errors.Wrap(model.ErrProviderFailed, "seeding first message: "+err.Error())
	}

	return nil
}

func (s *geminiSession) Run(ctx context.Context) error {
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

func (s *geminiSession) pumpDevice(ctx context.Context) error {
	for {
		msgType, data, err := s.params.Conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "reading device frame")
		}

		if msgType != websocket.BinaryMessage {
			logDeviceFrame(ctx, data)
			continue
		}

		err = s.live.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{Data: data, MIMEType: geminiInputMIME},
		})
		if err != nil {
			return errors.Wrap(model.ErrProviderFailed, "sending realtime audio: "+err.Error())
		}
	}
}

func (s *geminiSession) pumpVendor(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	for {
		msg, err := s.live.Receive()
		if err != nil {
			return errors.Wrap(model.ErrProviderFailed, "receiving live message: "+err.Error())
		}

		if msg.ServerContent == nil || msg.ServerContent.ModelTurn == nil {
			continue
		}

		for _, part := range msg.ServerContent.ModelTurn.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if err = s.params.Conn.SendBinary(part.InlineData.Data); err != nil {
				return errors.Wrap(err, "relaying audio to device")
			}
		}

		if msg.ServerContent.Interrupted {
			logger.Debug().Msg("model turn interrupted")
		}
	}
}

func (s *geminiSession) Close() error {
	return s.live.Close()
}
