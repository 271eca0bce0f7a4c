package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/auth"
	"github.com/saidarshan/devicegateway/internal/device"
	"github.com/saidarshan/devicegateway/internal/fcontext"
	"github.com/saidarshan/devicegateway/internal/metrics"
	"github.com/saidarshan/devicegateway/internal/model"
	"github.com/saidarshan/devicegateway/internal/provider"
)

const chatHistoryLimit = 50

// authFrame is the first frame sent to a device after a successful
// upgrade. Values fall back to documented defaults when the persisted
// configuration omits them.
type authFrame struct {
	Type          string  `json:"type"`
	VolumeControl int     `json:"volume_control"`
	IsOTA         bool    `json:"is_ota"`
	IsReset       bool    `json:"is_reset"`
	PitchFactor   float64 `json:"pitch_factor"`
}

// handleWS authenticates and upgrades a device (or browser) connection,
// registers it, and hands it to the selected voice provider for the rest
// of its life. Authentication failures refuse the upgrade outright: no
// session state exists for a rejected connection.
func (api *HTTP) handleWS(w http.ResponseWriter, r *http.Request) {
	rid := uuid.New()
	logger := api.logger.With().Str("request_id", rid).Logger()
	ctx := fcontext.WithRequestID(logger.WithContext(r.Context()), rid)

	token, ok := auth.ParseBearer(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rssi, _ := strconv.Atoi(r.Header.Get("X-WiFi-RSSI"))

	identity, err := api.authn.Authenticate(ctx, token, auth.Metadata{
		WiFiRSSI:   rssi,
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("upgrade refused")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: time.Second * 5,
		ReadBufferSize:   4 << 10, // 4 KiB
		WriteBufferSize:  4 << 10, // 4 KiB
		CheckOrigin:      func(*http.Request) bool { return true },
	}

	wsconn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("unable to upgrade to websockets")
		return
	}

	conn := device.NewConnection(wsconn, identity)
	defer func() {
		_ = conn.Close()
	}()

	logger = logger.With().
		Str("user_id", identity.UserID).
		Str("device_id", identity.DeviceID).
		Str("provider", identity.Persona.Provider).
		Logger()
	ctx = fcontext.WithDeviceID(logger.WithContext(ctx), identity.DeviceID)

	// Browser voice sessions have no device id; only devices are reachable
	// for command push.
	if identity.DeviceID != "" {
		if old := api.registry.Register(identity.DeviceID, conn); old != nil {
			logger.Debug().Msg("superseding stale connection")
			_ = old.Close()
		}
		metrics.ConnectedDevices.Inc()
		defer func() {
			api.registry.Unregister(identity.DeviceID, conn)
			metrics.ConnectedDevices.Dec()
		}()
	}

	frame := authFrame{
		Type:          "auth",
		VolumeControl: identity.Device.Volume,
		IsOTA:         identity.Device.IsOTA,
		IsReset:       identity.Device.IsReset,
		PitchFactor:   identity.Persona.PitchFactor,
	}
	if err = conn.SendJSON(frame); err != nil {
		logger.Warn().Err(err).Msg("unable to send auth frame")
		return
	}

	api.runProviderSession(ctx, conn, identity)
}

// runProviderSession selects the vendor from the persona and relays the
// conversation until either side ends it. A missing or unknown provider
// terminates the connection cleanly; there is no default vendor.
func (api *HTTP) runProviderSession(ctx context.Context, conn *device.Connection, identity model.Identity) {
	logger := zerolog.Ctx(ctx)

	dialer, err := api.selector.Select(identity.Persona)
	if err != nil {
		logger.Error().Err(err).Str("discriminator", identity.Persona.Provider).Msg("no provider for persona")
		return
	}

	history, err := api.store.ListChatHistory(ctx, identity.UserID, identity.Persona.Key, chatHistoryLimit)
	if err != nil {
		// a fresh conversation beats a dead connection
		logger.Warn().Err(err).Msg("chat history unavailable")
		history = nil
	}

	params := provider.SessionParams{
		Conn:         conn,
		Identity:     identity,
		FirstMessage: provider.BuildFirstMessage(identity, history),
		SystemPrompt: provider.BuildSystemPrompt(identity, history),
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, err := dialer.Open(sctx, params)
	if err != nil {
		logger.Error().Err(err).Str("provider", dialer.Name()).Msg("unable to open provider session")
		return
	}
	defer func() {
		_ = session.Close()
	}()

	err = session.Run(sctx)
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Debug().Msg("session ended")
		return
	}

	logger.Warn().Err(err).Msg("session terminated")
}
