package device

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/metrics"
	"github.com/saidarshan/devicegateway/internal/model"
	"github.com/saidarshan/devicegateway/internal/pubsub"
)

// StatusTopic is the pubsub topic status broadcasts go out on.
const StatusTopic pubsub.Topic = "bhajan_status"

// CommandMessage is the imperative envelope pushed gateway -> device.
type CommandMessage struct {
	Type      string    `json:"type"`
	Command   string    `json:"command"`
	BhajanID  *int64    `json:"bhajan_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusMessage is the informational envelope broadcast to subscribers
// and mirrored to the owning device.
type StatusMessage struct {
	Type      string               `json:"type"`
	Status    model.PlaybackStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// Fanout delivers commands to connected devices and relays status updates
// to in-process subscribers. Delivery is best-effort by design: a dropped
// push never fails the command, the device reconciles on its next poll.
type Fanout struct {
	registry *Registry
	bus      *pubsub.Core
	now      func() time.Time
}

func NewFanout(registry *Registry, bus *pubsub.Core) *Fanout {
	return &Fanout{registry: registry, bus: bus, now: time.Now}
}

// PushCommand sends a bhajan_command frame to the device's live connection.
// Reports whether the frame was handed to a connection; absence of one is
// not an error.
func (f *Fanout) PushCommand(ctx context.Context, deviceID, command string, bhajanID *int64) bool {
	logger := zerolog.Ctx(ctx)

	h, ok := f.registry.Lookup(deviceID)
	if !ok {
		logger.Debug().Str("device_id", deviceID).Msg("device not connected, command not pushed")
		metrics.Pushes.WithLabelValues("offline").Inc()

		return false
	}

	msg := CommandMessage{
		Type:      "bhajan_command",
		Command:   command,
		BhajanID:  bhajanID,
		Timestamp: f.now().UTC(),
	}

	if err := h.SendJSON(msg); err != nil {
		logger.Warn().Err(err).Str("device_id", deviceID).Msg("command push failed")
		metrics.Pushes.WithLabelValues("error").Inc()

		return false
	}

	metrics.Pushes.WithLabelValues("ok").Inc()

	return true
}

// BroadcastStatus notifies subscribers and mirrors the bhajan_status frame
// to the owning device connection when there is one.
func (f *Fanout) BroadcastStatus(ctx context.Context, status model.PlaybackStatus) {
	logger := zerolog.Ctx(ctx)

	msg := StatusMessage{
		Type:      "bhajan_status",
		Status:    status,
		Timestamp: f.now().UTC(),
	}

	f.bus.Notify(StatusTopic, msg)

	h, ok := f.registry.Lookup(status.DeviceID)
	if !ok {
		return
	}

	if err := h.SendJSON(msg); err != nil {
		logger.Debug().Err(err).Str("device_id", status.DeviceID).Msg("status push failed")
	}
}

// SubscribeStatus registers fn for every status broadcast.
func (f *Fanout) SubscribeStatus(fn func(StatusMessage)) {
	f.bus.Subscribe(StatusTopic, func(args ...interface{}) {
		if len(args) != 1 {
			return
		}
		if msg, ok := args[0].(StatusMessage); ok {
			fn(msg)
		}
	})
}
