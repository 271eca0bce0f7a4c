// Package playback holds the authoritative per-device playback state
// machine. Every transition is an ownership-checked read-modify-write
// against the persistence store, serialized per device.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/model"
	"github.com/saidarshan/devicegateway/internal/store"
)

// Actions accepted by Apply.
const (
	ActionPlay   = "play"
	ActionPause  = "pause"
	ActionStop   = "stop"
	ActionResume = "resume"
)

// Command is one control request against a device.
type Command struct {
	Action   string
	BhajanID *int64
}

// Controller linearizes transitions per device: each Apply re-reads the
// persisted status under the device's lock, mutates it, and writes the
// whole row back before returning. Nothing is cached between calls.
type Controller struct {
	store store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

func NewController(s store.Store) *Controller {
	return &Controller{
		store: s,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (c *Controller) deviceLock(deviceID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[deviceID] = l
	}

	return l
}

// Apply runs one command through the transition table. The caller's user id
// must own the target device; a mismatch yields model.ErrForbidden with no
// state change. The returned status is the persisted result.
func (c *Controller) Apply(ctx context.Context, userID, deviceID string, cmd Command) (model.PlaybackStatus, error) {
	logger := zerolog.Ctx(ctx)

	device, err := c.store.GetDevice(ctx, deviceID)
	if err != nil {
		return model.PlaybackStatus{}, err
	}
	if device.UserID != userID {
		logger.Warn().Str("device_id", deviceID).Str("user_id", userID).Msg("ownership mismatch")
		return model.PlaybackStatus{}, model.ErrForbidden
	}

	lock := c.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	status, err := c.store.GetPlaybackStatus(ctx, deviceID)
	if err != nil {
		return model.PlaybackStatus{}, err
	}

	now := c.now().UTC()

	switch cmd.Action {
	case ActionPlay:
		if cmd.BhajanID == nil {
			return model.PlaybackStatus{}, model.ErrInvalidCommand
		}

		bhajan, err := c.store.GetBhajan(ctx, *cmd.BhajanID)
		if err != nil {
			return model.PlaybackStatus{}, err
		}

		// Selecting a track always begins a fresh play, whatever was
		// happening before.
		status.Selected = &bhajan
		status.State = model.StatePlaying
		status.StartedAt = &now
		status.Position = 0

		entry := model.HistoryEntry{
			ID:       uuid.New(),
			DeviceID: deviceID,
			BhajanID: bhajan.ID,
			PlayedAt: now,
		}
		if err = c.store.AppendHistory(ctx, entry); err != nil {
			return model.PlaybackStatus{}, err
		}

	case ActionResume:
		if status.Selected == nil {
			return model.PlaybackStatus{}, model.ErrInvalidTransition
		}

		// Restart the elapsed-time clock unless we were already playing.
		if status.State != model.StatePlaying {
			status.StartedAt = &now
		}
		status.State = model.StatePlaying

	case ActionPause:
		status.State = model.StatePaused
		// StartedAt and Selected stay as they are; position freezing is a
		// display concern.

	case ActionStop:
		if status.Selected != nil && status.StartedAt != nil {
			duration := int(now.Sub(*status.StartedAt).Seconds())
			if duration < 0 {
				duration = 0
			}

			entry := model.HistoryEntry{
				ID:              uuid.New(),
				DeviceID:        deviceID,
				BhajanID:        status.Selected.ID,
				PlayedAt:        now,
				DurationSeconds: &duration,
				Completed:       false,
			}
			if err = c.store.AppendHistory(ctx, entry); err != nil {
				return model.PlaybackStatus{}, err
			}
		}

		// Selected is retained so the UI can show the last played track.
		status.State = model.StateStopped
		status.StartedAt = nil
		status.Position = 0

	default:
		return model.PlaybackStatus{}, model.ErrInvalidCommand
	}

	if err = c.store.WritePlaybackStatus(ctx, status); err != nil {
		return model.PlaybackStatus{}, err
	}

	logger.Info().
		Str("device_id", deviceID).
		Str("action", cmd.Action).
		Str("state", string(status.State)).
		Msg("transition applied")

	return status, nil
}

// Status re-reads the persisted record, with the same ownership gate as
// mutations. Devices may read their own status.
func (c *Controller) Status(ctx context.Context, identity model.Identity, deviceID string) (model.PlaybackStatus, error) {
	device, err := c.store.GetDevice(ctx, deviceID)
	if err != nil {
		return model.PlaybackStatus{}, err
	}
	if device.UserID != identity.UserID && identity.DeviceID != deviceID {
		return model.PlaybackStatus{}, model.ErrForbidden
	}

	return c.store.GetPlaybackStatus(ctx, deviceID)
}
