package model

import "time"

// PlaybackState is the playback phase of a device.
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePaused  PlaybackState = "paused"
	StatePlaying PlaybackState = "playing"
)

// Valid reports whether the state is one of the three known phases.
func (s PlaybackState) Valid() bool {
	switch s {
	case StateStopped, StatePaused, StatePlaying:
		return true
	}

	return false
}

// Bhajan is a named audio track. Immutable once created.
type Bhajan struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// PlaybackStatus is the authoritative playback record of a single device.
// Invariant: State == playing implies StartedAt != nil, and Selected != nil.
type PlaybackStatus struct {
	DeviceID  string        `json:"device_id"`
	State     PlaybackState `json:"current_bhajan_status"`
	Position  int           `json:"current_bhajan_position"`
	StartedAt *time.Time    `json:"bhajan_playback_started_at"`
	Selected  *Bhajan       `json:"selected_bhajan"`
	Default   *Bhajan       `json:"default_bhajan"`
}

// HistoryEntry is an append-only playback audit row. A row without a
// duration marks the start of a play, a row with one is written on stop.
type HistoryEntry struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"device_id"`
	BhajanID        int64     `json:"bhajan_id"`
	PlayedAt        time.Time `json:"played_at"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	Completed       bool      `json:"completed"`
}

// PersonaConfig selects the voice provider and its tuning for a user.
type PersonaConfig struct {
	Key         string  `json:"key"`
	Provider    string  `json:"provider"`
	Voice       string  `json:"voice"`
	PitchFactor float64 `json:"pitch_factor"`
}

// DeviceConfig carries the device flags sent in the auth frame.
type DeviceConfig struct {
	Volume  int  `json:"volume"`
	IsOTA   bool `json:"is_ota"`
	IsReset bool `json:"is_reset"`
}

// Identity is the resolved (user, device, persona) tuple for a connection.
// Resolved once per connection and immutable afterwards. DeviceID is empty
// for browser sessions that only drive the control surface.
type Identity struct {
	UserID   string        `json:"user_id"`
	DeviceID string        `json:"device_id"`
	Persona  PersonaConfig `json:"persona"`
	Device   DeviceConfig  `json:"device"`
}

// Device is the persisted device row. Reads only, the gateway never
// creates or deletes devices.
type Device struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	MAC              string `json:"mac_address"`
	Name             string `json:"name"`
	SelectedBhajanID *int64 `json:"selected_bhajan_id"`
	DefaultBhajanID  *int64 `json:"default_bhajan_id"`
}

// ChatMessage is a single line of prior conversation used to seed
// the provider session.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
