package store

import (
	"context"
	"sync"

	"github.com/saidarshan/devicegateway/internal/model"
)

// Memory is a mutex-guarded in-memory Store. It backs the -dev mode and
// the test suites; semantics mirror the postgres implementation.
type Memory struct {
	mu         sync.RWMutex
	identities map[string]model.Identity // token -> identity
	devices    map[string]*model.Device
	bhajans    map[int64]model.Bhajan
	statuses   map[string]model.PlaybackStatus
	history    []model.HistoryEntry
	chats      map[string][]model.ChatMessage // userID -> messages
}

func NewMemory() *Memory {
	return &Memory{
		identities: make(map[string]model.Identity),
		devices:    make(map[string]*model.Device),
		bhajans:    make(map[int64]model.Bhajan),
		statuses:   make(map[string]model.PlaybackStatus),
		chats:      make(map[string][]model.ChatMessage),
	}
}

// AddIdentity registers a token for lookup. Test helper.
func (m *Memory) AddIdentity(token string, id model.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[token] = id
}

// AddDevice stores a device and an initial stopped status for it.
func (m *Memory) AddDevice(d model.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev := d
	m.devices[d.ID] = &dev
	if _, ok := m.statuses[d.ID]; !ok {
		m.statuses[d.ID] = model.PlaybackStatus{DeviceID: d.ID, State: model.StateStopped}
	}
}

// AddBhajan stores a track.
func (m *Memory) AddBhajan(b model.Bhajan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bhajans[b.ID] = b
}

// AddChat appends a chat message for a user.
func (m *Memory) AddChat(userID string, msg model.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[userID] = append(m.chats[userID], msg)
}

func (m *Memory) GetIdentity(_ context.Context, token string) (model.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.identities[token]
	if !ok {
		return model.Identity{}, model.ErrUnauthorized
	}

	return id, nil
}

func (m *Memory) GetDevice(_ context.Context, deviceID string) (model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return model.Device{}, model.ErrNotFound
	}

	return *d, nil
}

func (m *Memory) GetDeviceByMAC(_ context.Context, mac string) (model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.devices {
		if d.MAC == mac {
			return *d, nil
		}
	}

	return model.Device{}, model.ErrNotFound
}

func (m *Memory) GetBhajan(_ context.Context, id int64) (model.Bhajan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bhajans[id]
	if !ok {
		return model.Bhajan{}, model.ErrNotFound
	}

	return b, nil
}

func (m *Memory) ListBhajans(_ context.Context) ([]model.Bhajan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bhajans := make([]model.Bhajan, 0, len(m.bhajans))
	for _, b := range m.bhajans {
		bhajans = append(bhajans, b)
	}

	return bhajans, nil
}

func (m *Memory) GetPlaybackStatus(_ context.Context, deviceID string) (model.PlaybackStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.statuses[deviceID]
	if !ok {
		return model.PlaybackStatus{}, model.ErrNotFound
	}

	return st, nil
}

func (m *Memory) WritePlaybackStatus(_ context.Context, status model.PlaybackStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[status.DeviceID]; !ok {
		return model.ErrNotFound
	}
	m.statuses[status.DeviceID] = status

	if d := m.devices[status.DeviceID]; d != nil {
		if status.Selected != nil {
			id := status.Selected.ID
			d.SelectedBhajanID = &id
		} else {
			d.SelectedBhajanID = nil
		}
	}

	return nil
}

func (m *Memory) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, entry)

	return nil
}

func (m *Memory) ListHistory(_ context.Context, deviceID string, limit int) ([]model.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]model.HistoryEntry, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.history[i].DeviceID == deviceID {
			entries = append(entries, m.history[i])
		}
	}

	return entries, nil
}

func (m *Memory) SetSelectedBhajan(_ context.Context, deviceID string, bhajanID int64) error {
	return m.setBhajan(deviceID, bhajanID, true)
}

func (m *Memory) SetDefaultBhajan(_ context.Context, deviceID string, bhajanID int64) error {
	return m.setBhajan(deviceID, bhajanID, false)
}

func (m *Memory) setBhajan(deviceID string, bhajanID int64, selected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return model.ErrNotFound
	}

	id := bhajanID
	if selected {
		d.SelectedBhajanID = &id
		st := m.statuses[deviceID]
		if b, ok := m.bhajans[bhajanID]; ok {
			bh := b
			st.Selected = &bh
		}
		m.statuses[deviceID] = st
	} else {
		d.DefaultBhajanID = &id
		st := m.statuses[deviceID]
		if b, ok := m.bhajans[bhajanID]; ok {
			bh := b
			st.Default = &bh
		}
		m.statuses[deviceID] = st
	}

	return nil
}

func (m *Memory) ListChatHistory(_ context.Context, userID, _ string, limit int) ([]model.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.chats[userID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]model.ChatMessage, len(msgs))
	copy(out, msgs)

	return out, nil
}
