// Package store is the persistence boundary of the gateway. Identities,
// devices, bhajans and playback state live in the backing database; the
// gateway only keeps a projection for the duration of a single request
// or connection.
package store

import (
	"context"

	"github.com/saidarshan/devicegateway/internal/model"
)

// Store is the contract the rest of the gateway programs against.
// Every call is synchronous request/response; unreachable backends
// surface as model.ErrPersistence, absent rows as model.ErrNotFound.
type Store interface {
	// GetIdentity resolves a bearer token to the full identity, including
	// persona and device flags. Unknown tokens yield model.ErrUnauthorized.
	GetIdentity(ctx context.Context, token string) (model.Identity, error)

	GetDevice(ctx context.Context, deviceID string) (model.Device, error)
	GetDeviceByMAC(ctx context.Context, mac string) (model.Device, error)

	GetBhajan(ctx context.Context, id int64) (model.Bhajan, error)
	ListBhajans(ctx context.Context) ([]model.Bhajan, error)

	GetPlaybackStatus(ctx context.Context, deviceID string) (model.PlaybackStatus, error)
	// WritePlaybackStatus persists the whole status row in one update.
	// Partial writes are not possible through this interface.
	WritePlaybackStatus(ctx context.Context, status model.PlaybackStatus) error

	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	ListHistory(ctx context.Context, deviceID string, limit int) ([]model.HistoryEntry, error)

	SetSelectedBhajan(ctx context.Context, deviceID string, bhajanID int64) error
	SetDefaultBhajan(ctx context.Context, deviceID string, bhajanID int64) error

	ListChatHistory(ctx context.Context, userID, personaKey string, limit int) ([]model.ChatMessage, error)
}
