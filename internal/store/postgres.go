package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/model"
)

// Postgres implements Store on top of a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgres connects the pool and pings it once so a bad DSN fails
// at boot instead of on the first request.
func NewPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "creating pgx pool")
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}

	return &Postgres{pool: pool, logger: logger.With().Str("pkg", "store").Logger()}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) GetIdentity(ctx context.Context, token string) (model.Identity, error) {
	const q = `
select t.user_id,
       coalesce(t.device_id, ''),
       coalesce(ps.key, ''),
       coalesce(ps.provider, ''),
       coalesce(ps.voice, ''),
       coalesce(ps.pitch_factor, 1),
       coalesce(d.volume, 20),
       coalesce(d.is_ota, false),
       coalesce(d.is_reset, false)
from api_tokens t
left join personalities ps on ps.user_id = t.user_id
left join devices d on d.id = t.device_id
where t.token = $1`

	var id model.Identity
	err := p.pool.QueryRow(ctx, q, token).Scan(
		&id.UserID,
		&id.DeviceID,
		&id.Persona.Key,
		&id.Persona.Provider,
		&id.Persona.Voice,
		&id.Persona.PitchFactor,
		&id.Device.Volume,
		&id.Device.IsOTA,
		&id.Device.IsReset,
	)
	if err == pgx.ErrNoRows {
		return model.Identity{}, model.ErrUnauthorized
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("identity lookup failed")
		return model.Identity{}, model.ErrPersistence
	}

	return id, nil
}

func (p *Postgres) GetDevice(ctx context.Context, deviceID string) (model.Device, error) {
	return p.getDevice(ctx, `where id = $1`, deviceID)
}

func (p *Postgres) GetDeviceByMAC(ctx context.Context, mac string) (model.Device, error) {
	return p.getDevice(ctx, `where mac_address = $1`, mac)
}

func (p *Postgres) getDevice(ctx context.Context, where, arg string) (model.Device, error) {
	q := `
select id, user_id, coalesce(mac_address, ''), coalesce(name, ''),
       selected_bhajan_id, default_bhajan_id
from devices ` + where

	var d model.Device
	err := p.pool.QueryRow(ctx, q, arg).Scan(
		&d.ID, &d.UserID, &d.MAC, &d.Name, &d.SelectedBhajanID, &d.DefaultBhajanID,
	)
	if err == pgx.ErrNoRows {
		return model.Device{}, model.ErrNotFound
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("device lookup failed")
		return model.Device{}, model.ErrPersistence
	}

	return d, nil
}

func (p *Postgres) GetBhajan(ctx context.Context, id int64) (model.Bhajan, error) {
	const q = `select id, name, url, created_at from bhajans where id = $1`

	var b model.Bhajan
	err := p.pool.QueryRow(ctx, q, id).Scan(&b.ID, &b.Name, &b.URL, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.Bhajan{}, model.ErrNotFound
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("bhajan lookup failed")
		return model.Bhajan{}, model.ErrPersistence
	}

	return b, nil
}

func (p *Postgres) ListBhajans(ctx context.Context) ([]model.Bhajan, error) {
	const q = `select id, name, url, created_at from bhajans order by name`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		p.logger.Error().Err(err).Msg("listing bhajans failed")
		return nil, model.ErrPersistence
	}
	defer rows.Close()

	bhajans := make([]model.Bhajan, 0)
	for rows.Next() {
		var b model.Bhajan
		if err = rows.Scan(&b.ID, &b.Name, &b.URL, &b.CreatedAt); err != nil {
			return nil, model.ErrPersistence
		}
		bhajans = append(bhajans, b)
	}
	if rows.Err() != nil {
		return nil, model.ErrPersistence
	}

	return bhajans, nil
}

func (p *Postgres) GetPlaybackStatus(ctx context.Context, deviceID string) (model.PlaybackStatus, error) {
	const q = `
select d.id,
       coalesce(d.current_bhajan_status, 'stopped'),
       coalesce(d.current_bhajan_position, 0),
       d.bhajan_playback_started_at,
       sb.id, sb.name, sb.url, sb.created_at,
       db.id, db.name, db.url, db.created_at
from devices d
left join bhajans sb on sb.id = d.selected_bhajan_id
left join bhajans db on db.id = d.default_bhajan_id
where d.id = $1`

	var (
		st                     model.PlaybackStatus
		selID, defID           *int64
		selName, selURL        *string
		defName, defURL        *string
		selCreated, defCreated *time.Time
	)

	err := p.pool.QueryRow(ctx, q, deviceID).Scan(
		&st.DeviceID, &st.State, &st.Position, &st.StartedAt,
		&selID, &selName, &selURL, &selCreated,
		&defID, &defName, &defURL, &defCreated,
	)
	if err == pgx.ErrNoRows {
		return model.PlaybackStatus{}, model.ErrNotFound
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("status lookup failed")
		return model.PlaybackStatus{}, model.ErrPersistence
	}

	if selID != nil {
		st.Selected = &model.Bhajan{ID: *selID, Name: *selName, URL: *selURL, CreatedAt: *selCreated}
	}
	if defID != nil {
		st.Default = &model.Bhajan{ID: *defID, Name: *defName, URL: *defURL, CreatedAt: *defCreated}
	}

	return st, nil
}

func (p *Postgres) WritePlaybackStatus(ctx context.Context, status model.PlaybackStatus) error {
	const q = `
update devices
set current_bhajan_status = $2,
    current_bhajan_position = $3,
    bhajan_playback_started_at = $4,
    selected_bhajan_id = $5
where id = $1`

	var selID *int64
	if status.Selected != nil {
		selID = &status.Selected.ID
	}

	tag, err := p.pool.Exec(ctx, q, status.DeviceID, string(status.State), status.Position, status.StartedAt, selID)
	if err != nil {
		p.logger.Error().Err(err).Str("device_id", status.DeviceID).Msg("status write failed")
		return model.ErrPersistence
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	return nil
}

func (p *Postgres) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	const q = `
insert into bhajan_playback_history (id, device_id, bhajan_id, played_at, duration_seconds, completed)
values ($1, $2, $3, $4, $5, $6)`

	_, err := p.pool.Exec(ctx, q,
		entry.ID, entry.DeviceID, entry.BhajanID, entry.PlayedAt, entry.DurationSeconds, entry.Completed)
	if err != nil {
		p.logger.Error().Err(err).Str("device_id", entry.DeviceID).Msg("history append failed")
		return model.ErrPersistence
	}

	return nil
}

func (p *Postgres) ListHistory(ctx context.Context, deviceID string, limit int) ([]model.HistoryEntry, error) {
	const q = `
select id, device_id, bhajan_id, played_at, duration_seconds, completed
from bhajan_playback_history
where device_id = $1
order by played_at desc
limit $2`

	rows, err := p.pool.Query(ctx, q, deviceID, limit)
	if err != nil {
		p.logger.Error().Err(err).Msg("listing history failed")
		return nil, model.ErrPersistence
	}
	defer rows.Close()

	entries := make([]model.HistoryEntry, 0, limit)
	for rows.Next() {
		var e model.HistoryEntry
		if err = rows.Scan(&e.ID, &e.DeviceID, &e.BhajanID, &e.PlayedAt, &e.DurationSeconds, &e.Completed); err != nil {
			return nil, model.ErrPersistence
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, model.ErrPersistence
	}

	return entries, nil
}

func (p *Postgres) SetSelectedBhajan(ctx context.Context, deviceID string, bhajanID int64) error {
	return p.setBhajanColumn(ctx, `selected_bhajan_id`, deviceID, bhajanID)
}

func (p *Postgres) SetDefaultBhajan(ctx context.Context, deviceID string, bhajanID int64) error {
	return p.setBhajanColumn(ctx, `default_bhajan_id`, deviceID, bhajanID)
}

func (p *Postgres) setBhajanColumn(ctx context.Context, column, deviceID string, bhajanID int64) error {
	q := `update devices set ` + column + ` = $2 where id = $1`

	tag, err := p.pool.Exec(ctx, q, deviceID, bhajanID)
	if err != nil {
		p.logger.Error().Err(err).Str("device_id", deviceID).Msg("bhajan column update failed")
		return model.ErrPersistence
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	return nil
}

func (p *Postgres) ListChatHistory(ctx context.Context, userID, personaKey string, limit int) ([]model.ChatMessage, error) {
	const q = `
select role, content, created_at
from chat_history
where user_id = $1 and ($2 = '' or persona_key = $2)
order by created_at desc
limit $3`

	rows, err := p.pool.Query(ctx, q, userID, personaKey, limit)
	if err != nil {
		p.logger.Error().Err(err).Msg("listing chat history failed")
		return nil, model.ErrPersistence
	}
	defer rows.Close()

	msgs := make([]model.ChatMessage, 0, limit)
	for rows.Next() {
		var m model.ChatMessage
		if err = rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, model.ErrPersistence
		}
		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, model.ErrPersistence
	}

	// oldest first, the prompt builder reads them in order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}
