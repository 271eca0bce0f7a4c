// Package auth gates the transport boundary: it turns a bearer credential
// and connection metadata into a resolved identity, or rejects the request
// before any session state exists.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/model"
	"github.com/saidarshan/devicegateway/internal/store"
)

// Fallbacks applied when the persisted configuration omits a field.
const (
	DefaultVolume      = 20
	DefaultPitchFactor = 1
)

const defaultTimeout = time.Second * 5

// Metadata carries the auxiliary headers of the connection-upgrade request.
type Metadata struct {
	WiFiRSSI   int
	RemoteAddr string
}

type Authenticator struct {
	store   store.Store
	timeout time.Duration
}

func New(s store.Store, timeout time.Duration) *Authenticator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Authenticator{store: s, timeout: timeout}
}

// ParseBearer extracts the bearer token from the Authorization header.
func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}

	return token, true
}

// Authenticate resolves the token to a full identity. The lookup is bounded
// by the configured timeout so an unreachable identity store fails this
// connection without stalling the accept path. Purely a gate, no session
// state is created here.
func (a *Authenticator) Authenticate(ctx context.Context, token string, meta Metadata) (model.Identity, error) {
	logger := zerolog.Ctx(ctx)

	if token == "" {
		return model.Identity{}, model.ErrUnauthorized
	}

	// Signature verification belongs to the identity store; locally we only
	// refuse tokens that are already expired and log the claimed subject.
	if claims, ok := sniffClaims(token); ok {
		exp, err := claims.GetExpirationTime()
		if err == nil && exp != nil && exp.Before(time.Now()) {
			logger.Debug().Time("expired_at", exp.Time).Msg("expired token")
			return model.Identity{}, model.ErrUnauthorized
		}

		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			logger.Debug().Str("subject", sub).Msg("token subject")
		}
	}

	lctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	identity, err := a.store.GetIdentity(lctx, token)
	if err != nil {
		return model.Identity{}, err
	}

	applyDefaults(&identity)

	zerolog.Ctx(ctx).Debug().
		Str("user_id", identity.UserID).
		Str("device_id", identity.DeviceID).
		Int("wifi_rssi", meta.WiFiRSSI).
		Msg("authenticated")

	return identity, nil
}

func sniffClaims(token string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// opaque tokens are fine, the store decides
		return nil, false
	}

	return claims, true
}

func applyDefaults(id *model.Identity) {
	if id.Device.Volume == 0 {
		id.Device.Volume = DefaultVolume
	}
	if id.Persona.PitchFactor == 0 {
		id.Persona.PitchFactor = DefaultPitchFactor
	}
}
