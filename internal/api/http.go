package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/saidarshan/devicegateway/internal/auth"
	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/device"
	"github.com/saidarshan/devicegateway/internal/playback"
	"github.com/saidarshan/devicegateway/internal/provider"
	"github.com/saidarshan/devicegateway/internal/store"
)

const MaxHeaderBytes = 256 * (1 << 10) // 256 KiB

type HTTP struct {
	srv *http.Server

	store    store.Store
	authn    *auth.Authenticator
	control  *playback.Controller
	registry *device.Registry
	fanout   *device.Fanout
	selector *provider.Selector

	logger   zerolog.Logger
	notifier *raven.Client

	bootTime     time.Time
	requestCount int64
}

// NewHTTP prepares new http service
func NewHTTP(
	cfg config.Application,
	st store.Store,
	authn *auth.Authenticator,
	control *playback.Controller,
	registry *device.Registry,
	fanout *device.Fanout,
	selector *provider.Selector,
	logger zerolog.Logger,
	notifier *raven.Client,
) (*HTTP, error) {
	to := cfg.HTTP.Timeout.Std()
	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		ReadTimeout:       to,
		ReadHeaderTimeout: to,
		IdleTimeout:       to,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	api := &HTTP{
		srv:      srv,
		store:    st,
		authn:    authn,
		control:  control,
		registry: registry,
		fanout:   fanout,
		selector: selector,
		logger:   logger,
		notifier: notifier,
		bootTime: time.Now(),
	}
	api.setupRoutes()

	return api, nil
}

func (api *HTTP) setupRoutes() {
	router := mux.NewRouter()

	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/ws", api.handleWS)

	// api/v1 base path handlers
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(middlewareCounter(api), middlewareRequestID(), middlewareLogger(api.logger))
	v1.HandleFunc("/info", api.handleInfo)
	v1.HandleFunc("/bhajans", api.handleListBhajans).Methods(http.MethodGet)
	v1.HandleFunc("/devices/by-mac/{mac}/bhajan", api.handleSelectedBhajanByMAC).Methods(http.MethodGet)
	v1.HandleFunc("/devices/{device_id}/bhajan", api.handleSelectedBhajan).Methods(http.MethodGet)
	v1.HandleFunc("/devices/{device_id}/bhajan", api.handleSelectBhajan).Methods(http.MethodPost)
	v1.HandleFunc("/devices/{device_id}/bhajan/status", api.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/devices/{device_id}/bhajan/control", api.handleControl).Methods(http.MethodPost)
	v1.HandleFunc("/devices/{device_id}/bhajan/default", api.handleSetDefault).Methods(http.MethodPost)
	v1.HandleFunc("/devices/{device_id}/bhajan/history", api.handleHistory).Methods(http.MethodGet)

	api.srv.Handler = middlewareCORS(router)
}

// Handler exposes the configured root handler for tests.
func (api *HTTP) Handler() http.Handler {
	return api.srv.Handler
}

// Serve connections
func (api *HTTP) Serve() {
	go func() {
		api.logger.Info().Str("listen", api.srv.Addr).Msg("serving http")
		err := api.srv.ListenAndServe()
		if err != nil {
			api.logger.Error().Err(err).Msg("interrupted")
		}
	}()
}

// Shutdown the server
func (api *HTTP) Shutdown(ctx context.Context) error {
	return api.srv.Shutdown(ctx)
}

func asJSON(ctx context.Context, w http.ResponseWriter, obj interface{}, code int) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		logger := zerolog.Ctx(ctx)
		logger.Error().Err(err).Msg("encoding json")
	}
}
