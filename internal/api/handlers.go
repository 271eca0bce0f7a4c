package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	gw "github.com/saidarshan/devicegateway"
	"github.com/saidarshan/devicegateway/internal/auth"
	"github.com/saidarshan/devicegateway/internal/fcontext"
	"github.com/saidarshan/devicegateway/internal/metrics"
	"github.com/saidarshan/devicegateway/internal/model"
	"github.com/saidarshan/devicegateway/internal/playback"
)

const defaultHistoryLimit = 50

func (api *HTTP) handleInfo(w http.ResponseWriter, r *http.Request) {
	var response = struct {
		Revision         string  `json:"revision"`
		Branch           string  `json:"branch"`
		BootTime         string  `json:"boot_time"`
		Uptime           float64 `json:"uptime"`
		RequestCount     int64   `json:"request_count"`
		ConnectedDevices int     `json:"connected_devices"`
	}{
		Revision:         gw.Revision,
		Branch:           gw.Branch,
		BootTime:         api.bootTime.String(),
		Uptime:           float64(int(time.Since(api.bootTime).Seconds())),
		RequestCount:     api.requestCount,
		ConnectedDevices: api.registry.Len(),
	}

	asJSON(r.Context(), w, &response, http.StatusOK)
}

func (api *HTTP) handleListBhajans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := api.identity(r); err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	bhajans, err := api.store.ListBhajans(ctx)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	asJSON(ctx, w, bhajans, http.StatusOK)
}

func (api *HTTP) handleSelectedBhajan(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]
	api.serveSelectedBhajan(w, r, func(ctx context.Context) (model.Device, error) {
		return api.store.GetDevice(ctx, deviceID)
	})
}

func (api *HTTP) handleSelectedBhajanByMAC(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["mac"]
	api.serveSelectedBhajan(w, r, func(ctx context.Context) (model.Device, error) {
		return api.store.GetDeviceByMAC(ctx, mac)
	})
}

// serveSelectedBhajan resolves a device by either key and answers with the
// locator of its selected track. Both lookups serve the same record.
func (api *HTTP) serveSelectedBhajan(w http.ResponseWriter, r *http.Request, lookup func(context.Context) (model.Device, error)) {
	ctx := r.Context()

	identity, err := api.identity(r)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	dev, err := lookup(ctx)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	if !ownsDevice(identity, dev) {
		api.serveError(ctx, w, r, model.ErrForbidden)
		return
	}

	if dev.SelectedBhajanID == nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   "no bhajan selected for this device",
			RequestID: fcontext.RequestID(ctx),
			Code:      http.StatusNotFound,
		})
		return
	}

	bhajan, err := api.store.GetBhajan(ctx, *dev.SelectedBhajanID)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	asJSON(ctx, w, struct {
		URL string `json:"url"`
	}{URL: bhajan.URL}, http.StatusOK)
}

func (api *HTTP) handleSelectBhajan(w http.ResponseWriter, r *http.Request) {
	api.setBhajan(w, r, api.store.SetSelectedBhajan)
}

func (api *HTTP) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	api.setBhajan(w, r, api.store.SetDefaultBhajan)
}

func (api *HTTP) setBhajan(w http.ResponseWriter, r *http.Request, write func(context.Context, string, int64) error) {
	ctx := r.Context()
	deviceID := mux.Vars(r)["device_id"]

	identity, err := api.identity(r)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	var body struct {
		BhajanID *int64 `json:"bhajan_id"`
	}
	if err = json.NewDecoder(r.Body).Decode(&body); err != nil || body.BhajanID == nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   "bhajan_id is required",
			RequestID: fcontext.RequestID(ctx),
			Code:      http.StatusBadRequest,
		})
		return
	}

	dev, err := api.store.GetDevice(ctx, deviceID)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}
	if !ownsDevice(identity, dev) {
		api.serveError(ctx, w, r, model.ErrForbidden)
		return
	}

	if _, err = api.store.GetBhajan(ctx, *body.BhajanID); err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	if err = write(ctx, deviceID, *body.BhajanID); err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	asJSON(ctx, w, struct {
		Success bool `json:"success"`
	}{Success: true}, http.StatusOK)
}

func (api *HTTP) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := mux.Vars(r)["device_id"]

	identity, err := api.identity(r)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	status, err := api.control.Status(ctx, identity, deviceID)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	asJSON(ctx, w, status, http.StatusOK)
}

func (api *HTTP) handleControl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := mux.Vars(r)["device_id"]

	identity, err := api.identity(r)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	var body struct {
		Action   string `json:"action"`
		BhajanID *int64 `json:"bhajan_id"`
	}
	if err = json.NewDecoder(r.Body).Decode(&body); err != nil || body.Action == "" {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   "action is required",
			RequestID: fcontext.RequestID(ctx),
			Code:      http.StatusBadRequest,
		})
		return
	}

	cmd := playback.Command{Action: body.Action, BhajanID: body.BhajanID}

	status, err := api.control.Apply(ctx, identity.UserID, deviceID, cmd)
	if err != nil {
		metrics.Commands.WithLabelValues(body.Action, "rejected").Inc()
		api.serveError(ctx, w, r, err)
		return
	}

	metrics.Commands.WithLabelValues(body.Action, "applied").Inc()

	// The transition is already durable; delivery to the device is a
	// latency optimization, polling reconciles the rest.
	api.fanout.PushCommand(ctx, deviceID, body.Action, body.BhajanID)
	api.fanout.BroadcastStatus(ctx, status)

	asJSON(ctx, w, status, http.StatusOK)
}

func (api *HTTP) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := mux.Vars(r)["device_id"]

	identity, err := api.identity(r)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	dev, err := api.store.GetDevice(ctx, deviceID)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}
	if !ownsDevice(identity, dev) {
		api.serveError(ctx, w, r, model.ErrForbidden)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, perr := strconv.Atoi(raw); perr == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := api.store.ListHistory(ctx, deviceID, limit)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	asJSON(ctx, w, entries, http.StatusOK)
}

// identity authenticates the caller of a control-plane request.
func (api *HTTP) identity(r *http.Request) (model.Identity, error) {
	token, ok := auth.ParseBearer(r)
	if !ok {
		return model.Identity{}, model.ErrUnauthorized
	}

	return api.authn.Authenticate(r.Context(), token, auth.Metadata{RemoteAddr: r.RemoteAddr})
}

// ownsDevice allows the owning user and the device itself.
func ownsDevice(identity model.Identity, dev model.Device) bool {
	return identity.UserID == dev.UserID || (identity.DeviceID != "" && identity.DeviceID == dev.ID)
}

func (api *HTTP) serveError(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) {
	var logger = zerolog.Ctx(ctx)
	var rid = fcontext.RequestID(ctx)

	var responseError model.ServiceError
	switch {
	case errors.As(err, &responseError):
		if responseError.Code == 0 {
			responseError.Code = http.StatusInternalServerError
		}
		responseError.RequestID = rid
	case errors.Is(err, model.ErrUnauthorized):
		responseError = model.ServiceError{Message: "unauthorized", RequestID: rid, Code: http.StatusUnauthorized}
	case errors.Is(err, model.ErrForbidden):
		responseError = model.ServiceError{Message: "forbidden", RequestID: rid, Code: http.StatusForbidden}
	case errors.Is(err, model.ErrNotFound):
		responseError = model.ServiceError{Message: "not found", RequestID: rid, Code: http.StatusNotFound}
	case errors.Is(err, model.ErrInvalidCommand), errors.Is(err, model.ErrInvalidTransition):
		responseError = model.ServiceError{Message: err.Error(), RequestID: rid, Code: http.StatusBadRequest}
	case errors.Is(err, model.ErrPersistence), errors.Is(err, model.ErrProviderFailed):
		// detail stays in the server log
		responseError = model.ServiceError{Message: "failed to contact upstream", RequestID: rid, Code: http.StatusBadGateway}
	default:
		responseError = model.ServiceError{Message: "internal error", RequestID: rid, Code: http.StatusInternalServerError}
	}

	logger.Error().Err(err).Int("code", responseError.Code).Msg("captured error")

	if api.notifier != nil && responseError.Code >= http.StatusInternalServerError {
		ravenRequest := raven.NewHttp(r)
		api.notifier.CaptureError(err, nil, ravenRequest)
	}

	asJSON(ctx, w, responseError, responseError.Code)
}
