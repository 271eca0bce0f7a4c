package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	gw "github.com/saidarshan/devicegateway"
	"github.com/saidarshan/devicegateway/internal/auth"
	"github.com/saidarshan/devicegateway/internal/config"
	"github.com/saidarshan/devicegateway/internal/device"
	"github.com/saidarshan/devicegateway/internal/model"
	"github.com/saidarshan/devicegateway/internal/playback"
	"github.com/saidarshan/devicegateway/internal/provider"
	"github.com/saidarshan/devicegateway/internal/pubsub"
	"github.com/saidarshan/devicegateway/internal/store"
	gwtime "github.com/saidarshan/devicegateway/internal/time"
)

const (
	ownerToken    = "owner-token"
	intruderToken = "intruder-token"
)

func newTestAPI(t *testing.T) (*HTTP, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	mem.AddIdentity(ownerToken, model.Identity{UserID: "user-1"})
	mem.AddIdentity(intruderToken, model.Identity{UserID: "user-2"})
	mem.AddDevice(model.Device{ID: "device-1", UserID: "user-1", MAC: "aa:bb:cc:dd:ee:ff"})
	mem.AddBhajan(model.Bhajan{ID: 1, Name: "Morning", URL: "https://cdn.example/1.mp3"})

	cfg := config.Application{
		HTTP: &config.HTTP{Listen: "127.0.0.1:0", Timeout: gwtime.Duration(time.Second * 5)},
	}

	registry := device.NewRegistry()
	fanout := device.NewFanout(registry, pubsub.New())

	api, err := NewHTTP(
		cfg,
		mem,
		auth.New(mem, time.Second),
		playback.NewController(mem),
		registry,
		fanout,
		provider.NewSelector(config.Providers{}),
		zerolog.Nop(),
		nil,
	)
	if err != nil {
		t.Fatalf("building api: %v", err)
	}

	return api, mem
}

func do(api *HTTP, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	r := httptest.NewRequest(method, target, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, r)

	return w
}

func TestGetInfo(t *testing.T) {
	gw.Branch = "master"
	gw.Revision = "00000000"

	api, _ := newTestAPI(t)

	w := do(api, http.MethodGet, "/api/v1/info", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}

	var got struct {
		Revision         string `json:"revision"`
		Branch           string `json:"branch"`
		ConnectedDevices int    `json:"connected_devices"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &got)

	if got.Revision != gw.Revision {
		t.Fatalf("exp %s got %s", gw.Revision, got.Revision)
	}
	if got.ConnectedDevices != 0 {
		t.Fatalf("exp 0 got %d", got.ConnectedDevices)
	}
}

func TestListBhajansRequiresAuth(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodGet, "/api/v1/bhajans", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("exp %d got %d", http.StatusUnauthorized, w.Code)
	}

	w = do(api, http.MethodGet, "/api/v1/bhajans", ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}

	var got []model.Bhajan
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if len(got) != 1 {
		t.Fatalf("exp 1 bhajan got %d", len(got))
	}
}

func TestSelectedBhajanNoneSelected(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodGet, "/api/v1/devices/device-1/bhajan", ownerToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("exp %d got %d", http.StatusNotFound, w.Code)
	}
}

func TestSelectThenFetchBhajan(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan", ownerToken, map[string]int64{"bhajan_id": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var ack struct {
		Success bool `json:"success"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &ack)
	if !ack.Success {
		t.Fatal("exp success")
	}

	for _, target := range []string{
		"/api/v1/devices/device-1/bhajan",
		"/api/v1/devices/by-mac/aa:bb:cc:dd:ee:ff/bhajan",
	} {
		w = do(api, http.MethodGet, target, ownerToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: exp %d got %d", target, http.StatusOK, w.Code)
		}

		var got struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &got)
		if got.URL != "https://cdn.example/1.mp3" {
			t.Fatalf("%s: exp url got %q", target, got.URL)
		}
	}
}

func TestSelectBhajanRequiresBody(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan", ownerToken, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("exp %d got %d", http.StatusBadRequest, w.Code)
	}
}

func TestSetDefaultUnknownBhajan(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan/default", ownerToken, map[string]int64{"bhajan_id": 404})
	if w.Code != http.StatusNotFound {
		t.Fatalf("exp %d got %d", http.StatusNotFound, w.Code)
	}
}

func TestControlPlay(t *testing.T) {
	api, _ := newTestAPI(t)

	body := map[string]interface{}{"action": "play", "bhajan_id": 1}
	w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan/control", ownerToken, body)
	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var got map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &got)

	if got["current_bhajan_status"] != "playing" {
		t.Fatalf("exp playing got %v", got["current_bhajan_status"])
	}
	if got["bhajan_playback_started_at"] == nil {
		t.Fatal("exp started_at to be set")
	}
	if got["selected_bhajan"] == nil {
		t.Fatal("exp selected bhajan to be set")
	}
}

func TestControlInvalidAction(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan/control", ownerToken, map[string]string{"action": "rewind"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("exp %d got %d", http.StatusBadRequest, w.Code)
	}

	w = do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan/control", ownerToken, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("exp %d got %d", http.StatusBadRequest, w.Code)
	}
}

func TestControlForbidden(t *testing.T) {
	api, _ := newTestAPI(t)

	body := map[string]interface{}{"action": "play", "bhajan_id": 1}
	w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan/control", intruderToken, body)
	if w.Code != http.StatusForbidden {
		t.Fatalf("exp %d got %d", http.StatusForbidden, w.Code)
	}
}

func TestControlUnknownDevice(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodPost, "/api/v1/devices/ghost/bhajan/control", ownerToken, map[string]string{"action": "stop"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("exp %d got %d", http.StatusNotFound, w.Code)
	}
}

func TestStatusShape(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodGet, "/api/v1/devices/device-1/bhajan/status", ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}

	var got map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &got)

	for _, key := range []string{
		"device_id",
		"current_bhajan_status",
		"current_bhajan_position",
		"bhajan_playback_started_at",
		"selected_bhajan",
		"default_bhajan",
	} {
		if _, ok := got[key]; !ok {
			t.Fatalf("status body missing %q: %s", key, w.Body.String())
		}
	}

	if got["current_bhajan_status"] != "stopped" {
		t.Fatalf("exp stopped got %v", got["current_bhajan_status"])
	}
}

func TestHistoryAfterPlayStop(t *testing.T) {
	api, _ := newTestAPI(t)

	play := map[string]interface{}{"action": "play", "bhajan_id": 1}
	if w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan/control", ownerToken, play); w.Code != http.StatusOK {
		t.Fatalf("play: exp %d got %d", http.StatusOK, w.Code)
	}
	if w := do(api, http.MethodPost, "/api/v1/devices/device-1/bhajan/control", ownerToken, map[string]string{"action": "stop"}); w.Code != http.StatusOK {
		t.Fatalf("stop: exp %d got %d", http.StatusOK, w.Code)
	}

	w := do(api, http.MethodGet, "/api/v1/devices/device-1/bhajan/history", ownerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("exp %d got %d", http.StatusOK, w.Code)
	}

	var entries []model.HistoryEntry
	_ = json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 2 {
		t.Fatalf("exp 2 entries got %d", len(entries))
	}

	w = do(api, http.MethodGet, "/api/v1/devices/device-1/bhajan/history?limit=1", ownerToken, nil)
	entries = entries[:0]
	_ = json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 {
		t.Fatalf("exp 1 entry got %d", len(entries))
	}
}

func TestHistoryForbidden(t *testing.T) {
	api, _ := newTestAPI(t)

	w := do(api, http.MethodGet, "/api/v1/devices/device-1/bhajan/history", intruderToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("exp %d got %d", http.StatusForbidden, w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	api, _ := newTestAPI(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/devices/device-1/bhajan/control", nil)
	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("exp %d got %d", http.StatusNoContent, w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("exp * got %q", got)
	}
}
