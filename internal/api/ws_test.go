package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/saidarshan/devicegateway/internal/auth"
	"github.com/saidarshan/devicegateway/internal/model"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWSRejectsMissingToken(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err == nil {
		t.Fatal("exp dial error")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("exp %d got %v", http.StatusUnauthorized, resp)
	}
}

func TestWSRejectsUnknownToken(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	header := http.Header{"Authorization": []string{"Bearer nope"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err == nil {
		t.Fatal("exp dial error")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("exp %d got %v", http.StatusUnauthorized, resp)
	}
}

func TestWSSendsAuthFrameThenClosesOnUnknownProvider(t *testing.T) {
	api, mem := newTestAPI(t)
	mem.AddIdentity("device-token", model.Identity{
		UserID:   "user-1",
		DeviceID: "device-1",
		Persona:  model.PersonaConfig{Key: "sita", Provider: "nonesuch"},
	})

	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	header := http.Header{"Authorization": []string{"Bearer device-token"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	var frame struct {
		Type          string  `json:"type"`
		VolumeControl int     `json:"volume_control"`
		IsOTA         bool    `json:"is_ota"`
		IsReset       bool    `json:"is_reset"`
		PitchFactor   float64 `json:"pitch_factor"`
	}
	if err = conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading auth frame: %v", err)
	}

	if frame.Type != "auth" {
		t.Fatalf("exp auth got %s", frame.Type)
	}
	if frame.VolumeControl != auth.DefaultVolume {
		t.Fatalf("exp %d got %d", auth.DefaultVolume, frame.VolumeControl)
	}
	if frame.PitchFactor != auth.DefaultPitchFactor {
		t.Fatalf("exp %v got %v", float64(auth.DefaultPitchFactor), frame.PitchFactor)
	}

	// no provider means the gateway hangs up right after the handshake
	if _, _, err = conn.ReadMessage(); err == nil {
		t.Fatal("exp connection to be closed")
	}
}
