package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saidarshan/devicegateway/internal/model"
)

func seeded() *Memory {
	m := NewMemory()
	m.AddDevice(model.Device{ID: "device-1", UserID: "user-1", MAC: "aa:bb"})
	m.AddBhajan(model.Bhajan{ID: 1, Name: "Morning", URL: "https://cdn.example/1.mp3"})

	return m
}

func TestAddDeviceSeedsStoppedStatus(t *testing.T) {
	m := seeded()

	st, err := m.GetPlaybackStatus(context.Background(), "device-1")
	if err != nil {
		t.Fatalf("exp nil got %v", err)
	}
	if st.State != model.StateStopped {
		t.Fatalf("exp %s got %s", model.StateStopped, st.State)
	}
}

func TestWritePlaybackStatusSyncsDevice(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	b, _ := m.GetBhajan(ctx, 1)
	now := time.Now()
	err := m.WritePlaybackStatus(ctx, model.PlaybackStatus{
		DeviceID:  "device-1",
		State:     model.StatePlaying,
		StartedAt: &now,
		Selected:  &b,
	})
	if err != nil {
		t.Fatalf("exp nil got %v", err)
	}

	d, _ := m.GetDevice(ctx, "device-1")
	if d.SelectedBhajanID == nil || *d.SelectedBhajanID != 1 {
		t.Fatalf("exp selected 1 got %v", d.SelectedBhajanID)
	}
}

func TestWritePlaybackStatusUnknownDevice(t *testing.T) {
	m := seeded()

	err := m.WritePlaybackStatus(context.Background(), model.PlaybackStatus{DeviceID: "ghost"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("exp %v got %v", model.ErrNotFound, err)
	}
}

func TestGetDeviceByMAC(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	d, err := m.GetDeviceByMAC(ctx, "aa:bb")
	if err != nil {
		t.Fatalf("exp nil got %v", err)
	}
	if d.ID != "device-1" {
		t.Fatalf("exp device-1 got %s", d.ID)
	}

	if _, err = m.GetDeviceByMAC(ctx, "00:00"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("exp %v got %v", model.ErrNotFound, err)
	}
}

func TestListHistoryNewestFirst(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = m.AppendHistory(ctx, model.HistoryEntry{
			ID:       string(rune('a' + i)),
			DeviceID: "device-1",
			BhajanID: 1,
			PlayedAt: time.Now().Add(time.Duration(i) * time.Minute),
		})
	}
	_ = m.AppendHistory(ctx, model.HistoryEntry{ID: "other", DeviceID: "device-2", BhajanID: 1})

	entries, err := m.ListHistory(ctx, "device-1", 2)
	if err != nil {
		t.Fatalf("exp nil got %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("exp 2 got %d", len(entries))
	}
	if entries[0].ID != "c" || entries[1].ID != "b" {
		t.Fatalf("exp newest first got %s %s", entries[0].ID, entries[1].ID)
	}
}

func TestListChatHistoryTruncates(t *testing.T) {
	m := seeded()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m.AddChat("user-1", model.ChatMessage{Role: "user", Content: string(rune('a' + i))})
	}

	msgs, err := m.ListChatHistory(ctx, "user-1", "", 3)
	if err != nil {
		t.Fatalf("exp nil got %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("exp 3 got %d", len(msgs))
	}
	if msgs[0].Content != "c" || msgs[2].Content != "e" {
		t.Fatalf("exp newest window oldest-first got %s..%s", msgs[0].Content, msgs[2].Content)
	}
}
