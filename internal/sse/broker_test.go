package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/models"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "influx.update", Data: map[string]string{"path": "a.md"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: influx.update") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.md"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishVaultEvent_StaleThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger influx.stale.
	b.PublishVaultEvent(hub.OpContentModified, "a.md")
	// Second event immediately should NOT trigger another influx.stale.
	b.PublishVaultEvent(hub.OpDeleted, "b.md")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	staleCount := 0
	vaultCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "influx.stale") {
				staleCount++
			} else {
				vaultCount++
			}
		default:
			break loop
		}
	}

	if vaultCount != 2 {
		t.Errorf("vault events = %d, want 2", vaultCount)
	}
	if staleCount != 1 {
		t.Errorf("stale events = %d, want 1 (throttled)", staleCount)
	}
}

func TestHandle_RelaysSchedulerEvents(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	if err := b.Handle(context.Background(), hub.Event{Op: hub.OpDeleted, Document: &models.Document{Path: "gone.md"}}); err != nil {
		t.Fatal(err)
	}
	_ = b.Handle(context.Background(), hub.Event{Op: hub.OpSettingsSaved})

	want := []string{"event: vault.deleted", `"path":"gone.md"`, "event: influx.stale", "event: vault.settings-saved"}
	var got strings.Builder
	deadline := time.After(time.Second)
	for i := 0; i < 3; i++ {
		select {
		case msg := <-ch:
			got.Write(msg)
		case <-deadline:
			t.Fatalf("timeout, got %q", got.String())
		}
	}
	for _, w := range want {
		if !strings.Contains(got.String(), w) {
			t.Errorf("missing %q in %q", w, got.String())
		}
	}
}

func TestEncode(t *testing.T) {
	raw, err := Encode(Event{Type: "x", Data: map[string]int{"n": 1}})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "event: x\ndata: {\"n\":1}\n\n" {
		t.Errorf("frame = %q", raw)
	}
	if _, err := Encode(Event{Type: "bad", Data: make(chan int)}); err == nil {
		t.Error("unencodable data should fail")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "influx.update", Data: map[string]string{"path": "x.md"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: influx.update") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "influx.update", Data: map[string]string{"path": "x.md"}})
	b.PublishVaultEvent(hub.OpContentModified, "x.md")
}
