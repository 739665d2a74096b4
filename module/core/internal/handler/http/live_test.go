package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/broadcaster"
)

type staticSnapshot struct {
	snapshot domain.Snapshot
	err      error
}

func (s *staticSnapshot) Snapshot(context.Context) (domain.Snapshot, error) {
	return s.snapshot, s.err
}

type wireEvent struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

func setupLiveServer(t *testing.T, snap *staticSnapshot) (*broadcaster.Broadcaster, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := broadcaster.New(snap)
	r := gin.New()
	NewLiveHandler(b, snap, time.Second, nil).Register(r.Group(""))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return b, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e wireEvent
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	return e
}

func waitForSubscribers(t *testing.T, b *broadcaster.Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, b.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream_SnapshotThenEvents(t *testing.T) {
	b, srv := setupLiveServer(t, &staticSnapshot{})
	conn := dial(t, srv)

	first := readEvent(t, conn)
	if first.Type != string(domain.EventInitialState) {
		t.Fatalf("expected initialState first, got %s", first.Type)
	}

	b.Publish(
		domain.NewEvent(domain.EventVehicleLocationUpdate, time.Now(), domain.VehicleState{}),
		domain.NewEvent(domain.EventAlertCreated, time.Now(), domain.Alert{ID: 1}),
	)

	e1 := readEvent(t, conn)
	e2 := readEvent(t, conn)
	if e1.Type != string(domain.EventVehicleLocationUpdate) || e2.Type != string(domain.EventAlertCreated) {
		t.Fatalf("unexpected order: %s, %s", e1.Type, e2.Type)
	}
	if e2.Seq != e1.Seq+1 {
		t.Errorf("expected consecutive seqs, got %d and %d", e1.Seq, e2.Seq)
	}
}

func TestStream_ClientResync(t *testing.T) {
	b, srv := setupLiveServer(t, &staticSnapshot{})
	conn := dial(t, srv)
	readEvent(t, conn)

	b.Publish(domain.NewEvent(domain.EventVehicleCreated, time.Now(), domain.VehicleState{}))
	readEvent(t, conn)

	if err := conn.WriteJSON(clientMessage{Type: "resync"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := readEvent(t, conn)
	if e.Type != string(domain.EventInitialState) {
		t.Fatalf("expected initialState after resync, got %s", e.Type)
	}
	if e.Seq != 1 {
		t.Errorf("expected snapshot seq 1, got %d", e.Seq)
	}
}

func TestStream_DisconnectUnsubscribes(t *testing.T) {
	b, srv := setupLiveServer(t, &staticSnapshot{})
	conn := dial(t, srv)
	readEvent(t, conn)
	waitForSubscribers(t, b, 1)

	_ = conn.Close()
	waitForSubscribers(t, b, 0)
}

func TestStream_SnapshotFailure(t *testing.T) {
	_, srv := setupLiveServer(t, &staticSnapshot{err: errors.New("store down")})

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestGetSnapshot(t *testing.T) {
	snap := &staticSnapshot{snapshot: domain.Snapshot{
		Vehicles: []domain.VehicleState{{Vehicle: domain.Vehicle{ID: 1, Code: "VAN-1"}}},
	}}
	_, srv := setupLiveServer(t, snap)

	resp, err := http.Get(srv.URL + "/snapshot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
