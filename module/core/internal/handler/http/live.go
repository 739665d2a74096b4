package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/broadcaster"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	maxClientMessage    = 1024
)

type liveSource interface {
	Subscribe(ctx context.Context) (*broadcaster.Subscription, error)
}

type snapshotSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

type clientMessage struct {
	Type string `json:"type"`
}

// LiveHandler streams broadcaster events to websocket clients. A client that
// cannot keep up is resynced by the broadcaster; a client whose socket blocks
// past WriteTimeout is dropped.
type LiveHandler struct {
	source       liveSource
	snapshots    snapshotSource
	writeTimeout time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	log          logging.Logger
}

func NewLiveHandler(source liveSource, snapshots snapshotSource, writeTimeout time.Duration, log logging.Logger) *LiveHandler {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if log == nil {
		log = logging.Noop()
	}
	return &LiveHandler{
		source:       source,
		snapshots:    snapshots,
		writeTimeout: writeTimeout,
		pingInterval: writeTimeout * 3,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *LiveHandler) Register(r *gin.RouterGroup) {
	r.GET("/ws", h.Stream)
	r.GET("/snapshot", h.GetSnapshot)
}

func (h *LiveHandler) GetSnapshot(c *gin.Context) {
	s, err := h.snapshots.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, s)
}

// Stream subscribes before upgrading so a failed snapshot is still an HTTP error.
func (h *LiveHandler) Stream(c *gin.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sub, err := h.source.Subscribe(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}
	defer func() { _ = conn.Close() }()

	log := h.log.With(logging.String("subscription_id", sub.ID()))
	log.Info(ctx, "live subscriber connected")

	go h.readLoop(ctx, cancel, conn, sub, log)
	go h.pingLoop(ctx, cancel, conn)

	for {
		e, err := sub.Next(ctx)
		if err != nil {
			log.Info(ctx, "live subscriber disconnected", logging.Err(err))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(e); err != nil {
			log.Warn(ctx, "live write failed", logging.Uint64("seq", e.Seq), logging.Err(err))
			return
		}
	}
}

// readLoop handles client commands and notices disconnects.
func (h *LiveHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *broadcaster.Subscription, log logging.Logger) {
	defer cancel()

	pongWait := h.pingInterval + h.writeTimeout
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug(ctx, "ignoring malformed client message", logging.Err(err))
			continue
		}
		if msg.Type != "resync" {
			continue
		}
		if err := sub.Resync(ctx); err != nil {
			log.Warn(ctx, "client resync failed", logging.Err(err))
			return
		}
	}
}

func (h *LiveHandler) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				cancel()
				return
			}
		}
	}
}
