package livestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
)

const writeTimeout = 10 * time.Second

// Gauge tracks open streams per transport.
type Gauge interface {
	StreamOpened(transport string) func()
}

type nopGauge struct{}

func (nopGauge) StreamOpened(string) func() { return func() {} }

// Handler exposes a Streamer over HTTP.
type Handler struct {
	streamer *Streamer
	gauge    Gauge
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the SSE and WebSocket handlers. gauge may be nil.
func NewHandler(streamer *Streamer, gauge Gauge, logger *zap.Logger) *Handler {
	if gauge == nil {
		gauge = nopGauge{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		streamer: streamer,
		gauge:    gauge,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Cursor returns the resume cursor of a request: the Last-Event-ID header,
// else the last_event_id query parameter.
func Cursor(c echo.Context) string {
	if id := c.Request().Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	return c.QueryParam("last_event_id")
}

// SSE streams a test's event log as server-sent events.
// GET /api/tests/:test_id/live
func (h *Handler) SSE(c echo.Context) error {
	testID := c.Param("test_id")

	res := c.Response()
	res.Header().Set("Content-Type", "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	done := h.gauge.StreamOpened("sse")
	defer done()

	err := h.streamer.Stream(c.Request().Context(), testID, Cursor(c), &sseSink{res: res})
	h.finish(testID, "sse", err)
	return nil
}

// WebSocket streams a test's event log as JSON text frames.
// GET /api/tests/:test_id/live/ws
func (h *Handler) WebSocket(c echo.Context) error {
	testID := c.Param("test_id")
	cursor := Cursor(c)

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zap.String("test_id", testID), zap.Error(err))
		return nil
	}
	defer ws.Close()

	done := h.gauge.StreamOpened("ws")
	defer done()

	connID := uuid.New().String()[:8]
	h.logger.Debug("websocket viewer connected", zap.String("test_id", testID), zap.String("conn_id", connID))

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Viewers never send data frames; reading only surfaces the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.streamer.Stream(ctx, testID, cursor, &wsSink{conn: ws})
	h.finish(testID, "ws", err)

	reason := "stream closed"
	if errors.Is(err, ErrIdleTimeout) {
		reason = "idle timeout"
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	return nil
}

func (h *Handler) finish(testID, transport string, err error) {
	if err == nil || errors.Is(err, ErrIdleTimeout) {
		return
	}
	h.logger.Debug("live stream ended", zap.String("test_id", testID), zap.String("transport", transport), zap.Error(err))
}

type sseSink struct {
	res *echo.Response
}

func (s *sseSink) Send(event domain.Event) error {
	data, err := event.DataJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.res, "id: %s\ndata: %s\n\n", event.ID, data); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}

func (s *sseSink) Keepalive() error {
	if _, err := fmt.Fprint(s.res, ":\n\n"); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}

// Frame is one WebSocket message.
type Frame struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(event domain.Event) error {
	data, err := event.DataJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(Frame{ID: event.ID, Event: data})
}

func (s *wsSink) Keepalive() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}
