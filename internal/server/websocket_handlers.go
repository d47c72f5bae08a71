package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message types streamed to WebSocket clients.
const (
	MessageState  = "state"
	MessageNotice = "notice"
	MessageResult = "result"
	MessageError  = "error"
)

// WebSocketAnalyzeRequest asks for one analysis. Image is base64 in JSON.
type WebSocketAnalyzeRequest struct {
	RequestID    string `json:"request_id,omitempty"`
	Filename     string `json:"filename"`
	Image        []byte `json:"image"`
	ForceOffline bool   `json:"force_offline"`
}

// WebSocketMessage is one server-to-client message.
type WebSocketMessage struct {
	Type      string               `json:"type"`
	RequestID string               `json:"request_id,omitempty"`
	State     string               `json:"state,omitempty"`
	Notice    *orchestrator.Notice `json:"notice,omitempty"`
	Result    *orchestrator.Result `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorType string               `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsWriter serialises writes from the analysis goroutine and the reader.
type wsWriter struct {
	mu     sync.Mutex
	conn   WebSocketConnWriter
	logger *slog.Logger
}

func (w *wsWriter) send(msg WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.logger.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (w *wsWriter) sendError(requestID, errorType, message string) {
	w.send(WebSocketMessage{Type: MessageError, RequestID: requestID, Error: message, ErrorType: errorType})
}

// analyzeWebSocketHandler streams analysis stages over a WebSocket.
func (s *Server) analyzeWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	logger := s.logger.With("remote_addr", r.RemoteAddr)
	logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{
		server: s,
		writer: &wsWriter{conn: conn, logger: logger},
		logger: logger,
	}
	go keepAlive(ctx, conn)
	c.readLoop(ctx, conn)

	// Let a running analysis finish writing before the socket closes.
	cancel()
	c.wg.Wait()
}

func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// wsConn is the per-connection state. One analysis runs at a time.
type wsConn struct {
	server *Server
	writer *wsWriter
	logger *slog.Logger
	busy   atomic.Bool
	wg     sync.WaitGroup
}

func (c *wsConn) readLoop(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket closed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			c.handleMessage(ctx, data)
		}
	}
}

// handleMessage validates a request and starts its analysis in the
// background so the reader keeps answering pings.
func (c *wsConn) handleMessage(ctx context.Context, data []byte) {
	var req WebSocketAnalyzeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.writer.sendError("", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if len(req.Image) == 0 {
		c.writer.sendError(req.RequestID, "invalid_request", noImageMessage)
		return
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.writer.sendError(req.RequestID, "busy", orchestrator.ErrBusy.Error())
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.busy.Store(false)
		c.analyze(ctx, req)
	}()
}

func (c *wsConn) analyze(ctx context.Context, req WebSocketAnalyzeRequest) {
	id := req.RequestID
	observer := orchestrator.ObserverFuncs{
		State: func(st orchestrator.State) {
			c.writer.send(WebSocketMessage{Type: MessageState, RequestID: id, State: st.String()})
		},
		Notice: func(n orchestrator.Notice) {
			c.writer.send(WebSocketMessage{Type: MessageNotice, RequestID: id, Notice: &n})
		},
	}

	session, err := c.server.session(observer, c.logger.With("request_id", id, "filename", req.Filename))
	if err != nil {
		c.writer.sendError(id, "processing_error", err.Error())
		return
	}

	actx, cancel := c.server.requestContext(ctx)
	defer cancel()

	res, err := session.Analyze(actx, &orchestrator.Image{Name: req.Filename, Data: req.Image}, req.ForceOffline)
	switch {
	case errors.Is(err, orchestrator.ErrNoImage):
		c.writer.sendError(id, "invalid_request", noImageMessage)
	case errors.Is(err, orchestrator.ErrBusy):
		c.writer.sendError(id, "busy", err.Error())
	case err != nil:
		c.writer.sendError(id, "processing_error", err.Error())
	default:
		c.writer.send(WebSocketMessage{Type: MessageResult, RequestID: id, Result: res})
	}
}
