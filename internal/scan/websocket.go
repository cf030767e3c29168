package scan

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zombor/scanlens/internal/scanning"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is every frame exchanged on /ws: {"type": ..., "data": ...}
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsScanRequest struct {
	Mode        string `json:"mode"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	// Image is base64 encoded
	Image string `json:"image"`
}

type wsProgress struct {
	Progress float64 `json:"progress"`
}

type wsError struct {
	Kind    FailureKind `json:"kind,omitempty"`
	Message string      `json:"message"`
}

// wsConn serializes writes; progress callbacks may come from engine goroutines
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
	id   string
}

func (c *wsConn) send(messageType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("Error encoding websocket message", "type", messageType, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(wsMessage{Type: messageType, Data: payload}); err != nil {
		slog.Warn("Error sending websocket message", "client", c.id, "type", messageType, "error", err)
	}
}

func (c *wsConn) sendError(kind FailureKind, message string) {
	c.send("error", wsError{Kind: kind, Message: message})
}

// handleWebSocket accepts "scan" and "get_history" messages. A scan streams
// "progress" messages while OCR runs and ends with "result" or "error".
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &wsConn{conn: conn, id: uuid.NewString()}
	slog.Debug("WebSocket client connected", "client", client.id)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Error reading websocket message", "client", client.id, "error", err)
			}
			return
		}

		switch msg.Type {
		case "scan":
			s.handleWebSocketScan(r, client, msg.Data)
		case "get_history":
			client.send("history", s.service.History())
		default:
			client.sendError("", "Unknown message type")
		}
	}
}

func (s *Server) handleWebSocketScan(r *http.Request, client *wsConn, data json.RawMessage) {
	var req wsScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		client.sendError("", "Invalid scan request")
		return
	}

	mode, err := ParseMode(req.Mode)
	if err != nil {
		client.sendError("", err.Error())
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		client.sendError(FailureInvalidImage, "Image must be base64 encoded")
		return
	}

	upload := Upload{
		Filename: req.Filename,
		Image: scanning.Image{
			Data:        image,
			ContentType: uploadContentType(req.ContentType, req.Filename),
		},
	}
	progress := func(p float64) {
		client.send("progress", wsProgress{Progress: p})
	}

	result, err := s.service.Scan(r.Context(), upload, mode, progress)
	if err != nil {
		client.sendError(FailureKindOf(err), err.Error())
		return
	}
	client.send("result", result)
}
