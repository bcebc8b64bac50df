package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/dialog"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

// keepaliveInterval is how often a ping_pong frame is pushed so the
// platform keeps the socket open through silent stretches.
const keepaliveInterval = 2 * time.Second

// The platform connects server-to-server with no Origin header.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// transcriptEntry is one utterance in the platform's running transcript.
// Confidence is optional; absent means the platform did not score it.
type transcriptEntry struct {
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// inboundFrame is what the platform sends over the socket. response_required
// carries the running transcript and expects an agentFrame back;
// update_only and ping_pong carry nothing actionable.
type inboundFrame struct {
	InteractionType string            `json:"interaction_type"`
	ResponseType    string            `json:"response_type"`
	ResponseID      int               `json:"response_id"`
	Transcript      []transcriptEntry `json:"transcript"`
}

// agentFrame is one agent utterance sent to the platform.
type agentFrame struct {
	ResponseID      int    `json:"response_id"`
	Content         string `json:"content"`
	ContentComplete bool   `json:"content_complete"`
	EndCall         bool   `json:"end_call"`
}

type pingFrame struct {
	ResponseType string `json:"response_type"`
	Timestamp    int64  `json:"timestamp"`
}

// wsConn serializes writes: the keepalive goroutine and the turn loop share
// one socket.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// llmWebsocket handles GET /llm-websocket/{call_id}: the live dialogue
// stream. The agent speaks first; after that every response_required frame
// becomes one state-machine turn. Disconnect triggers finalization with the
// platform's transcript.
func (s *Server) llmWebsocket(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "call_id", callID, "error", err)
		return
	}
	ws := &wsConn{conn: conn}
	defer conn.Close()

	s.logger.Info("websocket connected", "call_id", callID)

	// A socket for a call_id we never issued still gets a working agent:
	// the platform may be configured to dial through us directly.
	c, ok := s.deps.Sessions.Get(callID)
	if !ok {
		s.logger.Warn("websocket for unregistered call, creating context", "call_id", callID)
		c = s.deps.Sessions.Create(callID, "", "", "", s.deps.Fallback)
	}

	// The agent opens from the template, not the reasoning service: the
	// greeting must be instant and deterministic.
	c.Lock()
	opening := c.Policy.OpeningLine(c.DriverName, c.LoadNumber)
	c.AppendTurn(session.SpeakerAgent, opening)
	c.Unlock()

	if err := ws.writeJSON(agentFrame{ResponseID: 0, Content: opening, ContentComplete: true}); err != nil {
		s.logger.Error("failed to send opening", "call_id", callID, "error", err)
		return
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.keepalive(ws, callID, stopPing)

	var lastTranscript []transcriptEntry
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read error", "call_id", callID, "error", err)
			}
			break
		}

		if frame.ResponseType == "ping_pong" || frame.InteractionType == "ping_pong" {
			continue
		}
		if len(frame.Transcript) > 0 {
			lastTranscript = frame.Transcript
		}
		if frame.InteractionType != "response_required" {
			continue
		}

		text, confidence := lastDriverUtterance(frame.Transcript)

		result, err := s.deps.Dialog.HandleUtterance(r.Context(), callID, text, confidence)
		if errors.Is(err, dialog.ErrCallEnded) {
			// The call already closed; tell the platform to hang up.
			_ = ws.writeJSON(agentFrame{ResponseID: frame.ResponseID, ContentComplete: true, EndCall: true})
			continue
		}
		if err != nil {
			s.logger.Error("turn handling failed", "call_id", callID, "error", err)
			continue
		}

		if err := ws.writeJSON(agentFrame{
			ResponseID:      frame.ResponseID,
			Content:         result.Reply,
			ContentComplete: true,
			EndCall:         result.EndCall,
		}); err != nil {
			s.logger.Error("failed to send response", "call_id", callID, "error", err)
			break
		}
	}

	s.logger.Info("websocket disconnected", "call_id", callID)
	s.deps.Finalizer.Finalize(context.Background(), callID, toTurns(lastTranscript))
}

func (s *Server) keepalive(ws *wsConn, callID string, stop <-chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := ws.writeJSON(pingFrame{
				ResponseType: "ping_pong",
				Timestamp:    time.Now().UnixMilli(),
			})
			if err != nil {
				s.logger.Debug("keepalive write failed", "call_id", callID, "error", err)
				return
			}
		}
	}
}

// lastDriverUtterance pulls the newest non-empty driver line out of the
// running transcript. An empty result is a silent turn, which the state
// machine bounds like any other non-answer.
func lastDriverUtterance(transcript []transcriptEntry) (string, float64) {
	for i := len(transcript) - 1; i >= 0; i-- {
		e := transcript[i]
		if e.Role != "user" || e.Content == "" {
			continue
		}
		confidence := 1.0
		if e.Confidence != nil {
			confidence = *e.Confidence
		}
		return e.Content, confidence
	}
	return "", 1.0
}
