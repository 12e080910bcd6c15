package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nadzzz/speechviz/internal/apperr"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// resizeMessage is sent by clients when their canvas container changes.
type resizeMessage struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// handleSnapshot returns the visualizer's current state.
//
// @Summary     Visualizer snapshot
// @Description Bar heights of the last frame (0..1) while playing, or the placeholder bars while idle.
// @Tags        visualizer
// @Produce     json
// @Success     200  {object}  visualizer.Snapshot
// @Router      /api/visualizer/snapshot [get]
func (t *Transport) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := t.deps.Visualizer.Snapshot()
	if err != nil {
		t.log.Error("visualizer snapshot", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Visualizer unavailable.")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// handleFrame renders the canvas as PNG.
//
// @Summary     Visualizer frame
// @Tags        visualizer
// @Produce     image/png
// @Success     200  {file}  file
// @Router      /api/visualizer/frame.png [get]
func (t *Transport) handleFrame(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := t.deps.Visualizer.EncodePNG(&buf); err != nil {
		t.log.Error("encoding frame", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not render frame.")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// handleStream pushes snapshots over a WebSocket at the frame rate. Clients
// may send {"width":W,"height":H} to report their container box.
//
// @Summary     Visualizer stream
// @Description WebSocket. Server sends visualizer.Snapshot JSON messages; the client may send {"width","height"}.
// @Tags        visualizer
// @Success     101  {string}  string  "Switching Protocols"
// @Router      /api/visualizer/ws [get]
func (t *Transport) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	log := t.log.With("remote", r.RemoteAddr)
	log.Debug("visualizer stream opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					log.Debug("visualizer stream read", "error", err)
				}
				return
			}
			var msg resizeMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Debug("ignoring stream message", "error", err)
				continue
			}
			if err := t.deps.Visualizer.Resize(msg.Width, msg.Height); err != nil {
				if apperr.KindOf(err) != apperr.KindInputInvalid {
					log.Warn("resizing canvas", "error", err)
					return
				}
				log.Debug("ignoring resize", "width", msg.Width, "height", msg.Height)
			}
		}
	}()

	ticker := time.NewTicker(t.deps.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			log.Debug("visualizer stream closed")
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
			s, err := t.deps.Visualizer.Snapshot()
			if err != nil {
				log.Warn("visualizer snapshot", "error", err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(s); err != nil {
				log.Debug("visualizer stream write", "error", err)
				return
			}
		}
	}
}
