package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochi-ai/voicechat/internal/session"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 120 * time.Second
	pingPeriod = 30 * time.Second
)

// viewerMessage is the only client-to-server frame on the event stream.
type viewerMessage struct {
	Type   string `json:"type"`
	Hidden *bool  `json:"hidden,omitempty"`
}

type snapshotFrame struct {
	Type    string           `json:"type"`
	Session session.Snapshot `json:"session"`
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.controller.Subscribe(128)
	defer unsubscribe()

	s.viewerJoined()
	defer s.viewerLeft()
	s.metrics.SessionEvents.WithLabelValues("viewer_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snapshotFrame{Type: "snapshot", Session: s.controller.Snapshot()}); err != nil {
			cancel()
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					s.logger.Debug().Err(err).Msg("event stream write failed")
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if msgType != websocket.TextMessage {
			continue
		}
		var msg viewerMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "visibility" || msg.Hidden == nil {
			s.logger.Debug().Str("payload", string(data)).Msg("ignoring viewer message")
			continue
		}
		s.controller.SetHidden(*msg.Hidden)
	}

	cancel()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("viewer_disconnected").Inc()
}

// viewerJoined marks the surface visible again.
func (s *Server) viewerJoined() {
	s.viewersMu.Lock()
	s.viewers++
	s.viewersMu.Unlock()
	s.controller.SetHidden(false)
}

// viewerLeft treats losing the last viewer as the surface being hidden.
func (s *Server) viewerLeft() {
	s.viewersMu.Lock()
	s.viewers--
	last := s.viewers == 0
	s.viewersMu.Unlock()
	if last {
		s.controller.SetHidden(true)
	}
}
