package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"pechincha/internal/guard"
	"pechincha/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// credentialMessage is sent by the client when its token changes.
type credentialMessage struct {
	AccessToken string `json:"accessToken"`
}

// handleSessionSocket streams guard decisions for one location. The first
// frame is always the unresolved decision.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watcher == nil {
		writeMessage(w, http.StatusServiceUnavailable, "guard disabled")
		return
	}
	location := r.URL.Query().Get("path")
	if location == "" {
		location = "/"
	}
	cred := guard.CredentialFromRequest(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan session.Credential, 1)
	decisions := s.deps.Watcher.Watch(ctx, location, cred, updates)

	go s.readCredentials(conn, updates, cancel)
	s.writeDecisions(conn, decisions, cancel)
}

func (s *Server) readCredentials(conn *websocket.Conn, updates chan session.Credential, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var msg credentialMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("session socket closed", "error", err)
			}
			return
		}
		select {
		case updates <- session.Credential{AccessToken: msg.AccessToken}:
		default:
			// Drop the stale pending update in favour of the newest token.
			select {
			case <-updates:
			default:
			}
			updates <- session.Credential{AccessToken: msg.AccessToken}
		}
	}
}

func (s *Server) writeDecisions(conn *websocket.Conn, decisions <-chan guard.Decision, cancel context.CancelFunc) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()
	for {
		select {
		case d, ok := <-decisions:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(d); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
