package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"blockwiki/api/internal/editlock"
)

const (
	lockWriteWait  = 10 * time.Second
	lockPingPeriod = 30 * time.Second
)

type lockMessage struct {
	Type          string          `json:"type"`
	Status        editlock.Status `json:"status"`
	LockedByOther bool            `json:"lockedByOther"`
}

func lockEvent(status editlock.Status) lockMessage {
	return lockMessage{Type: "lock", Status: status, LockedByOther: status.LockedByOther()}
}

func (s *HTTPServer) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.corsOrigin == "*" || origin == s.corsOrigin
		},
	}
}

// handleLockStream pushes the session's lock status on connect and after
// every change until the client goes away or the session is closed.
func (s *HTTPServer) handleLockStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Session(mux.Vars(r)["sid"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("lock stream upgrade failed")
		return
	}
	defer conn.Close()

	// one pending wake-up is enough; each send reads the latest status
	notify := make(chan struct{}, 1)
	unsubscribe := sess.Lock().OnChange(func(editlock.Status) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(lockWriteWait))
		return conn.WriteJSON(lockEvent(sess.Lock().Status()))
	}
	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(lockPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-notify:
			if err := send(); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(lockWriteWait)); err != nil {
				return
			}
		case <-sess.Done():
			_ = send()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(lockWriteWait))
			return
		case <-gone:
			return
		}
	}
}
