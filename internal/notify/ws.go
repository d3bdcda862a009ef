package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// WSSession is a connected client.
type WSSession struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// Send writes v as JSON; a client that stops reading fails the write once
// the deadline passes.
func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// Forward writes notifications until notes is closed or a write fails.
func (s *WSSession) Forward(notes <-chan Notification) error {
	for n := range notes {
		if err := s.Send(n); err != nil {
			return err
		}
	}
	return nil
}

// WSRegistry holds one websocket session per user.
type WSRegistry struct {
	// WriteTimeout bounds each write; zero means 10s.
	WriteTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

// Add registers conn for userID, closing any session it replaces.
func (r *WSRegistry) Add(userID string, conn *websocket.Conn) *WSSession {
	timeout := r.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	sess := &WSSession{conn: conn, writeTimeout: timeout}
	r.mu.Lock()
	prev := r.sessions[userID]
	r.sessions[userID] = sess
	r.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
	return sess
}

// Remove drops the session only if it still belongs to conn.
func (r *WSRegistry) Remove(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok && s.conn == conn {
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
