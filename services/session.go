package services

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is the transport half of a session. *websocket.Conn satisfies it;
// tests substitute a fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one live push channel. It is owned by the registry that accepted
// it, never persisted, and destroyed on transport close, error, or failed
// send.
type Session struct {
	ID    string
	Scope string // store id (ledger/coordinator) or topic (hub)
	Conn  Conn
}

func NewSession(scope string, conn Conn) *Session {
	return &Session{ID: uuid.NewString(), Scope: scope, Conn: conn}
}

// SessionRegistry maintains the set of currently attached sessions and fans
// broadcasts out to them. Sends are best-effort and at-most-once: a failed
// send drops the session and does not abort delivery to the rest.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

func NewSessionRegistry(logger *zap.Logger) *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session), logger: logger}
}

func (r *SessionRegistry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.logger.Debug("session registered", zap.String("session_id", s.ID), zap.String("scope", s.Scope))
}

// Unregister removes and closes a session. Idempotent.
func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		_ = s.Conn.Close()
		r.logger.Debug("session unregistered", zap.String("session_id", id))
	}
}

// Count returns the number of attached sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send delivers v to a single session. On failure the session is dropped from
// the registry.
func (r *SessionRegistry) Send(s *Session, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		r.Unregister(s.ID)
		return err
	}
	return nil
}

// Broadcast serializes v once and sends it to every session whose scope
// matches. An empty scope broadcasts to all sessions. Dead sessions are
// removed along the way.
func (r *SessionRegistry) Broadcast(scope string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if scope == "" || s.Scope == scope {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			r.logger.Warn("broadcast send failed, dropping session",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
			r.Unregister(s.ID)
		}
	}
}
