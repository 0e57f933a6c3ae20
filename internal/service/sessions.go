// sessions.go — in-memory хранилище сессий входа по PIN.
// Обёртка над hashicorp/golang-lru/v2/expirable; срок сессии продлевается при каждом обращении.
package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Session — сессия пользователя.
type Session struct {
	ID          string
	UserID      int64
	DisplayName string
	ExpiresAt   time.Time
}

// SessionStore — LRU-хранилище сессий с TTL.
// Сессии живут в памяти процесса и теряются при перезапуске.
type SessionStore struct {
	cache *expirable.LRU[string, Session]
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionStore создаёт хранилище не более чем на maxSize сессий.
func NewSessionStore(maxSize int, ttl time.Duration) *SessionStore {
	return &SessionStore{
		cache: expirable.NewLRU[string, Session](maxSize, nil, ttl),
		ttl:   ttl,
		now:   time.Now,
	}
}

// TTL возвращает время жизни сессии без обращений.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create открывает новую сессию для пользователя.
func (s *SessionStore) Create(userID int64, displayName string) Session {
	session := Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		ExpiresAt:   s.now().UTC().Add(s.ttl),
	}
	s.cache.Add(session.ID, session)
	return session
}

// Resolve возвращает сессию и продлевает её срок.
func (s *SessionStore) Resolve(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	session, ok := s.cache.Get(id)
	if !ok {
		return Session{}, false
	}

	// Повторный Add сбрасывает TTL записи в LRU
	session.ExpiresAt = s.now().UTC().Add(s.ttl)
	s.cache.Add(id, session)
	return session, true
}

// Delete закрывает сессию.
func (s *SessionStore) Delete(id string) {
	s.cache.Remove(id)
}

// Len возвращает количество активных сессий.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}
