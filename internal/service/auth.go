// auth.go — регистрация и вход по PIN.
//
// PIN хранится в виде SHA-256 (hex). Вход создаёт сессию в SessionStore,
// идентификатор сессии передаётся клиенту в cookie.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/repository"
)

// Допустимая длина PIN (только цифры).
const (
	minPINLen         = 4
	maxPINLen         = 6
	maxDisplayNameLen = 100
)

// AuthService — регистрация, вход и выход пользователей.
type AuthService struct {
	users    repository.UserRepository
	sessions *SessionStore
	logger   *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(users repository.UserRepository, sessions *SessionStore, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "auth")),
	}
}

// validatePIN проверяет формат PIN: 4–6 цифр.
func validatePIN(pin string) error {
	if len(pin) < minPINLen || len(pin) > maxPINLen {
		return validationError("PIN должен содержать от %d до %d цифр", minPINLen, maxPINLen)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return validationError("PIN должен состоять только из цифр")
		}
	}
	return nil
}

func hashPIN(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// Register создаёт пользователя. Пустое имя заменяется на "User <pin>".
func (s *AuthService) Register(ctx context.Context, pin, displayName string) (*model.User, error) {
	if err := validatePIN(pin); err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = "User " + pin
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return nil, validationError("displayName длиннее %d символов", maxDisplayNameLen)
	}

	user := &model.User{PINHash: hashPIN(pin), DisplayName: displayName}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: PIN уже занят", ErrConflict)
		}
		return nil, fmt.Errorf("регистрация пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован", slog.Int64("user_id", user.ID))
	return user, nil
}

// Login проверяет PIN и открывает сессию.
func (s *AuthService) Login(ctx context.Context, pin string) (Session, error) {
	if err := validatePIN(pin); err != nil {
		return Session{}, fmt.Errorf("%w: неверный PIN", ErrUnauthorized)
	}

	user, err := s.users.GetByPINHash(ctx, hashPIN(pin))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: неверный PIN", ErrUnauthorized)
		}
		return Session{}, fmt.Errorf("вход пользователя: %w", err)
	}

	if err := s.users.TouchLastAccess(ctx, user.ID); err != nil {
		s.logger.Warn("Не удалось обновить время входа",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	session := s.sessions.Create(user.ID, user.DisplayName)
	s.logger.Info("Пользователь вошёл", slog.Int64("user_id", user.ID))
	return session, nil
}

// Logout закрывает сессию. Неизвестная сессия не считается ошибкой.
func (s *AuthService) Logout(sessionID string) {
	s.sessions.Delete(sessionID)
}

// Authenticate возвращает активную сессию и продлевает её.
func (s *AuthService) Authenticate(sessionID string) (Session, error) {
	session, ok := s.sessions.Resolve(sessionID)
	if !ok {
		return Session{}, ErrUnauthorized
	}
	return session, nil
}

// CheckPIN сообщает, свободен ли PIN.
func (s *AuthService) CheckPIN(ctx context.Context, pin string) (bool, error) {
	if err := validatePIN(pin); err != nil {
		return false, err
	}
	exists, err := s.users.ExistsByPINHash(ctx, hashPIN(pin))
	if err != nil {
		return false, fmt.Errorf("проверка PIN: %w", err)
	}
	return !exists, nil
}

// SessionTTL — срок жизни сессии (для cookie).
func (s *AuthService) SessionTTL() int {
	return int(s.sessions.TTL().Seconds())
}
