package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/megalinks/megalinks/internal/domain/model"
)

// UserRepository — доступ к таблице users.
type UserRepository interface {
	// Create создаёт пользователя; ErrConflict, если PIN уже занят.
	Create(ctx context.Context, user *model.User) error
	// GetByPINHash возвращает пользователя по хешу PIN.
	GetByPINHash(ctx context.Context, pinHash string) (*model.User, error)
	// TouchLastAccess обновляет время последнего входа.
	TouchLastAccess(ctx context.Context, id int64) error
	// ExistsByPINHash проверяет, занят ли PIN.
	ExistsByPINHash(ctx context.Context, pinHash string) (bool, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (pin_hash, display_name)
		VALUES ($1, $2)
		RETURNING id, created_at, last_access_at`

	err := r.db.QueryRow(ctx, query, user.PINHash, user.DisplayName).
		Scan(&user.ID, &user.CreatedAt, &user.LastAccessAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: PIN уже используется", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByPINHash(ctx context.Context, pinHash string) (*model.User, error) {
	query := `
		SELECT id, pin_hash, display_name, created_at, last_access_at
		FROM users
		WHERE pin_hash = $1`

	u := &model.User{}
	err := r.db.QueryRow(ctx, query, pinHash).Scan(
		&u.ID, &u.PINHash, &u.DisplayName, &u.CreatedAt, &u.LastAccessAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) TouchLastAccess(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET last_access_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_access_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) ExistsByPINHash(ctx context.Context, pinHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE pin_hash = $1)`, pinHash).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки PIN: %w", err)
	}
	return exists, nil
}
