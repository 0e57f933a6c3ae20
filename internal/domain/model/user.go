package model

import "time"

// User — пользователь, вошедший по PIN.
// Хранится в таблице users.
type User struct {
	ID int64
	// PINHash — SHA-256 от PIN (hex)
	PINHash     string
	DisplayName string
	CreatedAt   time.Time
	// LastAccessAt — время последнего входа
	LastAccessAt time.Time
}
