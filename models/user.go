package models

import "time"

// User представляет зарегистрированного игрока.
type User struct {
	ID             int         `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	Email          string      `json:"email" db:"email"`
	PasswordHash   string      `json:"-" db:"password_hash"`
	Phone          *string     `json:"phone,omitempty" db:"phone"`
	PreferredLevel *MatchLevel `json:"preferred_level,omitempty" db:"preferred_level"`
	IsAdmin        bool        `json:"is_admin" db:"is_admin"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}
