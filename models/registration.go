package models

import "time"

// Registration связывает пользователя с матчем и занимает один слот.
// Пара (match_id, user_id) уникальна.
type Registration struct {
	ID        int       `json:"id" db:"id"`
	MatchID   int       `json:"match_id" db:"match_id"`
	UserID    int       `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Опционально подгружаемый пользователь (не мапится напрямую)
	User *User `json:"user,omitempty" db:"-"`
}
