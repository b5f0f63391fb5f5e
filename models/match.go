package models

import (
	"time"

	"github.com/lib/pq"
)

// MatchStatus соответствует ENUM match_status в БД.
type MatchStatus string

const (
	MatchStatusActive   MatchStatus = "active"
	MatchStatusFinished MatchStatus = "finished"
	MatchStatusCanceled MatchStatus = "canceled"
)

// IsTerminal сообщает, что из статуса нет дальнейших переходов.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusFinished || s == MatchStatusCanceled
}

type MatchLevel string

const (
	LevelKopanina MatchLevel = "kopanina"
	LevelCasual   MatchLevel = "cośtam gramy"
	LevelSemiPro  MatchLevel = "semi pro"
)

type RecurrenceFrequency string

const (
	FrequencyDaily   RecurrenceFrequency = "daily"
	FrequencyWeekly  RecurrenceFrequency = "weekly"
	FrequencyMonthly RecurrenceFrequency = "monthly"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentBlik PaymentMethod = "blik"
)

// Match представляет запланированный любительский матч.
type Match struct {
	ID          int     `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description *string `json:"description,omitempty" db:"description"`

	DateStart         time.Time  `json:"date_start" db:"date_start"`
	DateEnd           time.Time  `json:"date_end" db:"date_end"`
	RegistrationStart *time.Time `json:"registration_start,omitempty" db:"registration_start"`
	RegistrationEnd   *time.Time `json:"registration_end,omitempty" db:"registration_end"`

	Location   string      `json:"location" db:"location"`
	MaxPlayers int         `json:"max_players" db:"max_players"`
	Level      MatchLevel  `json:"level" db:"level"`
	Status     MatchStatus `json:"status" db:"status"`

	IsRecurring         bool                 `json:"is_recurring" db:"is_recurring"`
	RecurrenceFrequency *RecurrenceFrequency `json:"recurrence_frequency,omitempty" db:"recurrence_frequency"`

	// Организатор: явная ссылка, плюс контактные поля для матчей,
	// созданных вне системы (см. services.IsOrganizer).
	OrganizerUserID *int    `json:"organizer_user_id,omitempty" db:"organizer_user_id"`
	OrganizerPhone  *string `json:"organizer_phone,omitempty" db:"organizer_phone"`
	OrganizerEmail  *string `json:"organizer_email,omitempty" db:"organizer_email"`

	IsFree         bool           `json:"is_free" db:"is_free"`
	EntryFee       *string        `json:"entry_fee,omitempty" db:"entry_fee"`
	PaymentMethods pq.StringArray `json:"payment_methods" db:"payment_methods"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Registrations   []Registration `json:"registrations,omitempty" db:"-"`
	RegisteredCount int            `json:"registered_count" db:"-"`
}

func ValidLevel(l MatchLevel) bool {
	switch l {
	case LevelKopanina, LevelCasual, LevelSemiPro:
		return true
	}
	return false
}

func ValidFrequency(f RecurrenceFrequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func ValidPaymentMethod(m PaymentMethod) bool {
	return m == PaymentCash || m == PaymentBlik
}
