package services

import (
	"time"

	"github.com/pokopiemy/match-system/models"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func validateMatchDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return ErrMatchInvalidDateRange
	}
	if !start.Before(end) {
		return ErrMatchInvalidDateRange
	}
	return nil
}

func validateMatchFields(m *models.Match) error {
	if m.Name == "" {
		return ErrMatchNameRequired
	}
	if m.Location == "" {
		return ErrMatchLocationRequired
	}
	if err := validateMatchDates(m.DateStart, m.DateEnd); err != nil {
		return err
	}
	if m.MaxPlayers <= 0 {
		return ErrMatchInvalidCapacity
	}
	if !models.ValidLevel(m.Level) {
		return ErrMatchInvalidLevel
	}
	if m.IsRecurring {
		if m.RecurrenceFrequency == nil {
			return ErrMatchFrequencyRequired
		}
		if !models.ValidFrequency(*m.RecurrenceFrequency) {
			return ErrMatchInvalidFrequency
		}
	}
	for _, pm := range m.PaymentMethods {
		if !models.ValidPaymentMethod(models.PaymentMethod(pm)) {
			return ErrMatchInvalidPaymentMethod
		}
	}
	return nil
}
