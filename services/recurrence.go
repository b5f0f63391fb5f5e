package services

import (
	"time"

	"github.com/pokopiemy/match-system/models"
)

// NextOccurrence строит следующий матч цикличной серии.
//
// date_start и date_end сдвигаются на одну единицу частоты каждая, так что
// продолжительность матча в настенном времени сохраняется. Окно записи не
// сдвигается на единицу частоты: для него сохраняется смещение относительно
// исходного date_start ("запись открывается за 3 дня до начала" остаётся
// верным и для нового матча).
//
// Возвращённый матч - новая строка: status=active, ID и created_at пустые,
// флаги цикличности скопированы, чтобы серия продолжалась.
func NextOccurrence(src *models.Match) *models.Match {
	if src == nil || !src.IsRecurring || src.RecurrenceFrequency == nil {
		return nil
	}

	var step func(time.Time) time.Time
	switch *src.RecurrenceFrequency {
	case models.FrequencyDaily:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case models.FrequencyWeekly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case models.FrequencyMonthly:
		step = addMonthClamped
	default:
		return nil
	}

	nextStart := step(src.DateStart)
	nextEnd := step(src.DateEnd)

	next := &models.Match{
		Name:                src.Name,
		Description:         src.Description,
		DateStart:           nextStart,
		DateEnd:             nextEnd,
		Location:            src.Location,
		MaxPlayers:          src.MaxPlayers,
		Level:               src.Level,
		Status:              models.MatchStatusActive,
		IsRecurring:         src.IsRecurring,
		RecurrenceFrequency: src.RecurrenceFrequency,
		OrganizerUserID:     src.OrganizerUserID,
		OrganizerPhone:      src.OrganizerPhone,
		OrganizerEmail:      src.OrganizerEmail,
		IsFree:              src.IsFree,
		EntryFee:            src.EntryFee,
		PaymentMethods:      src.PaymentMethods,
	}

	if src.RegistrationStart != nil {
		shifted := nextStart.Add(src.RegistrationStart.Sub(src.DateStart))
		next.RegistrationStart = &shifted
	}
	if src.RegistrationEnd != nil {
		shifted := nextStart.Add(src.RegistrationEnd.Sub(src.DateStart))
		next.RegistrationEnd = &shifted
	}

	return next
}

// addMonthClamped шагает на календарный месяц вперёд. Если в целевом месяце
// нет такого дня (31 января -> февраль), дата прижимается к последнему дню
// целевого месяца вместо перетекания в следующий (как сделал бы AddDate).
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := daysIn(firstOfNext.Year(), firstOfNext.Month(), t.Location())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// День 0 следующего месяца - последний день текущего.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
