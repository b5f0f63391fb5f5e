package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pokopiemy/match-system/models"
	"github.com/pokopiemy/match-system/repositories"
)

// CancellationNotifier уведомляет ранее записанных игроков об отмене матча.
// Список получателей передаётся снаружи: на момент вызова их записи уже
// удалены из хранилища. Реализация не возвращает ошибок - сбой доставки
// одному получателю логируется и не мешает остальным.
type CancellationNotifier interface {
	NotifyCancellation(ctx context.Context, match *models.Match, recipients []models.Registration)
}

// MatchService реализует жизненный цикл матча: active -> finished/canceled,
// каскадное удаление записей и порождение следующего матча цикличной серии.
// Оба терминальных статуса безвыходны.
type MatchService struct {
	matchRepo repositories.MatchRepository
	regRepo   repositories.RegistrationRepository
	userRepo  repositories.UserRepository
	tx        repositories.Transactor
	notifier  CancellationNotifier
	events    MatchEventPublisher
	logger    *slog.Logger

	now func() time.Time
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	regRepo repositories.RegistrationRepository,
	userRepo repositories.UserRepository,
	tx repositories.Transactor,
	notifier CancellationNotifier,
	events MatchEventPublisher,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		matchRepo: matchRepo,
		regRepo:   regRepo,
		userRepo:  userRepo,
		tx:        tx,
		notifier:  notifier,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateMatchInput - поля нового матча от администратора.
type CreateMatchInput struct {
	Name                string
	Description         *string
	DateStart           time.Time
	DateEnd             time.Time
	RegistrationStart   *time.Time
	RegistrationEnd     *time.Time
	Location            string
	MaxPlayers          int
	Level               models.MatchLevel
	IsRecurring         bool
	RecurrenceFrequency *models.RecurrenceFrequency
	OrganizerPhone      *string
	OrganizerEmail      *string
	IsFree              bool
	EntryFee            *string
	PaymentMethods      []string
}

func (s *MatchService) CreateMatch(ctx context.Context, input CreateMatchInput, creatorID int) (*models.Match, error) {
	if input.Level == "" {
		input.Level = models.LevelKopanina
	}
	match := &models.Match{
		Name:                input.Name,
		Description:         input.Description,
		DateStart:           input.DateStart,
		DateEnd:             input.DateEnd,
		RegistrationStart:   input.RegistrationStart,
		RegistrationEnd:     input.RegistrationEnd,
		Location:            input.Location,
		MaxPlayers:          input.MaxPlayers,
		Level:               input.Level,
		Status:              models.MatchStatusActive,
		IsRecurring:         input.IsRecurring,
		RecurrenceFrequency: input.RecurrenceFrequency,
		OrganizerPhone:      input.OrganizerPhone,
		OrganizerEmail:      input.OrganizerEmail,
		IsFree:              input.IsFree,
		EntryFee:            input.EntryFee,
		PaymentMethods:      pq.StringArray(input.PaymentMethods),
	}
	if match.PaymentMethods == nil {
		match.PaymentMethods = pq.StringArray{}
	}
	// Для бесплатного матча взнос и способы оплаты не имеют смысла.
	if match.IsFree {
		match.EntryFee = nil
		match.PaymentMethods = pq.StringArray{}
	}

	if err := validateMatchFields(match); err != nil {
		return nil, err
	}
	match.OrganizerUserID = s.resolveOrganizerLink(ctx, input.OrganizerPhone, input.OrganizerEmail, creatorID)

	if err := s.matchRepo.Create(ctx, nil, match); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return match, nil
}

// resolveOrganizerLink превращает контакты организатора в явную ссылку.
// Без контактов организатором считается создатель. Контакты, однозначно
// указывающие на одного пользователя, дают ссылку на него. При
// неоднозначности или отсутствии совпадений ссылка не ставится: остаётся
// правило совпадения контактов (IsOrganizer), включая позднюю привязку
// пользователя, который заведёт такой телефон или email после создания.
func (s *MatchService) resolveOrganizerLink(ctx context.Context, phone, email *string, creatorID int) *int {
	if derefString(phone) == "" && derefString(email) == "" {
		return &creatorID
	}
	return s.lookupOrganizerByContacts(ctx, phone, email)
}

// lookupOrganizerByContacts ищет пользователя по контактам организатора.
// Ссылка ставится только при однозначном совпадении.
func (s *MatchService) lookupOrganizerByContacts(ctx context.Context, phone, email *string) *int {
	users, err := s.userRepo.FindByPhoneOrEmail(ctx, derefString(phone), derefString(email))
	if err != nil {
		s.logger.Error("failed to resolve organizer contacts", slog.Any("error", err))
		return nil
	}
	if len(users) == 1 {
		id := users[0].ID
		return &id
	}
	return nil
}

// UpdateMatchInput - частичное обновление; nil-поля не трогаются.
type UpdateMatchInput struct {
	Name                *string
	Description         *string
	DateStart           *time.Time
	DateEnd             *time.Time
	RegistrationStart   *time.Time
	RegistrationEnd     *time.Time
	Location            *string
	MaxPlayers          *int
	Level               *models.MatchLevel
	Status              *models.MatchStatus
	IsRecurring         *bool
	RecurrenceFrequency *models.RecurrenceFrequency
	OrganizerPhone      *string
	OrganizerEmail      *string
	IsFree              *bool
	EntryFee            *string
	PaymentMethods      []string
}

// UpdateMatch применяет правки администратора. Смена статуса на canceled
// или finished проходит через тот же каскадный переход, что и явные
// операции: удалённые записи и уведомления не зависят от того, каким
// путём матч покинул active.
func (s *MatchService) UpdateMatch(ctx context.Context, id int, input UpdateMatchInput) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %d: %w", id, err)
	}

	statusChange := input.Status != nil && *input.Status != match.Status
	if statusChange {
		if match.Status.IsTerminal() {
			return nil, ErrMatchTerminalStatus
		}
		if *input.Status != models.MatchStatusCanceled && *input.Status != models.MatchStatusFinished {
			return nil, fmt.Errorf("%w: cannot set status %q", ErrValidationFailed, *input.Status)
		}
	}

	// Сначала валидация итогового состояния, потом побочные эффекты.
	updated := *match
	applyMatchUpdates(&updated, input)
	if err := validateMatchFields(&updated); err != nil {
		return nil, err
	}

	// Смена контактов организатора пересчитывает явную ссылку: иначе
	// прежняя ссылка сохраняла бы права отмены за старым организатором.
	// Полное удаление контактов ссылку не трогает.
	if input.OrganizerPhone != nil || input.OrganizerEmail != nil {
		if derefString(updated.OrganizerPhone) != "" || derefString(updated.OrganizerEmail) != "" {
			updated.OrganizerUserID = s.lookupOrganizerByContacts(ctx, updated.OrganizerPhone, updated.OrganizerEmail)
		}
	}

	if statusChange {
		switch *input.Status {
		case models.MatchStatusCanceled:
			if err := s.cancelActiveMatch(ctx, match); err != nil {
				return nil, err
			}
		case models.MatchStatusFinished:
			if _, err := s.finishActiveMatch(ctx, match); err != nil {
				return nil, err
			}
		}
		updated.Status = *input.Status
	}
	match = &updated

	if err := s.matchRepo.Update(ctx, match); err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to update match %d: %w", id, err)
	}
	return match, nil
}

func applyMatchUpdates(m *models.Match, input UpdateMatchInput) {
	if input.Name != nil {
		m.Name = *input.Name
	}
	if input.Description != nil {
		m.Description = input.Description
	}
	if input.DateStart != nil {
		m.DateStart = *input.DateStart
	}
	if input.DateEnd != nil {
		m.DateEnd = *input.DateEnd
	}
	if input.RegistrationStart != nil {
		m.RegistrationStart = input.RegistrationStart
	}
	if input.RegistrationEnd != nil {
		m.RegistrationEnd = input.RegistrationEnd
	}
	if input.Location != nil {
		m.Location = *input.Location
	}
	if input.MaxPlayers != nil {
		m.MaxPlayers = *input.MaxPlayers
	}
	if input.Level != nil {
		m.Level = *input.Level
	}
	if input.IsRecurring != nil {
		m.IsRecurring = *input.IsRecurring
	}
	if input.RecurrenceFrequency != nil {
		m.RecurrenceFrequency = input.RecurrenceFrequency
	}
	if input.OrganizerPhone != nil {
		m.OrganizerPhone = input.OrganizerPhone
	}
	if input.OrganizerEmail != nil {
		m.OrganizerEmail = input.OrganizerEmail
	}
	if input.IsFree != nil {
		m.IsFree = *input.IsFree
	}
	if input.PaymentMethods != nil {
		m.PaymentMethods = pq.StringArray(input.PaymentMethods)
	}
	if input.EntryFee != nil {
		m.EntryFee = input.EntryFee
	}
	if m.IsFree {
		m.EntryFee = nil
		m.PaymentMethods = pq.StringArray{}
	}
}

// GetMatch возвращает матч с записями и данными игроков.
func (s *MatchService) GetMatch(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %d: %w", id, err)
	}
	if err := s.populateRegistrations(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

// ListMatches возвращает матчи по фильтру, каждый с записями и счётчиком.
func (s *MatchService) ListMatches(ctx context.Context, filter repositories.ListMatchesFilter) ([]models.Match, error) {
	matches, err := s.matchRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	for i := range matches {
		if err := s.populateRegistrations(ctx, &matches[i]); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (s *MatchService) populateRegistrations(ctx context.Context, match *models.Match) error {
	regs, err := s.regRepo.ListByMatch(ctx, match.ID)
	if err != nil {
		return fmt.Errorf("failed to list registrations for match %d: %w", match.ID, err)
	}
	for i := range regs {
		user, err := s.userRepo.GetByID(ctx, regs[i].UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				continue
			}
			return fmt.Errorf("failed to load user %d: %w", regs[i].UserID, err)
		}
		regs[i].User = user
	}
	match.Registrations = regs
	match.RegisteredCount = len(regs)
	return nil
}

// ReconcileStatuses переводит просроченные активные матчи в finished.
// Функция чистая относительно часов и состояния хранилища: повторный вызов
// без прошедшего времени ничего не меняет. Каждое естественное истечение
// цикличного матча порождает ровно одного преемника - условный переход в
// хранилище гарантирует, что конкурирующие вызовы не истекут матч дважды.
func (s *MatchService) ReconcileStatuses(ctx context.Context) error {
	active, err := s.matchRepo.FindByStatus(ctx, models.MatchStatusActive)
	if err != nil {
		return fmt.Errorf("failed to load active matches: %w", err)
	}

	now := s.now()
	var lastErr error
	for i := range active {
		match := &active[i]
		if !now.After(match.DateEnd) {
			continue
		}

		expired, err := s.finishActiveMatch(ctx, match)
		if err != nil {
			s.logger.Error("failed to expire match",
				slog.Int("match_id", match.ID), slog.Any("error", err))
			lastErr = err
			continue
		}
		if !expired {
			// Другой вызов успел первым.
			continue
		}

		s.logger.Info("match expired",
			slog.Int("match_id", match.ID), slog.String("name", match.Name),
			slog.Time("date_end", match.DateEnd))

		if match.IsRecurring && match.RecurrenceFrequency != nil {
			s.createNextOccurrence(ctx, match)
		}
	}
	return lastErr
}

// finishActiveMatch выполняет каскадный переход active -> finished одной
// транзакцией. Возвращает false, если матч уже покинул active (повторный
// проход, конкурирующий вызов) - это не ошибка для идемпотентного свипа.
func (s *MatchService) finishActiveMatch(ctx context.Context, match *models.Match) (bool, error) {
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.TransitionFromActive(ctx, exec, match.ID, models.MatchStatusFinished); err != nil {
			return err
		}
		if _, err := s.regRepo.DeleteByMatch(ctx, exec, match.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotActive) {
			return false, nil
		}
		return false, err
	}

	if s.events != nil {
		s.events.PublishMatchEvent(match.ID, EventMatchFinished, nil)
	}
	return true, nil
}

// createNextOccurrence материализует следующий матч серии. Сбой здесь не
// откатывает уже состоявшийся переход в finished: продолжение серии -
// best-effort, а не транзакционный близнец смены статуса.
func (s *MatchService) createNextOccurrence(ctx context.Context, src *models.Match) {
	next := NextOccurrence(src)
	if next == nil {
		return
	}
	if err := s.matchRepo.Create(ctx, nil, next); err != nil {
		s.logger.Error("failed to create next recurring match",
			slog.Int("source_match_id", src.ID),
			slog.String("frequency", string(*src.RecurrenceFrequency)),
			slog.Any("error", err))
		return
	}
	s.logger.Info("recurring match regenerated",
		slog.Int("source_match_id", src.ID), slog.Int("new_match_id", next.ID),
		slog.Time("date_start", next.DateStart))
}

// CancelMatch отменяет активный матч. Право есть у организатора
// (см. IsOrganizer) и администратора. Записи удаляются каскадно в одной
// транзакции со сменой статуса; уведомления уходят после фиксации,
// по списку, снятому этим же DELETE ... RETURNING.
func (s *MatchService) CancelMatch(ctx context.Context, id, requesterID int, requesterIsAdmin bool) error {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("failed to load match %d: %w", id, err)
	}

	if !requesterIsAdmin {
		requester, err := s.userRepo.GetByID(ctx, requesterID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user %d: %w", requesterID, err)
		}
		if !IsOrganizer(requester, match) {
			return ErrNotOrganizer
		}
	}

	if match.Status != models.MatchStatusActive {
		return ErrMatchNotActive
	}

	return s.cancelActiveMatch(ctx, match)
}

func (s *MatchService) cancelActiveMatch(ctx context.Context, match *models.Match) error {
	var recipients []models.Registration
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.TransitionFromActive(ctx, exec, match.ID, models.MatchStatusCanceled); err != nil {
			return err
		}
		deleted, err := s.regRepo.DeleteByMatch(ctx, exec, match.ID)
		if err != nil {
			return err
		}
		recipients = deleted
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotActive) {
			return ErrMatchNotActive
		}
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("failed to cancel match %d: %w", match.ID, err)
	}

	s.logger.Info("match canceled",
		slog.Int("match_id", match.ID), slog.String("name", match.Name),
		slog.Int("registered_players", len(recipients)))

	if s.notifier != nil && len(recipients) > 0 {
		// Уведомления не должны блокировать ни отмену, ни ответ вызывающему.
		go s.notifier.NotifyCancellation(context.WithoutCancel(ctx), match, recipients)
	}
	if s.events != nil {
		s.events.PublishMatchEvent(match.ID, EventMatchCanceled, nil)
	}
	return nil
}

// FinishMatch - явное административное завершение, без проверки времени.
// Преемник цикличной серии при ручном завершении не создаётся: серия
// продолжается только по естественному истечению.
func (s *MatchService) FinishMatch(ctx context.Context, id int) error {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("failed to load match %d: %w", id, err)
	}
	if match.Status != models.MatchStatusActive {
		return ErrMatchNotActive
	}

	if _, err := s.finishActiveMatch(ctx, match); err != nil {
		return fmt.Errorf("failed to finish match %d: %w", id, err)
	}
	return nil
}

// DeleteMatch удаляет матч в любом статусе вместе со всеми записями.
func (s *MatchService) DeleteMatch(ctx context.Context, id int) error {
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if _, err := s.regRepo.DeleteByMatch(ctx, exec, id); err != nil {
			return err
		}
		return s.matchRepo.Delete(ctx, exec, id)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("failed to delete match %d: %w", id, err)
	}
	return nil
}
