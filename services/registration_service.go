package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pokopiemy/match-system/models"
	"github.com/pokopiemy/match-system/repositories"
)

// RegistrationService проверяет и выполняет запись пользователя на матч.
//
// Предварительные проверки здесь дают ранние понятные отказы; решающая
// проверка "статус активен и счётчик < max_players" выполняется в
// репозитории под блокировкой строки матча, одной транзакцией со
// вставкой. Два одновременных запроса не займут последний слот дважды,
// даже из разных инстансов сервиса.
type RegistrationService struct {
	regRepo   repositories.RegistrationRepository
	matchRepo repositories.MatchRepository
	events    MatchEventPublisher
	logger    *slog.Logger
}

func NewRegistrationService(
	regRepo repositories.RegistrationRepository,
	matchRepo repositories.MatchRepository,
	events MatchEventPublisher,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		regRepo:   regRepo,
		matchRepo: matchRepo,
		events:    events,
		logger:    logger,
	}
}

// Register записывает пользователя на матч. Каждый отказ различим:
// ErrMatchNotFound, ErrMatchNotActive, ErrAlreadyRegistered, ErrMatchFull.
func (s *RegistrationService) Register(ctx context.Context, matchID, userID int) (*models.Registration, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}
	if match.Status != models.MatchStatusActive {
		return nil, ErrMatchNotActive
	}

	_, err = s.regRepo.FindByMatchAndUser(ctx, matchID, userID)
	if err == nil {
		return nil, ErrAlreadyRegistered
	}
	if !errors.Is(err, repositories.ErrRegistrationNotFound) {
		return nil, fmt.Errorf("failed to check existing registration: %w", err)
	}

	count, err := s.regRepo.CountByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations for match %d: %w", matchID, err)
	}
	if count >= match.MaxPlayers {
		return nil, ErrMatchFull
	}

	reg := &models.Registration{MatchID: matchID, UserID: userID}
	if err := s.regRepo.Create(ctx, reg); err != nil {
		return nil, s.classifyCreateFailure(ctx, matchID, err)
	}

	if s.events != nil {
		s.events.PublishMatchEvent(matchID, EventRegistrationCreated, reg)
	}
	return reg, nil
}

// classifyCreateFailure разбирает отказ вставки: повторная проверка
// состояния матча говорит, какая именно предпосылка нарушилась.
func (s *RegistrationService) classifyCreateFailure(ctx context.Context, matchID int, createErr error) error {
	if errors.Is(createErr, repositories.ErrRegistrationConflict) {
		return ErrAlreadyRegistered
	}
	if !errors.Is(createErr, repositories.ErrRegistrationRejected) {
		return fmt.Errorf("failed to create registration: %w", createErr)
	}

	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("failed to classify rejected registration: %w", err)
	}
	if match.Status != models.MatchStatusActive {
		return ErrMatchNotActive
	}
	return ErrMatchFull
}

// Unregister удаляет запись. Разрешено владельцу записи и администратору.
// Повторное удаление того же id возвращает ErrRegistrationNotFound.
func (s *RegistrationService) Unregister(ctx context.Context, registrationID, requesterID int, requesterIsAdmin bool) error {
	reg, err := s.regRepo.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to load registration %d: %w", registrationID, err)
	}

	if reg.UserID != requesterID && !requesterIsAdmin {
		return ErrForbiddenOperation
	}

	if err := s.regRepo.Delete(ctx, registrationID); err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to delete registration %d: %w", registrationID, err)
	}

	if s.events != nil {
		s.events.PublishMatchEvent(reg.MatchID, EventRegistrationDeleted, reg)
	}
	return nil
}

// ListByUser возвращает записи пользователя (страница "мои матчи").
func (s *RegistrationService) ListByUser(ctx context.Context, userID int) ([]models.Registration, error) {
	return s.regRepo.ListByUser(ctx, userID)
}
