package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pokopiemy/match-system/models"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrRegistrationConflict: пара (match_id, user_id) уже существует.
	ErrRegistrationConflict = errors.New("registration conflict: user already registered for this match")
	// ErrRegistrationRejected: матч не найден, уже не активен или заполнен.
	ErrRegistrationRejected = errors.New("registration rejected by capacity guard")
)

type RegistrationRepository interface {
	// Create записывает пользователя на матч, только пока матч активен и
	// не заполнен. Проверка и вставка идут одной транзакцией под
	// блокировкой строки матча (FOR UPDATE), поэтому гарантия действует
	// и между инстансами сервиса, и против параллельного перехода матча
	// в терминальный статус.
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id int) (*models.Registration, error)
	FindByMatchAndUser(ctx context.Context, matchID, userID int) (*models.Registration, error)
	ListByMatch(ctx context.Context, matchID int) ([]models.Registration, error)
	ListByUser(ctx context.Context, userID int) ([]models.Registration, error)
	CountByMatch(ctx context.Context, matchID int) (int, error)
	Delete(ctx context.Context, id int) error
	// DeleteByMatch удаляет все записи матча и возвращает удалённые
	// строки, чтобы вызывающий мог уведомить затронутых пользователей.
	DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]models.Registration, error)
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin registration transaction: %w", err)
	}
	defer tx.Rollback()

	// FOR UPDATE сериализует вставку и с другими вставками на тот же матч,
	// и с переходами active -> finished/canceled: после commit конкурента
	// повторное чтение строки увидит уже терминальный статус.
	var status models.MatchStatus
	var maxPlayers int
	err = tx.QueryRowContext(ctx,
		`SELECT status, max_players FROM matches WHERE id = $1 FOR UPDATE`,
		reg.MatchID,
	).Scan(&status, &maxPlayers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationRejected
		}
		return fmt.Errorf("failed to lock match row: %w", err)
	}
	if status != models.MatchStatusActive {
		return ErrRegistrationRejected
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE match_id = $1`, reg.MatchID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count registrations: %w", err)
	}
	if count >= maxPlayers {
		return ErrRegistrationRejected
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO registrations (match_id, user_id) VALUES ($1, $2) RETURNING id, created_at`,
		reg.MatchID, reg.UserID,
	).Scan(&reg.ID, &reg.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505": // unique_violation on (match_id, user_id)
				return ErrRegistrationConflict
			case "23503": // foreign_key_violation
				return ErrRegistrationRejected
			}
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Registration, error) {
	reg := &models.Registration{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&reg.ID, &reg.MatchID, &reg.UserID, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	return r.findOne(ctx, `SELECT id, match_id, user_id, created_at FROM registrations WHERE id = $1`, id)
}

func (r *postgresRegistrationRepository) FindByMatchAndUser(ctx context.Context, matchID, userID int) (*models.Registration, error) {
	return r.findOne(ctx, `SELECT id, match_id, user_id, created_at FROM registrations WHERE match_id = $1 AND user_id = $2`, matchID, userID)
}

func (r *postgresRegistrationRepository) ListByMatch(ctx context.Context, matchID int) ([]models.Registration, error) {
	return r.queryRegistrations(ctx,
		`SELECT id, match_id, user_id, created_at FROM registrations WHERE match_id = $1 ORDER BY created_at ASC`, matchID)
}

func (r *postgresRegistrationRepository) ListByUser(ctx context.Context, userID int) ([]models.Registration, error) {
	return r.queryRegistrations(ctx,
		`SELECT id, match_id, user_id, created_at FROM registrations WHERE user_id = $1 ORDER BY created_at ASC`, userID)
}

func (r *postgresRegistrationRepository) queryRegistrations(ctx context.Context, query string, args ...interface{}) ([]models.Registration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	regs := make([]models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.MatchID, &reg.UserID, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registration rows iteration error: %w", err)
	}
	return regs, nil
}

func (r *postgresRegistrationRepository) CountByMatch(ctx context.Context, matchID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE match_id = $1`, matchID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

func (r *postgresRegistrationRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]models.Registration, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx,
		`DELETE FROM registrations WHERE match_id = $1 RETURNING id, match_id, user_id, created_at`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete registrations by match: %w", err)
	}
	defer rows.Close()

	deleted := make([]models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.MatchID, &reg.UserID, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deleted registration: %w", err)
		}
		deleted = append(deleted, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deleted registration rows iteration error: %w", err)
	}
	return deleted, nil
}
