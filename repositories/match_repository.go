package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pokopiemy/match-system/models"
)

var (
	ErrMatchNotFound      = errors.New("match not found")
	ErrMatchNotActive     = errors.New("match is not active")
	ErrMatchInvalidFields = errors.New("match violates a storage constraint")
)

// ListMatchesFilter сужает выдачу List; нулевые значения - "без фильтра".
type ListMatchesFilter struct {
	Status   *models.MatchStatus
	Location string // подстрока, без учёта регистра
	DateFrom *time.Time
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	List(ctx context.Context, filter ListMatchesFilter) ([]models.Match, error)
	FindByStatus(ctx context.Context, status models.MatchStatus) ([]models.Match, error)
	Update(ctx context.Context, match *models.Match) error
	// TransitionFromActive меняет статус только пока строка всё ещё
	// активна: повторные проходы и конкурирующие переходы безопасны.
	TransitionFromActive(ctx context.Context, exec SQLExecutor, id int, to models.MatchStatus) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, name, description, date_start, date_end, registration_start, registration_end,
	location, max_players, level, status, is_recurring, recurrence_frequency,
	organizer_user_id, organizer_phone, organizer_email,
	is_free, entry_fee, payment_methods, created_at`

func (r *postgresMatchRepository) scanMatch(row interface{ Scan(dest ...interface{}) error }, m *models.Match) error {
	return row.Scan(
		&m.ID, &m.Name, &m.Description, &m.DateStart, &m.DateEnd,
		&m.RegistrationStart, &m.RegistrationEnd,
		&m.Location, &m.MaxPlayers, &m.Level, &m.Status,
		&m.IsRecurring, &m.RecurrenceFrequency,
		&m.OrganizerUserID, &m.OrganizerPhone, &m.OrganizerEmail,
		&m.IsFree, &m.EntryFee, &m.PaymentMethods, &m.CreatedAt,
	)
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			name, description, date_start, date_end, registration_start, registration_end,
			location, max_players, level, status, is_recurring, recurrence_frequency,
			organizer_user_id, organizer_phone, organizer_email,
			is_free, entry_fee, payment_methods
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		m.Name, m.Description, m.DateStart, m.DateEnd, m.RegistrationStart, m.RegistrationEnd,
		m.Location, m.MaxPlayers, m.Level, m.Status, m.IsRecurring, m.RecurrenceFrequency,
		m.OrganizerUserID, m.OrganizerPhone, m.OrganizerEmail,
		m.IsFree, m.EntryFee, m.PaymentMethods,
	).Scan(&m.ID, &m.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23514", "22P02": // check_violation, invalid enum input
				return fmt.Errorf("%w: %s", ErrMatchInvalidFields, pqErr.Message)
			}
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	m := &models.Match{}
	row := r.db.QueryRowContext(ctx, `SELECT`+matchColumns+` FROM matches WHERE id = $1`, id)
	if err := r.scanMatch(row, m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

func (r *postgresMatchRepository) List(ctx context.Context, filter ListMatchesFilter) ([]models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchColumns + ` FROM matches WHERE 1=1`)

	args := make([]interface{}, 0, 3)
	argCounter := 1

	if filter.Status != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND status = $%d", argCounter))
		args = append(args, *filter.Status)
		argCounter++
	}
	if filter.Location != "" {
		queryBuilder.WriteString(fmt.Sprintf(" AND location ILIKE $%d", argCounter))
		args = append(args, "%"+filter.Location+"%")
		argCounter++
	}
	if filter.DateFrom != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND date_start >= $%d", argCounter))
		args = append(args, *filter.DateFrom)
		argCounter++
	}
	queryBuilder.WriteString(" ORDER BY date_start ASC")

	return r.queryMatches(ctx, queryBuilder.String(), args...)
}

func (r *postgresMatchRepository) FindByStatus(ctx context.Context, status models.MatchStatus) ([]models.Match, error) {
	return r.queryMatches(ctx, `SELECT`+matchColumns+` FROM matches WHERE status = $1 ORDER BY date_start ASC`, status)
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, query string, args ...interface{}) ([]models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]models.Match, 0)
	for rows.Next() {
		var m models.Match
		if err := r.scanMatch(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match rows iteration error: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, m *models.Match) error {
	query := `
		UPDATE matches SET
			name = $1, description = $2, date_start = $3, date_end = $4,
			registration_start = $5, registration_end = $6, location = $7,
			max_players = $8, level = $9, status = $10,
			is_recurring = $11, recurrence_frequency = $12,
			organizer_user_id = $13, organizer_phone = $14, organizer_email = $15,
			is_free = $16, entry_fee = $17, payment_methods = $18
		WHERE id = $19`

	result, err := r.db.ExecContext(ctx, query,
		m.Name, m.Description, m.DateStart, m.DateEnd,
		m.RegistrationStart, m.RegistrationEnd, m.Location,
		m.MaxPlayers, m.Level, m.Status,
		m.IsRecurring, m.RecurrenceFrequency,
		m.OrganizerUserID, m.OrganizerPhone, m.OrganizerEmail,
		m.IsFree, m.EntryFee, m.PaymentMethods, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) TransitionFromActive(ctx context.Context, exec SQLExecutor, id int, to models.MatchStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, models.MatchStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to transition match status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for match transition: %w", err)
	}
	if rowsAffected == 0 {
		// Либо строки нет, либо матч уже покинул active.
		var exists bool
		if err := executor.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM matches WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to classify match transition failure: %w", err)
		}
		if !exists {
			return ErrMatchNotFound
		}
		return ErrMatchNotActive
	}
	return nil
}

func (r *postgresMatchRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}
