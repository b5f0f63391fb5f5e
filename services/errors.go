package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrMatchNotFound        = errors.New("match not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrRegistrationNotFound = errors.New("registration not found")

	// Ошибки конфликтов (различимы, чтобы UI мог показать точное сообщение)
	ErrMatchNotActive    = errors.New("cannot register for inactive match")
	ErrMatchFull         = errors.New("match is full")
	ErrAlreadyRegistered = errors.New("already registered for this match")
	ErrUserEmailConflict = errors.New("email address is already in use")

	// Ошибки аутентификации и авторизации
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
	ErrNotOrganizer       = errors.New("only the match organizer can cancel it")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed          = errors.New("validation failed")
	ErrMatchNameRequired         = errors.New("match name is required")
	ErrMatchLocationRequired     = errors.New("match location is required")
	ErrMatchInvalidDateRange     = errors.New("match end date must be after start date")
	ErrMatchInvalidCapacity      = errors.New("match max players must be positive")
	ErrMatchInvalidLevel         = errors.New("invalid match level provided")
	ErrMatchInvalidFrequency     = errors.New("invalid recurrence frequency provided")
	ErrMatchFrequencyRequired    = errors.New("recurrence frequency is required for recurring matches")
	ErrMatchInvalidPaymentMethod = errors.New("invalid payment method provided")
	ErrMatchTerminalStatus       = errors.New("match is already finished or canceled")
	ErrPasswordTooShort          = errors.New("password is too short")
)
