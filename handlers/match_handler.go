package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pokopiemy/match-system/middleware"
	"github.com/pokopiemy/match-system/models"
	"github.com/pokopiemy/match-system/repositories"
	"github.com/pokopiemy/match-system/services"
)

type MatchHandler struct {
	matchService *services.MatchService
	userService  *services.UserService
	logger       *slog.Logger
}

func NewMatchHandler(matchService *services.MatchService, userService *services.UserService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{matchService: matchService, userService: userService, logger: logger}
}

// reconcile актуализирует статусы перед read-heavy операциями. Свип
// идемпотентен; его сбой не должен ломать чтение.
func (h *MatchHandler) reconcile(r *http.Request) {
	if err := h.matchService.ReconcileStatuses(r.Context()); err != nil {
		h.logger.Error("status reconciliation failed", slog.Any("error", err))
	}
}

func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	h.reconcile(r)

	filter := repositories.ListMatchesFilter{
		Location: r.URL.Query().Get("location"),
	}

	statusParam := r.URL.Query().Get("status")
	if statusParam == "" {
		statusParam = string(models.MatchStatusActive)
	}
	if statusParam != "all" {
		status := models.MatchStatus(statusParam)
		filter.Status = &status
	}

	if dateFromParam := r.URL.Query().Get("dateFrom"); dateFromParam != "" {
		dateFrom, err := time.Parse(time.RFC3339, dateFromParam)
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		filter.DateFrom = &dateFrom
	}

	matches, err := h.matchService.ListMatches(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.reconcile(r)

	id, err := idParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	env := jsonResponse{"match": match}
	h.addCallerFlags(r, match, env)

	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// addCallerFlags обогащает ответ для вошедшего пользователя: организатор
// ли он этого матча и записан ли на него. Анонимный запрос флагов не
// получает.
func (h *MatchHandler) addCallerFlags(r *http.Request, match *models.Match, env jsonResponse) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		return
	}

	isRegistered := false
	for _, reg := range match.Registrations {
		if reg.UserID == userID {
			isRegistered = true
			break
		}
	}
	env["is_registered"] = isRegistered

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		return
	}
	env["is_organizer"] = services.IsOrganizer(user, match)
}

type createMatchRequest struct {
	Name                string                      `json:"name"`
	Description         *string                     `json:"description"`
	DateStart           time.Time                   `json:"date_start"`
	DateEnd             time.Time                   `json:"date_end"`
	RegistrationStart   *time.Time                  `json:"registration_start"`
	RegistrationEnd     *time.Time                  `json:"registration_end"`
	Location            string                      `json:"location"`
	MaxPlayers          int                         `json:"max_players"`
	Level               models.MatchLevel           `json:"level"`
	IsRecurring         bool                        `json:"is_recurring"`
	RecurrenceFrequency *models.RecurrenceFrequency `json:"recurrence_frequency"`
	OrganizerPhone      *string                     `json:"organizer_phone"`
	OrganizerEmail      *string                     `json:"organizer_email"`
	IsFree              bool                        `json:"is_free"`
	EntryFee            *string                     `json:"entry_fee"`
	PaymentMethods      []string                    `json:"payment_methods"`
}

func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	creatorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "invalid authentication context")
		return
	}

	match, err := h.matchService.CreateMatch(r.Context(), services.CreateMatchInput{
		Name:                req.Name,
		Description:         req.Description,
		DateStart:           req.DateStart,
		DateEnd:             req.DateEnd,
		RegistrationStart:   req.RegistrationStart,
		RegistrationEnd:     req.RegistrationEnd,
		Location:            req.Location,
		MaxPlayers:          req.MaxPlayers,
		Level:               req.Level,
		IsRecurring:         req.IsRecurring,
		RecurrenceFrequency: req.RecurrenceFrequency,
		OrganizerPhone:      req.OrganizerPhone,
		OrganizerEmail:      req.OrganizerEmail,
		IsFree:              req.IsFree,
		EntryFee:            req.EntryFee,
		PaymentMethods:      req.PaymentMethods,
	}, creatorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type updateMatchRequest struct {
	Name                *string                     `json:"name"`
	Description         *string                     `json:"description"`
	DateStart           *time.Time                  `json:"date_start"`
	DateEnd             *time.Time                  `json:"date_end"`
	RegistrationStart   *time.Time                  `json:"registration_start"`
	RegistrationEnd     *time.Time                  `json:"registration_end"`
	Location            *string                     `json:"location"`
	MaxPlayers          *int                        `json:"max_players"`
	Level               *models.MatchLevel          `json:"level"`
	Status              *models.MatchStatus         `json:"status"`
	IsRecurring         *bool                       `json:"is_recurring"`
	RecurrenceFrequency *models.RecurrenceFrequency `json:"recurrence_frequency"`
	OrganizerPhone      *string                     `json:"organizer_phone"`
	OrganizerEmail      *string                     `json:"organizer_email"`
	IsFree              *bool                       `json:"is_free"`
	EntryFee            *string                     `json:"entry_fee"`
	PaymentMethods      []string                    `json:"payment_methods"`
}

func (h *MatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var req updateMatchRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.UpdateMatch(r.Context(), id, services.UpdateMatchInput{
		Name:                req.Name,
		Description:         req.Description,
		DateStart:           req.DateStart,
		DateEnd:             req.DateEnd,
		RegistrationStart:   req.RegistrationStart,
		RegistrationEnd:     req.RegistrationEnd,
		Location:            req.Location,
		MaxPlayers:          req.MaxPlayers,
		Level:               req.Level,
		Status:              req.Status,
		IsRecurring:         req.IsRecurring,
		RecurrenceFrequency: req.RecurrenceFrequency,
		OrganizerPhone:      req.OrganizerPhone,
		OrganizerEmail:      req.OrganizerEmail,
		IsFree:              req.IsFree,
		EntryFee:            req.EntryFee,
		PaymentMethods:      req.PaymentMethods,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Cancel - отмена матча организатором или администратором.
func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "invalid authentication context")
		return
	}
	isAdmin, err := middleware.GetIsAdminFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "invalid authentication context")
		return
	}

	if err := h.matchService.CancelMatch(r.Context(), id, userID, isAdmin); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"success": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Finish - явное завершение матча администратором, без проверки времени.
func (h *MatchHandler) Finish(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.matchService.FinishMatch(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"success": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.matchService.DeleteMatch(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"success": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
