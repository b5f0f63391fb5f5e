package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pokopiemy/match-system/models"
	"github.com/pokopiemy/match-system/repositories"
)

// fakeStore - общая in-memory реализация трёх репозиториев и Transactor
// для тестов сервисов. Семантика повторяет postgres-реализации: проверка
// статуса и вместимости атомарна со вставкой записи (как блокировка
// строки матча), DeleteByMatch возвращает удалённые строки, WithinTx
// откатывает изменения при ошибке.
type fakeStore struct {
	mu sync.Mutex

	users         map[int]models.User
	matches       map[int]models.Match
	registrations map[int]models.Registration

	nextUserID  int
	nextMatchID int
	nextRegID   int

	// Инъекция сбоя хранилища для проверки атомарности каскадов.
	failDeleteByMatch error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[int]models.User),
		matches:       make(map[int]models.Match),
		registrations: make(map[int]models.Registration),
		nextUserID:    1,
		nextMatchID:   1,
		nextRegID:     1,
	}
}

func (s *fakeStore) addUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextUserID
	s.nextUserID++
	u.CreatedAt = time.Now()
	s.users[u.ID] = u
	return u
}

func (s *fakeStore) addMatch(m models.Match) models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextMatchID
	s.nextMatchID++
	m.CreatedAt = time.Now()
	s.matches[m.ID] = m
	return m
}

func (s *fakeStore) registrationCount(matchID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, reg := range s.registrations {
		if reg.MatchID == matchID {
			count++
		}
	}
	return count
}

// --- Transactor ---

func (s *fakeStore) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	s.mu.Lock()
	usersCopy := copyMap(s.users)
	matchesCopy := copyMap(s.matches)
	regsCopy := copyMap(s.registrations)
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.users = usersCopy
		s.matches = matchesCopy
		s.registrations = regsCopy
		s.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[V any](src map[int]V) map[int]V {
	dst := make(map[int]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// --- UserRepository ---

func (s *fakeStore) Create(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	u.ID = s.nextUserID
	s.nextUserID++
	u.CreatedAt = time.Now()
	s.users[u.ID] = *u
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (s *fakeStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (s *fakeStore) FindByPhoneOrEmail(ctx context.Context, phone, email string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.User, 0)
	for _, u := range s.users {
		if (phone != "" && u.Phone != nil && *u.Phone == phone) || (email != "" && u.Email == email) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (s *fakeStore) List(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	return result, nil
}

func (s *fakeStore) Update(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return repositories.ErrUserNotFound
	}
	s.users[u.ID] = *u
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repositories.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

// fakeMatchRepo и fakeRegistrationRepo оборачивают fakeStore, чтобы
// одноимённые методы репозиториев не конфликтовали.

type fakeMatchRepo struct{ s *fakeStore }

func (r fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.nextMatchID
	r.s.nextMatchID++
	m.CreatedAt = time.Now()
	r.s.matches[m.ID] = *m
	return nil
}

func (r fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return &m, nil
}

func (r fakeMatchRepo) List(ctx context.Context, filter repositories.ListMatchesFilter) ([]models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make([]models.Match, 0)
	for _, m := range r.s.matches {
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		if filter.Location != "" && !strings.Contains(strings.ToLower(m.Location), strings.ToLower(filter.Location)) {
			continue
		}
		if filter.DateFrom != nil && m.DateStart.Before(*filter.DateFrom) {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (r fakeMatchRepo) FindByStatus(ctx context.Context, status models.MatchStatus) ([]models.Match, error) {
	return r.List(ctx, repositories.ListMatchesFilter{Status: &status})
}

func (r fakeMatchRepo) Update(ctx context.Context, m *models.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matches[m.ID]; !ok {
		return repositories.ErrMatchNotFound
	}
	r.s.matches[m.ID] = *m
	return nil
}

func (r fakeMatchRepo) TransitionFromActive(ctx context.Context, exec repositories.SQLExecutor, id int, to models.MatchStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if m.Status != models.MatchStatusActive {
		return repositories.ErrMatchNotActive
	}
	m.Status = to
	r.s.matches[id] = m
	return nil
}

func (r fakeMatchRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matches[id]; !ok {
		return repositories.ErrMatchNotFound
	}
	delete(r.s.matches, id)
	return nil
}

type fakeRegistrationRepo struct{ s *fakeStore }

func (r fakeRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[reg.MatchID]
	if !ok || m.Status != models.MatchStatusActive {
		return repositories.ErrRegistrationRejected
	}
	count := 0
	for _, existing := range r.s.registrations {
		if existing.MatchID == reg.MatchID {
			if existing.UserID == reg.UserID {
				return repositories.ErrRegistrationConflict
			}
			count++
		}
	}
	if count >= m.MaxPlayers {
		return repositories.ErrRegistrationRejected
	}
	reg.ID = r.s.nextRegID
	r.s.nextRegID++
	reg.CreatedAt = time.Now()
	r.s.registrations[reg.ID] = *reg
	return nil
}

func (r fakeRegistrationRepo) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrations[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	return &reg, nil
}

func (r fakeRegistrationRepo) FindByMatchAndUser(ctx context.Context, matchID, userID int) (*models.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, reg := range r.s.registrations {
		if reg.MatchID == matchID && reg.UserID == userID {
			reg := reg
			return &reg, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (r fakeRegistrationRepo) ListByMatch(ctx context.Context, matchID int) ([]models.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make([]models.Registration, 0)
	for _, reg := range r.s.registrations {
		if reg.MatchID == matchID {
			result = append(result, reg)
		}
	}
	return result, nil
}

func (r fakeRegistrationRepo) ListByUser(ctx context.Context, userID int) ([]models.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make([]models.Registration, 0)
	for _, reg := range r.s.registrations {
		if reg.UserID == userID {
			result = append(result, reg)
		}
	}
	return result, nil
}

func (r fakeRegistrationRepo) CountByMatch(ctx context.Context, matchID int) (int, error) {
	return r.s.registrationCount(matchID), nil
}

func (r fakeRegistrationRepo) Delete(ctx context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.registrations[id]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	delete(r.s.registrations, id)
	return nil
}

func (r fakeRegistrationRepo) DeleteByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) ([]models.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failDeleteByMatch != nil {
		return nil, r.s.failDeleteByMatch
	}
	deleted := make([]models.Registration, 0)
	for id, reg := range r.s.registrations {
		if reg.MatchID == matchID {
			deleted = append(deleted, reg)
			delete(r.s.registrations, id)
		}
	}
	return deleted, nil
}

// --- Вспомогательные наблюдатели ---

type recordedNotification struct {
	match      models.Match
	recipients []models.Registration
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []recordedNotification
	done  chan struct{} // закрывается после первого вызова
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{})}
}

func (n *recordingNotifier) NotifyCancellation(ctx context.Context, match *models.Match, recipients []models.Registration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recordedNotification{match: *match, recipients: recipients})
	if len(n.calls) == 1 {
		close(n.done)
	}
}

func (n *recordingNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *recordingNotifier) firstCall() recordedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[0]
}

// waitForCall ждёт первого уведомления: отмена рассылает его из отдельной
// горутины.
func (n *recordingNotifier) waitForCall(timeout time.Duration) bool {
	select {
	case <-n.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

type recordedEvent struct {
	matchID   int
	eventType string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishMatchEvent(matchID int, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{matchID: matchID, eventType: eventType})
}

func (p *recordingPublisher) byType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]recordedEvent, 0)
	for _, e := range p.events {
		if e.eventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

var errStorageDown = errors.New("storage is down")

func listFilterByStatus(status models.MatchStatus) repositories.ListMatchesFilter {
	return repositories.ListMatchesFilter{Status: &status}
}
