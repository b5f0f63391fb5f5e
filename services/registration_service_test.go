package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokopiemy/match-system/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeMatch(maxPlayers int) models.Match {
	start := time.Now().Add(24 * time.Hour)
	return models.Match{
		Name:       "Wieczorna kopanina",
		Location:   "Orlik Mokotów",
		DateStart:  start,
		DateEnd:    start.Add(2 * time.Hour),
		MaxPlayers: maxPlayers,
		Level:      models.LevelKopanina,
		Status:     models.MatchStatusActive,
	}
}

func newRegistrationServiceForTest(store *fakeStore) (*RegistrationService, *recordingPublisher) {
	events := &recordingPublisher{}
	svc := NewRegistrationService(fakeRegistrationRepo{s: store}, fakeMatchRepo{s: store}, events, testLogger())
	return svc, events
}

func TestRegisterAndDuplicateJoin(t *testing.T) {
	store := newFakeStore()
	match := store.addMatch(activeMatch(10))
	user := store.addUser(models.User{Name: "Marek", Email: "marek@example.com"})
	svc, events := newRegistrationServiceForTest(store)

	reg, err := svc.Register(context.Background(), match.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, match.ID, reg.MatchID)
	assert.Equal(t, user.ID, reg.UserID)
	assert.NotZero(t, reg.ID)

	// Повторная попытка того же пользователя не создаёт вторую строку.
	_, err = svc.Register(context.Background(), match.ID, user.ID)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, store.registrationCount(match.ID))
	assert.Len(t, events.byType(EventRegistrationCreated), 1)
}

func TestRegisterMatchNotFound(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Name: "Marek", Email: "marek@example.com"})
	svc, _ := newRegistrationServiceForTest(store)

	_, err := svc.Register(context.Background(), 42, user.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestRegisterInactiveMatch(t *testing.T) {
	for _, status := range []models.MatchStatus{models.MatchStatusFinished, models.MatchStatusCanceled} {
		t.Run(string(status), func(t *testing.T) {
			store := newFakeStore()
			m := activeMatch(10)
			m.Status = status
			match := store.addMatch(m)
			user := store.addUser(models.User{Name: "Marek", Email: "marek@example.com"})
			svc, _ := newRegistrationServiceForTest(store)

			_, err := svc.Register(context.Background(), match.ID, user.ID)
			assert.ErrorIs(t, err, ErrMatchNotActive)
			assert.Equal(t, 0, store.registrationCount(match.ID))
		})
	}
}

// Матч на двоих: двое записываются, третий получает отказ по вместимости.
func TestRegisterMatchFull(t *testing.T) {
	store := newFakeStore()
	match := store.addMatch(activeMatch(2))
	svc, _ := newRegistrationServiceForTest(store)

	for i := 0; i < 2; i++ {
		user := store.addUser(models.User{
			Name:  fmt.Sprintf("Gracz %d", i+1),
			Email: fmt.Sprintf("gracz%d@example.com", i+1),
		})
		_, err := svc.Register(context.Background(), match.ID, user.ID)
		require.NoError(t, err)
	}

	third := store.addUser(models.User{Name: "Trzeci", Email: "trzeci@example.com"})
	_, err := svc.Register(context.Background(), match.ID, third.ID)
	assert.ErrorIs(t, err, ErrMatchFull)
	assert.Equal(t, 2, store.registrationCount(match.ID))
}

// Конкурентные записи не переполняют матч: успешных ровно max_players,
// остальные получают ErrMatchFull.
func TestRegisterConcurrentRespectsCapacity(t *testing.T) {
	const maxPlayers = 5
	const attempts = 40

	store := newFakeStore()
	match := store.addMatch(activeMatch(maxPlayers))
	svc, _ := newRegistrationServiceForTest(store)

	users := make([]models.User, attempts)
	for i := range users {
		users[i] = store.addUser(models.User{
			Name:  fmt.Sprintf("Gracz %d", i),
			Email: fmt.Sprintf("gracz%d@example.com", i),
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), match.ID, users[i].ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrMatchFull)
	}
	assert.Equal(t, maxPlayers, succeeded)
	assert.Equal(t, maxPlayers, store.registrationCount(match.ID))
}

func TestUnregister(t *testing.T) {
	store := newFakeStore()
	match := store.addMatch(activeMatch(10))
	owner := store.addUser(models.User{Name: "Marek", Email: "marek@example.com"})
	other := store.addUser(models.User{Name: "Janek", Email: "janek@example.com"})
	svc, events := newRegistrationServiceForTest(store)

	reg, err := svc.Register(context.Background(), match.ID, owner.ID)
	require.NoError(t, err)

	// Чужую запись без прав администратора удалить нельзя.
	err = svc.Unregister(context.Background(), reg.ID, other.ID, false)
	assert.ErrorIs(t, err, ErrForbiddenOperation)
	assert.Equal(t, 1, store.registrationCount(match.ID))

	err = svc.Unregister(context.Background(), reg.ID, owner.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, store.registrationCount(match.ID))
	assert.Len(t, events.byType(EventRegistrationDeleted), 1)

	// Повторное удаление того же id.
	err = svc.Unregister(context.Background(), reg.ID, owner.ID, false)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestUnregisterByAdmin(t *testing.T) {
	store := newFakeStore()
	match := store.addMatch(activeMatch(10))
	owner := store.addUser(models.User{Name: "Marek", Email: "marek@example.com"})
	admin := store.addUser(models.User{Name: "Admin", Email: "admin@example.com", IsAdmin: true})
	svc, _ := newRegistrationServiceForTest(store)

	reg, err := svc.Register(context.Background(), match.ID, owner.ID)
	require.NoError(t, err)

	err = svc.Unregister(context.Background(), reg.ID, admin.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, store.registrationCount(match.ID))
}

func TestListByUser(t *testing.T) {
	store := newFakeStore()
	first := store.addMatch(activeMatch(10))
	second := store.addMatch(activeMatch(10))
	user := store.addUser(models.User{Name: "Marek", Email: "marek@example.com"})
	svc, _ := newRegistrationServiceForTest(store)

	_, err := svc.Register(context.Background(), first.ID, user.ID)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), second.ID, user.ID)
	require.NoError(t, err)

	regs, err := svc.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}
