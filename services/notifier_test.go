package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pokopiemy/match-system/models"
)

type sentEmail struct {
	userEmail string
	matchName string
	date      string
}

type fakeMailSender struct {
	mu      sync.Mutex
	sent    []sentEmail
	failFor map[string]error // email -> инъецированный сбой доставки
}

func (m *fakeMailSender) SendMatchCanceledEmail(userEmail, userName, matchName, location, dateFormatted string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[userEmail]; ok {
		return err
	}
	m.sent = append(m.sent, sentEmail{userEmail: userEmail, matchName: matchName, date: dateFormatted})
	return nil
}

func (m *fakeMailSender) sentEmails() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	emails := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		emails = append(emails, s.userEmail)
	}
	return emails
}

func TestNotifyCancellationSendsToAllRecipients(t *testing.T) {
	store := newFakeStore()
	match := store.addMatch(activeMatch(10))
	users := registerPlayers(t, store, match.ID, 3)

	regs, err := fakeRegistrationRepo{s: store}.ListByMatch(context.Background(), match.ID)
	assert.NoError(t, err)

	mail := &fakeMailSender{}
	notifier := NewEmailNotifier(mail, store, testLogger())
	notifier.NotifyCancellation(context.Background(), &match, regs)

	sent := mail.sentEmails()
	assert.Len(t, sent, 3)
	for _, u := range users {
		assert.Contains(t, sent, u.Email)
	}
	assert.Equal(t, match.Name, mail.sent[0].matchName)
	assert.Equal(t, match.DateStart.Format("02.01.2006 15:04"), mail.sent[0].date)
}

// Сбой доставки одному получателю не останавливает рассылку остальным;
// пропавший из базы пользователь тоже пропускается молча.
func TestNotifyCancellationSurvivesPartialFailures(t *testing.T) {
	store := newFakeStore()
	match := store.addMatch(activeMatch(10))
	users := registerPlayers(t, store, match.ID, 3)

	regs, err := fakeRegistrationRepo{s: store}.ListByMatch(context.Background(), match.ID)
	assert.NoError(t, err)
	// Третий получатель удалил аккаунт между отменой и рассылкой.
	assert.NoError(t, store.Delete(context.Background(), users[2].ID))

	mail := &fakeMailSender{
		failFor: map[string]error{users[0].Email: errors.New("smtp: connection refused")},
	}
	notifier := NewEmailNotifier(mail, store, testLogger())
	notifier.NotifyCancellation(context.Background(), &match, regs)

	sent := mail.sentEmails()
	assert.Equal(t, []string{users[1].Email}, sent)
}

func TestNotifyCancellationNoRecipients(t *testing.T) {
	store := newFakeStore()
	match := store.addMatch(activeMatch(10))

	mail := &fakeMailSender{}
	notifier := NewEmailNotifier(mail, store, testLogger())
	notifier.NotifyCancellation(context.Background(), &match, nil)
	notifier.NotifyCancellation(context.Background(), &match, []models.Registration{})

	assert.Empty(t, mail.sentEmails())
}
