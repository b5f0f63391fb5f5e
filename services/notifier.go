package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pokopiemy/match-system/models"
	"github.com/pokopiemy/match-system/repositories"
	"golang.org/x/sync/errgroup"
)

// Сколько писем отправляется одновременно.
const notifierSendConcurrency = 4

// MailSender - то, что нужно EmailNotifier от почтового сервиса.
type MailSender interface {
	SendMatchCanceledEmail(userEmail, userName, matchName, location, dateFormatted string) error
}

// EmailNotifier рассылает уведомления об отмене матча по email.
// Получатели приходят в виде уже удалённых записей; контакты пользователей
// разрешаются здесь. Любой сбой - и поиска адресата, и доставки -
// логируется и глотается: отмена матча от рассылки не зависит.
type EmailNotifier struct {
	mail     MailSender
	userRepo repositories.UserRepository
	logger   *slog.Logger
}

func NewEmailNotifier(mail MailSender, userRepo repositories.UserRepository, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{mail: mail, userRepo: userRepo, logger: logger}
}

func (n *EmailNotifier) NotifyCancellation(ctx context.Context, match *models.Match, recipients []models.Registration) {
	if len(recipients) == 0 {
		return
	}

	dateFormatted := match.DateStart.Format("02.01.2006 15:04")

	g := &errgroup.Group{}
	g.SetLimit(notifierSendConcurrency)
	for _, reg := range recipients {
		reg := reg
		g.Go(func() error {
			user, err := n.userRepo.GetByID(ctx, reg.UserID)
			if err != nil {
				if !errors.Is(err, repositories.ErrUserNotFound) {
					n.logger.Error("cancellation notice: failed to resolve user",
						slog.Int("user_id", reg.UserID), slog.Any("error", err))
				}
				return nil
			}
			if err := n.mail.SendMatchCanceledEmail(user.Email, user.Name, match.Name, match.Location, dateFormatted); err != nil {
				n.logger.Error("cancellation notice: failed to send email",
					slog.Int("match_id", match.ID),
					slog.String("email", user.Email),
					slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
