// Package reminder decides which debtors to nudge about outstanding dues and sends the batch.
//
// Candidates are users who owe money and have a notification token. An automatic run skips
// anyone who touched their ledger within the overdue threshold; a run with a custom message is a
// broadcast and reaches every candidate. Delivery failures are collected per user and never stop
// the batch or change any balance.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/models"
	"github.com/safar/smartgrocer/internal/notify"
	log "github.com/sirupsen/logrus"
)

const DefaultTitle = "Payment Reminder: Outstanding Dues"

type Repository interface {
	ReminderCandidates(ctx context.Context) ([]models.ReminderCandidate, error)
	LogNotification(ctx context.Context, n *models.Notification) error
}

type Summary struct {
	TotalDebtors  int      `json:"totalDebtors"`
	RemindersSent int      `json:"remindersSent"`
	Errors        []string `json:"errors"`
}

// SelectTargets filters candidates for one run. A non-empty broadcast message selects everyone.
func SelectTargets(candidates []models.ReminderCandidate, broadcast string, now time.Time, threshold time.Duration) []models.ReminderCandidate {
	if strings.TrimSpace(broadcast) != "" {
		return candidates
	}

	cutoff := now.Add(-threshold)
	targets := make([]models.ReminderCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.LastTransactionAt == nil || c.LastTransactionAt.Before(cutoff) {
			targets = append(targets, c)
		}
	}
	return targets
}

func DefaultMessage(user models.User) string {
	return fmt.Sprintf("Hello %s, you have pending dues of ₹%s. Please visit the store to clear them.",
		user.Name, user.PendingDues.StringFixed(2))
}

type Service struct {
	repo      Repository
	sender    notify.Sender
	threshold time.Duration
	now       func() time.Time
}

func NewService(repo Repository, sender notify.Sender, threshold time.Duration) *Service {
	return &Service{
		repo:      repo,
		sender:    sender,
		threshold: threshold,
		now:       time.Now,
	}
}

// Send runs one reminder batch. Only a failure to load candidates is returned as an error.
func (s *Service) Send(ctx context.Context, customMessage string) (*Summary, error) {
	candidates, err := s.repo.ReminderCandidates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load reminder candidates")
	}

	targets := SelectTargets(candidates, customMessage, s.now(), s.threshold)
	summary := &Summary{TotalDebtors: len(candidates), Errors: []string{}}

	for _, target := range targets {
		body := customMessage
		if strings.TrimSpace(body) == "" {
			body = DefaultMessage(target.User)
		}

		msg := notify.Message{
			Token: *target.NotificationToken,
			Title: DefaultTitle,
			Body:  body,
		}

		logger := log.WithField("user_id", target.ID)

		if err := s.sender.Send(ctx, msg); err != nil {
			logger.WithError(err).Warn("Reminder delivery failed")
			summary.Errors = append(summary.Errors, target.Contact())
			continue
		}
		summary.RemindersSent++

		err := s.repo.LogNotification(ctx, &models.Notification{
			UserID:  target.ID,
			Title:   msg.Title,
			Message: msg.Body,
			Type:    models.NotificationReminder,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to log reminder")
		}
	}

	log.WithFields(log.Fields{
		"debtors": summary.TotalDebtors,
		"sent":    summary.RemindersSent,
		"failed":  len(summary.Errors),
	}).Info("Reminder batch finished")

	return summary, nil
}
