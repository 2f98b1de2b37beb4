// Package sweep runs the periodic overdue / due-soon pass over all debts.
//
// Pass A moves Pending debts whose due date has passed to Overdue in a single
// set-based update and then mails every owner once per moved debt
// (mutate-then-notify; the status can always be recomputed from the due date).
//
// Pass B mails owners of Pending debts due tomorrow and only then records
// email_sent_for_due_soon (notify-then-mark). If recording the flag fails
// after a successful send, the next run mails again; that single duplicate is
// accepted.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/mailer"
	"debt-tracker-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Sweeper struct {
	DB      *gorm.DB
	Mailer  mailer.Sender
	Clock   clock.Clock
	Workers int // concurrent sends, at least 1
	Log     *zap.Logger
}

type Report struct {
	RunID      string    `json:"run_id"`
	Today      string    `json:"today"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	MarkedOverdue   int64 `json:"marked_overdue"`
	OverdueNotified int64 `json:"overdue_notified"`
	OverdueFailed   int64 `json:"overdue_failed"`

	DueSoonNotified int64 `json:"due_soon_notified"`
	DueSoonFailed   int64 `json:"due_soon_failed"`
	// Sent, but the flag could not be stored.
	DueSoonUnflagged int64 `json:"due_soon_unflagged"`

	Error string `json:"error,omitempty"`
}

func (r Report) String() string {
	return fmt.Sprintf("%d debts marked as overdue and %d users notified.", r.MarkedOverdue, r.DueSoonNotified)
}

func (s *Sweeper) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Run performs one sweep. The passes are independent: a storage failure in
// one does not skip the other. The report is filled in as far as the run got.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	today := s.Clock.Today()
	r := Report{
		RunID:     uuid.NewString(),
		Today:     clock.FormatDate(today),
		StartedAt: time.Now().UTC(),
	}
	log := s.log().With(zap.String("run_id", r.RunID), zap.String("today", r.Today))

	errOverdue := s.markOverdue(ctx, log, today, &r)
	errDueSoon := s.warnDueSoon(ctx, log, today, &r)

	r.FinishedAt = time.Now().UTC()
	err := errors.Join(errOverdue, errDueSoon)
	if err != nil {
		r.Error = err.Error()
	}

	log.Info("sweep finished",
		zap.Int64("marked_overdue", r.MarkedOverdue),
		zap.Int64("overdue_notified", r.OverdueNotified),
		zap.Int64("overdue_failed", r.OverdueFailed),
		zap.Int64("due_soon_notified", r.DueSoonNotified),
		zap.Int64("due_soon_failed", r.DueSoonFailed),
		zap.Duration("took", r.FinishedAt.Sub(r.StartedAt)),
		zap.Error(err),
	)
	return r, err
}

func (s *Sweeper) markOverdue(ctx context.Context, log *zap.Logger, today time.Time, r *Report) error {
	var debts []models.Debt
	if err := s.DB.WithContext(ctx).
		Preload("User").
		Where("status = ? AND due_date < ?", models.DebtStatusPending, today).
		Find(&debts).Error; err != nil {
		return fmt.Errorf("select overdue debts: %w", err)
	}
	if len(debts) == 0 {
		return nil
	}

	// The captured set is what gets notified, regardless of what a second
	// read would return after the update.
	ids := make([]uint, len(debts))
	for i := range debts {
		ids[i] = debts[i].ID
		debts[i].Status = models.DebtStatusOverdue
	}

	res := s.DB.WithContext(ctx).
		Model(&models.Debt{}).
		Where("id IN ? AND status = ?", ids, models.DebtStatusPending).
		Update("status", models.DebtStatusOverdue)
	if res.Error != nil {
		return fmt.Errorf("mark debts overdue: %w", res.Error)
	}
	r.MarkedOverdue = res.RowsAffected

	r.OverdueNotified, r.OverdueFailed = s.dispatch(ctx, log, debts, func(ctx context.Context, d models.Debt) error {
		return s.Mailer.Send(ctx, mailer.OverdueMessage(d.User.Email, d))
	})
	return nil
}

func (s *Sweeper) warnDueSoon(ctx context.Context, log *zap.Logger, today time.Time, r *Report) error {
	tomorrow := today.AddDate(0, 0, 1)

	var debts []models.Debt
	if err := s.DB.WithContext(ctx).
		Preload("User").
		Where("status = ? AND due_date = ? AND email_sent_for_due_soon = ?", models.DebtStatusPending, tomorrow, false).
		Find(&debts).Error; err != nil {
		return fmt.Errorf("select due-soon debts: %w", err)
	}
	if len(debts) == 0 {
		return nil
	}

	var unflagged atomic.Int64
	r.DueSoonNotified, r.DueSoonFailed = s.dispatch(ctx, log, debts, func(ctx context.Context, d models.Debt) error {
		if err := s.Mailer.Send(ctx, mailer.DueSoonMessage(d.User.Email, d)); err != nil {
			return err
		}
		// Only false -> true, and only for this record.
		if err := s.DB.WithContext(ctx).
			Model(&models.Debt{}).
			Where("id = ? AND email_sent_for_due_soon = ?", d.ID, false).
			Update("email_sent_for_due_soon", true).Error; err != nil {
			unflagged.Add(1)
			log.Warn("due-soon email sent but flag not stored, it may be sent again",
				zap.Uint("debt_id", d.ID), zap.Error(err))
		}
		return nil
	})
	r.DueSoonUnflagged = unflagged.Load()
	return nil
}

// dispatch calls send for every debt with at most Workers calls in flight.
// A failing call is logged and counted; it never stops the others.
func (s *Sweeper) dispatch(ctx context.Context, log *zap.Logger, debts []models.Debt, send func(context.Context, models.Debt) error) (ok, failed int64) {
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	var okCount, failedCount atomic.Int64
	var g errgroup.Group
	g.SetLimit(workers)

	for _, d := range debts {
		if ctx.Err() != nil {
			failedCount.Add(1)
			continue
		}
		g.Go(func() error {
			if err := send(ctx, d); err != nil {
				failedCount.Add(1)
				log.Warn("notification failed",
					zap.Uint("debt_id", d.ID),
					zap.Uint("user_id", d.UserID),
					zap.Error(err))
				return nil
			}
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return okCount.Load(), failedCount.Load()
}
