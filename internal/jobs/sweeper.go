// Package jobs holds the scheduled background work of the server.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"copytrade/internal/logger"
	"copytrade/internal/metrics"
	"copytrade/internal/notification"
	"copytrade/internal/store"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type StalledLister interface {
	ListStalled(ctx context.Context, olderThan time.Time) ([]store.StalledStock, error)
}

// Sweeper reports settled stocks whose credits have not reached every user.
// It never applies credits; an operator resumes the stock explicitly.
type Sweeper struct {
	credits    StalledLister
	notifier   notification.Notifier
	stallAfter time.Duration
	schedule   string
	now        func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	alerted map[int64]struct{}
}

func NewSweeper(credits StalledLister, notifier notification.Notifier, schedule string, stallAfter time.Duration) *Sweeper {
	return &Sweeper{
		credits:    credits,
		notifier:   notifier,
		stallAfter: stallAfter,
		schedule:   schedule,
		now:        time.Now,
		cron:       cron.New(),
		alerted:    make(map[int64]struct{}),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			logger.Log.WithError(err).Error("stalled settlement sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}
	s.cron.Start()
	logger.Log.WithField("schedule", s.schedule).Info("settlement sweeper started")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one pass and returns the stalled stocks it found.
func (s *Sweeper) Sweep(ctx context.Context) ([]store.StalledStock, error) {
	stalled, err := s.credits.ListStalled(ctx, s.now().Add(-s.stallAfter))
	if err != nil {
		return nil, err
	}
	metrics.StalledSettlements.Set(float64(len(stalled)))

	s.mu.Lock()
	fresh := make([]store.StalledStock, 0)
	current := make(map[int64]struct{}, len(stalled))
	for _, stock := range stalled {
		current[stock.StockID] = struct{}{}
		if _, seen := s.alerted[stock.StockID]; !seen {
			fresh = append(fresh, stock)
		}
	}
	s.alerted = current
	s.mu.Unlock()

	for _, stock := range stalled {
		fields := logrus.Fields{
			"stock_id":       stock.StockID,
			"pending_users":  stock.PendingUsers,
			"oldest_credit":  stock.OldestCredit,
			"total_attempts": stock.TotalAttempts,
		}
		if stock.LastError != nil {
			fields["last_error"] = *stock.LastError
		}
		logger.Log.WithFields(fields).Warn("settlement credits stalled")
	}
	if len(fresh) > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx, alertText(fresh)); err != nil {
			logger.Log.WithError(err).Warn("stalled settlement alert failed")
		}
	}
	return stalled, nil
}

func alertText(stalled []store.StalledStock) string {
	var b strings.Builder
	b.WriteString("Settlements waiting for resume:\n")
	for _, stock := range stalled {
		fmt.Fprintf(&b, "stock #%d: %d user(s) not credited since %s",
			stock.StockID, stock.PendingUsers, stock.OldestCredit.UTC().Format(time.RFC3339))
		if stock.LastError != nil {
			fmt.Fprintf(&b, " (%s)", *stock.LastError)
		}
		b.WriteString("\n")
	}
	return b.String()
}
