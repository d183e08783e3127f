package services

import (
	"context"
	"errors"
	"fmt"

	"copytrade/internal/db"
	"copytrade/internal/logger"
	"copytrade/internal/metrics"

	"github.com/sirupsen/logrus"
)

// retryOnConflict reruns fn while it fails with ErrConflict, up to limit
// attempts. fn must re-read whatever state it compares against.
func retryOnConflict(ctx context.Context, limit int, fields logrus.Fields, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, db.ErrTxRetryLimit) {
			return err
		}
		lastErr = err
		metrics.BalanceConflicts.Inc()
		logger.Log.WithFields(fields).WithField("attempt", attempt).Debug("balance changed underneath, retrying")
	}
	return fmt.Errorf("%w: gave up after %d attempts: %w", ErrConflict, limit, lastErr)
}
