package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/repository"
)

// StartExpirySweeper periodically releases the stock of overdue pending
// reservations and prunes long-expired session rows. It runs until ctx is
// cancelled. Sweep errors are logged and retried on the next tick; a missed
// sweep only delays stock release, it never corrupts counters.
func StartExpirySweeper(ctx context.Context, reservations *repository.ReservationRepo, sessions *repository.SessionRepo, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := reservations.ExpireOverdue(sweepCtx, time.Now())
		if err != nil {
			logrus.WithError(err).Warn("expiry-sweeper: expire overdue failed")
		} else if n > 0 {
			logrus.WithField("expired", n).Info("expiry-sweeper: reservations expired")
		}
		if _, err := sessions.DeleteExpired(sweepCtx, 24*time.Hour); err != nil {
			logrus.WithError(err).Warn("expiry-sweeper: session cleanup failed")
		}
		cancel()
	}
}
