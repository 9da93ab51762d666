package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluewhale/auth/internal/auth/store"
)

// HousekeepingService periodically purges expired refresh tokens from the
// ledger. Revoked-but-unexpired rows are kept so session history stays
// inspectable until natural expiry.
type HousekeepingService struct {
	Store    store.Store
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// Start launches the background sweep loop. It runs one sweep immediately
// and then once per interval until Stop is called.
func (s *HousekeepingService) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)

		s.sweep(ctx)

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish.
func (s *HousekeepingService) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *HousekeepingService) sweep(ctx context.Context) {
	purged, err := s.Store.RefreshTokens().DeleteExpired(ctx)
	if err != nil {
		slog.Warn("refresh token sweep failed", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("purged expired refresh tokens", "count", purged)
	}
}
