package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/jonboulle/clockwork"
)

// HousekeepingService periodically drops cache rows nobody can be served any
// more and signs out accounts whose refresh secret has outlived every
// credential that could present it.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	CacheTTL time.Duration
	Clock    clockwork.Clock

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval, cacheTTL time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		CacheTTL: cacheTTL,
		Clock:    clockwork.NewRealClock(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()

	for {
		select {
		case <-ticker.Chan():
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs each task independently; one failing does not stop the rest.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := s.Clock.Now()

	// Entries past twice the TTL cannot be served and will not be refreshed
	// in place before someone asks again.
	cutoff := now.Add(-2 * s.CacheTTL)
	if n, err := s.Store.ResponseCache().DeleteResponsesBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete stale cache entries", "error", err)
	} else if n > 0 {
		s.Logger.Info("deleted stale cache entries", "count", n)
	}

	if n, err := s.Store.Accounts().ClearExpiredRefreshTokens(ctx, now); err != nil {
		s.Logger.Error("failed to clear expired refresh tokens", "error", err)
	} else if n > 0 {
		s.Logger.Info("signed out accounts with expired refresh tokens", "count", n)
	}
}
