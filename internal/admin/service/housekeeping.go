package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sahtee/admin/internal/admin/store"
)

const (
	DefaultHousekeepingInterval = time.Hour
	DefaultAuditRetention       = 30 * 24 * time.Hour
)

// HousekeepingService periodically prunes audit events older than the
// retention window so the local database does not grow without bound.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
	now    func() time.Time
}

// NewHousekeepingService creates the service. Non-positive interval or
// retention take the defaults.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	if retention <= 0 {
		retention = DefaultAuditRetention
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs a cleanup now and then every Interval until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop shuts the worker down, waiting for an in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	_, _ = s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			_, _ = s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce prunes expired audit events and returns how many were removed.
func (s *HousekeepingService) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.Retention)

	deleted, err := s.Store.AuditEvents().DeleteAuditEventsBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to prune audit events", "error", err)
		return 0, err
	}

	s.Logger.Debug("housekeeping cleanup completed", "audit_events_deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}
