package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/careportal/internal/portal/metrics"
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
)

// DefaultHousekeepingInterval is used when no interval is configured.
const DefaultHousekeepingInterval = 5 * time.Minute

// SecurityCore is the part of securecore.Core housekeeping drives.
type SecurityCore interface {
	Sweep(ctx context.Context) securecore.SweepResult
	RotateKeyIfDue(ctx context.Context) (bool, error)
	KeyStatus() fieldcrypt.KeyStatus
	ActiveSessions() int
}

// RevocationPurger deletes persisted revocations for expired tokens.
// jwtx.Blacklist implements it.
type RevocationPurger interface {
	PurgeStore(ctx context.Context) (int64, error)
}

// HousekeepingService periodically purges expired CSRF tokens, sessions,
// rate-limit keys and revocations, and applies scheduled key rotation.
type HousekeepingService struct {
	Core        SecurityCore
	Revocations RevocationPurger // optional
	Metrics     *metrics.Metrics // optional
	Logger      *slog.Logger
	Interval    time.Duration

	// Internal channels for lifecycle management
	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to DefaultHousekeepingInterval.
func NewHousekeepingService(core SecurityCore, revocations RevocationPurger, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HousekeepingService{
		Core:        core,
		Revocations: revocations,
		Logger:      logger,
		Interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to shut it down. Start is a no-op once the service has been
// started or stopped.
func (s *HousekeepingService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop cancels any in-progress pass and waits for the worker to exit. It is
// safe to call more than once, and without a prior Start.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	if s.cancel != nil {
		s.cancel()
	}
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.doneCh
	}
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single pass. Each step is independent: a failure in one
// won't stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.Logger.Debug("starting housekeeping cleanup")

	res := s.Core.Sweep(ctx)

	var rows int64
	if s.Revocations != nil {
		n, err := s.Revocations.PurgeStore(ctx)
		if err != nil {
			s.Logger.Error("failed to delete expired revocations", "error", err)
		}
		rows = n
	}

	rotated, err := s.Core.RotateKeyIfDue(ctx)
	if err != nil {
		s.Logger.Error("scheduled key rotation failed", "error", err)
	}
	status := s.Core.KeyStatus()
	if rotated {
		s.Logger.Info("encryption key rotated", "key_id", status.CurrentKeyID, "version", status.Version)
	}

	if s.Metrics != nil {
		s.Metrics.ObserveSweep(res, rows)
		s.Metrics.Sessions.Set(float64(s.Core.ActiveSessions()))
		if rotated {
			s.Metrics.ObserveRotation(fieldcrypt.ReasonScheduled, status.Version)
		} else {
			s.Metrics.KeyVersion.Set(float64(status.Version))
		}
	}

	s.Logger.Info("housekeeping cleanup completed",
		"csrf_tokens", res.CSRFTokens,
		"sessions", res.Sessions,
		"rate_keys", res.RateKeys,
		"revocations", res.Revoked,
		"revocation_rows", rows,
		"key_rotated", rotated,
	)
}
