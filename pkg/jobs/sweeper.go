package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

var ErrSweeperAlreadyRunning = errors.New("sweeper already running")

const (
	DefaultSweepInterval = time.Hour
	DefaultRetention     = 30 * 24 * time.Hour

	sweepLockKey = "jobs:sweep"
)

// Locker keeps concurrent instances from sweeping at the same time.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type SweeperConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// Sweeper periodically deletes finished jobs past their retention.
type Sweeper struct {
	service *Service
	locker  Locker
	config  SweeperConfig
	logger  ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.Mutex
}

func NewSweeper(service *Service, locker Locker, config SweeperConfig, logger ectologger.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	return &Sweeper{
		service:  service,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSweeperAlreadyRunning
	}
	s.running = true

	s.logger.WithContext(ctx).Infof("Starting job sweeper: interval=%s retention=%s", s.config.Interval, s.config.Retention)
	go s.loop(ctx)
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Job sweeper shutdown timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one retention pass and returns how many jobs were deleted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	ctx, span := tracing.StartSpan(ctx, "jobs.Sweeper.Sweep")
	defer span.End()

	var n int
	sweep := func(ctx context.Context) error {
		var err error
		n, err = s.service.SweepExpired(ctx, s.config.Retention)
		return err
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, sweepLockKey, sweep)
	} else {
		err = sweep(ctx)
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("job sweep failed")
		return 0
	}
	return n
}
