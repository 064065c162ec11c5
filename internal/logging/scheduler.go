package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CleanupScheduler runs a Cleaner on an interval until stopped.
type CleanupScheduler struct {
	cleaner  *Cleaner
	logger   *zap.Logger
	ticker   *time.Ticker
	stop     chan struct{}
	stopOnce sync.Once
}

func NewCleanupScheduler(cleaner *Cleaner, interval time.Duration, logger *zap.Logger) *CleanupScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupScheduler{
		cleaner: cleaner,
		logger:  logger,
		ticker:  time.NewTicker(interval),
		stop:    make(chan struct{}),
	}
}

func (s *CleanupScheduler) Start() {
	// Run initial cleanup immediately
	go s.runCleanup()

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.runCleanup()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *CleanupScheduler) runCleanup() {
	deleted, err := s.cleaner.Cleanup()
	if err != nil {
		s.logger.Warn("log cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("cleaned up old log files", zap.Int("deleted", deleted))
	}
}

func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.stop)
	})
}
