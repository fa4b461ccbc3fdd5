package deadletter

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper runs the retention pass on a fixed interval.
type Sweeper struct {
	archive  *Archive
	logger   *zerolog.Logger
	interval time.Duration
	stopChan chan struct{}
}

func NewSweeper(archive *Archive, logger *zerolog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		archive:  archive,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic retention sweep. Blocks until stopped.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting dead letter retention sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Retention sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Retention sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.archive.ArchiveOld(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Retention pass failed")
			}
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}
