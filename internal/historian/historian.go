// Package historian drains recorded board actions from the queue and persists them in batches.
package historian

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/models"
)

// Source yields queued actions. Pop returns (nil, nil) when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.BoardAction, error)
}

// Sink persists a batch atomically.
type Sink func(ctx context.Context, actions []models.BoardAction) error

// Service batches actions from a Source into a Sink. A batch is flushed when it reaches
// batchSize or when flushDelay has passed since the last flush.
type Service struct {
	source     Source
	sink       Sink
	batchSize  int
	flushDelay time.Duration
	logger     *logrus.Logger

	batch     []models.BoardAction
	lastFlush time.Time
}

func NewService(source Source, sink Sink, batchSize int, flushDelay time.Duration, logger *logrus.Logger) *Service {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Service{
		source:     source,
		sink:       sink,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		logger:     logger,
		batch:      make([]models.BoardAction, 0, batchSize),
	}
}

// Run pops until ctx is cancelled, then flushes whatever is left.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("historian started")
	s.lastFlush = time.Now()

	for {
		select {
		case <-ctx.Done():
			// Use a fresh context so the final flush is not cancelled with the loop.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flush(flushCtx)
			cancel()
			s.logger.Info("historian shutting down")
			return nil
		default:
		}

		action, err := s.source.Pop(ctx, s.flushDelay)
		if err != nil && ctx.Err() == nil {
			s.logger.Errorf("failed to pop board action: %v", err)
		}
		if action != nil {
			s.batch = append(s.batch, *action)
		}

		if len(s.batch) >= s.batchSize || time.Since(s.lastFlush) >= s.flushDelay {
			s.flush(ctx)
		}
	}
}

func (s *Service) flush(ctx context.Context) {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return
	}

	if err := s.sink(ctx, s.batch); err != nil {
		// Keep the batch; the next flush retries it.
		s.logger.Errorf("failed to flush %d board actions: %v", len(s.batch), err)
		return
	}
	s.logger.Debugf("flushed %d board actions", len(s.batch))
	s.batch = make([]models.BoardAction, 0, s.batchSize)
}
