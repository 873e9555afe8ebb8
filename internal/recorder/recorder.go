// Package recorder stores published CPU and network rates in SQLite.
package recorder

import (
	"context"

	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/logger"
)

type service struct {
	repo Repository
}

type noopRecorder struct{}

// New returns a Recorder for cfg. A disabled configuration yields a no-op
// Recorder.
func New(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if log == nil {
		log = logger.Component("recorder")
	}

	if !cfg.Enabled {
		log.Debug().Msg("Recording disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Msg("Recorder initialized successfully")

	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, sample *Sample) error {
	errFactory := errors.New()

	if sample == nil || sample.Interval <= 0 {
		return errFactory.New(ErrInvalidSample)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Record(sample); err != nil {
		return errFactory.Wrap(ErrRecordSamples, err)
	}

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopRecorder) Record(context.Context, *Sample) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
