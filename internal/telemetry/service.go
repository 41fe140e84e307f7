package telemetry

import (
	"context"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/record"
)

// No-op implementation
type noopStore struct{}

// NewService returns the sqlite store, or a no-op store when history is disabled.
func NewService(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Sample history disabled, using no-op store")
		return noopStore{}, nil
	}

	return NewRepository(cfg, log)
}

func (noopStore) Record(context.Context, record.Sample) error {
	return nil
}

func (noopStore) Recent(context.Context, int) ([]Entry, error) {
	return nil, nil
}

func (noopStore) Flush() error {
	return nil
}

func (noopStore) Close() error {
	return nil
}
