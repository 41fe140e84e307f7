package telemetry

import (
	"context"
	"time"

	"github.com/amaresga/simtemp/internal/record"
)

// Store persists samples. Record buffers; writes happen in batches.
type Store interface {
	Record(ctx context.Context, s record.Sample) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Flush() error
	Close() error
}

// Entry is a stored sample with the wall-clock time it was recorded at.
type Entry struct {
	ID         int64         `json:"id"`
	RecordedAt time.Time     `json:"recorded_at"`
	Sample     record.Sample `json:"sample"`
}
