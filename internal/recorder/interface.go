package recorder

import (
	"context"
	"time"

	"codeberg.org/mutker/tomography/internal/cpu"
	"codeberg.org/mutker/tomography/internal/network"
)

// Recorder persists published rates.
type Recorder interface {
	Record(ctx context.Context, sample *Sample) error
	Close() error
}

// Repository defines the interface for sample storage
type Repository interface {
	Record(sample *Sample) error
	Close() error
}

// Sample is one round of published rates. Either slice may be empty when the
// corresponding sampler had nothing to publish.
type Sample struct {
	Timestamp  time.Time
	Interval   time.Duration
	Cores      []cpu.Core
	Interfaces []network.Interface
}
