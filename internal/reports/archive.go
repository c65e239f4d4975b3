package reports

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/logging"
)

// DefaultArchiveAfter is how long a completed report stays active.
const DefaultArchiveAfter = 365 * 24 * time.Hour

// Archiver moves old completed reports to Archived.
type Archiver struct {
	store  *Store
	after  time.Duration
	logger *zap.Logger
}

// NewArchiver creates an Archiver for reports older than after.
func NewArchiver(store *Store, after time.Duration, logger *zap.Logger) *Archiver {
	if after <= 0 {
		after = DefaultArchiveAfter
	}
	logger = logging.OrNop(logger)
	return &Archiver{store: store, after: after, logger: logger.Named("archiver")}
}

// Sweep archives every completed report generated before now minus the
// retention and returns how many were archived.
func (a *Archiver) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-a.after)
	n, err := a.store.ArchiveCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	a.logger.Info("archive sweep finished", zap.Int("archived", n), zap.Time("cutoff", cutoff))
	return n, nil
}
