package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
)

// Sweeper deletes posts older than Retention. Visibility never depends on
// it; it only reclaims storage.
type Sweeper struct {
	store     docstore.Store
	Retention time.Duration
	Every     time.Duration
	Now       func() time.Time
	log       *slog.Logger
}

func NewSweeper(store docstore.Store, retention, every time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, Retention: retention, Every: every, Now: time.Now, log: log.With("component", "sweeper")}
}

// Sweep deletes expired posts once and reports how many went.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.Now().Add(-s.Retention).UnixMilli()
	docs, err := s.store.Query(ctx, Collection, docstore.Lt("postedAtMillis", cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "status.Sweep.Query")
	}
	for i, doc := range docs {
		if err := s.store.Delete(ctx, Collection, doc.ID); err != nil {
			return i, errors.Wrap(err, "status.Sweep.Delete")
		}
	}
	return len(docs), nil
}

// Run sweeps every Every until ctx is done. Failed sweeps are logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error("sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("expired posts deleted", "count", n)
			}
		}
	}
}
