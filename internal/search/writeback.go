package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gamereview/searchservice/internal/domain"
	"gamereview/searchservice/internal/metrics"
)

const defaultWriteBackBatchSize = 10

// enqueueWriteBack hands externally discovered games to the background
// persistence worker. Never blocks the request path; if the queue is full the
// batch is dropped and the next search for the same title re-discovers it.
func (s *Service) enqueueWriteBack(games []domain.Game) {
	batch := make([]domain.Game, 0, len(games))
	for _, game := range games {
		if game.Source != domain.SourceExternal {
			continue
		}
		if game.ExternalID <= 0 || game.Name == "" {
			continue
		}
		batch = append(batch, game)
		if len(batch) >= s.writeBackBatch {
			break
		}
	}
	if len(batch) == 0 {
		return
	}

	select {
	case s.writeBackCh <- batch:
	default:
		s.logger.Warn("write-back queue full, dropping batch", slog.Int("size", len(batch)))
	}
}

// runWriteBack is the background persistence loop. Started by
// StartBackground; exits when ctx is canceled.
func (s *Service) runWriteBack(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.writeBackCh:
			s.persistBatch(ctx, batch)
		}
	}
}

// persistBatch inserts externally discovered games that are not yet in the
// catalog. Failures are logged and counted, never surfaced: write-back is
// opportunistic enrichment, not part of serving the search.
func (s *Service) persistBatch(ctx context.Context, batch []domain.Game) {
	ids := make([]int64, 0, len(batch))
	for _, game := range batch {
		ids = append(ids, game.ExternalID)
	}

	existing := make(map[int64]struct{})
	known, err := s.store.GamesByExternalIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("write-back existence check failed",
			slog.Int("batch", len(batch)), slog.String("error", err.Error()))
	} else {
		for _, game := range known {
			existing[game.ExternalID] = struct{}{}
		}
	}

	now := time.Now()
	inserted := 0
	for _, game := range batch {
		if _, ok := existing[game.ExternalID]; ok {
			continue
		}
		game.LastSyncedAt = now
		if err := s.store.InsertGame(ctx, game); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				// Concurrent searches can race on the same title; the unique
				// index makes the second insert a no-op.
				metrics.WriteBackConflictsTotal.Inc()
				continue
			}
			s.logger.Warn("write-back insert failed",
				slog.Int64("externalId", game.ExternalID),
				slog.String("name", game.Name),
				slog.String("error", err.Error()))
			continue
		}
		inserted++
		metrics.WriteBackInsertsTotal.Inc()
	}
	if inserted > 0 {
		s.logger.Info("write-back persisted external games",
			slog.Int("inserted", inserted), slog.Int("batch", len(batch)))
	}
}
