package service

import (
	"context"
	"time"

	"creditflow/internal/observability"
)

// EvictExpired removes codes that expired longer ago than the retention window.
// Codes inside the window are kept so redemption still reports "expired" for them.
func (s *CreditService) EvictExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	removed, err := s.repo.DeleteExpiredCodes(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		observability.CodesEvictedTotal.Add(float64(removed))
	}
	return removed, nil
}

// StartEviction runs EvictExpired every interval until ctx is cancelled. The returned
// channel is closed once the sweeper goroutine has exited.
func (s *CreditService) StartEviction(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		observability.LogAsyncOperationStart(ctx, "code_eviction", map[string]interface{}{
			"interval": interval.String(),
		})
		for {
			select {
			case <-ctx.Done():
				observability.LogAsyncOperationEnd(context.Background(), "code_eviction", nil)
				return
			case <-ticker.C:
				sweepCtx := observability.WithCorrelationID(ctx, observability.GenerateCorrelationID())
				removed, err := s.EvictExpired(sweepCtx)
				if err != nil {
					observability.LogAsyncOperationError(sweepCtx, "code_eviction", err, nil)
					continue
				}
				if removed > 0 {
					observability.GlobalLogger.InfoContext(sweepCtx, "evicted expired verification codes",
						"removed", removed)
				}
			}
		}
	}()
	return done
}
