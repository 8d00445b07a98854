package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool starts the goroutines that run scheduled refetches
func (s *Store) spawnWorkerPool() {
	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	s.logger.Debug("Refetch worker pool spawned",
		slog.Int("worker_count", s.concurrency),
	)
}

// workerLoop is the processing loop for each refetch goroutine
func (s *Store) workerLoop(workerNum int) {
	defer s.wg.Done()

	workerName := fmt.Sprintf("refetch-%d", workerNum)

	for {
		select {
		case <-s.stopChan:
			s.logger.Debug("Refetch worker stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case key := <-s.refetchChan:
			s.refetch(workerName, key)
		}
	}
}

// enqueue hands key to the pool. A full queue never blocks the caller; the
// refetch runs on its own goroutine instead.
func (s *Store) enqueue(key Key) {
	select {
	case s.refetchChan <- key:
	default:
		s.logger.Debug("Refetch queue full - running inline goroutine",
			slog.String("key", key.String()),
		)
		go s.refetch("overflow", key)
	}
}

// refetch reloads key and writes the result. A reload that lost a race
// with a newer invalidation is retried while the entry is still stale. On
// failure the entry keeps its previous value and stays stale.
func (s *Store) refetch(workerName string, key Key) {
	defer s.finish()

	ctx, cancel := context.WithTimeout(context.Background(), s.refetchTimeout)
	defer cancel()

	for {
		res, err := s.load(ctx, key)
		if err != nil {
			s.refetchFailures.Add(1)
			s.logger.Warn("Refetch failed",
				slog.String("worker_name", workerName),
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		if res.committed {
			break
		}
		if e, ok := s.Read(key); ok && !e.Stale {
			break
		}
	}

	s.refetchesCompleted.Add(1)
}
