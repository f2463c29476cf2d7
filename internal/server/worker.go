package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/game"
)

// enqueue hands a job to the workers without blocking. It reports false when the queue is full.
func (s *Server) enqueue(job snapshotJob) bool {
	select {
	case s.queue <- job:
		return true
	default:
		log.Warn().Str("addr", job.Address).Msg("Queue full, snapshot dropped")
		return false
	}
}

// worker is a background goroutine that processes jobs from the snapshot queue.
func (s *Server) worker() {
	defer s.wg.Done()

	for job := range s.queue {
		s.processJob(job)
	}
}

// processJob snapshots a single server and stores the result.
func (s *Server) processJob(job snapshotJob) {
	// Bound the whole snapshot: info, players and rules, each with a challenge round trip.
	ctx, cancel := context.WithTimeout(context.Background(), 6*s.queryTimeout())
	defer cancel()

	snap, err := game.Snapshot(ctx, job.Address, job.AppID, game.Query{Players: true, Rules: true}, s.a2sOptions, s.geoip)
	if err != nil {
		log.Debug().Err(err).Str("addr", job.Address).Msg("Snapshot failed")
		return
	}

	written, err := s.storage.SaveSnapshot(snap)
	if err != nil {
		log.Error().Err(err).Str("addr", job.Address).Msg("Failed to save snapshot to DB")
		return
	}

	log.Debug().
		Str("addr", job.Address).
		Bool("online", snap.Online()).
		Bool("written", written).
		Msg("Snapshot saved")
}

func (s *Server) queryTimeout() time.Duration {
	if s.a2sOptions.Timeout > 0 {
		return s.a2sOptions.Timeout
	}
	return 5 * time.Second
}
