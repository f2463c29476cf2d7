// Package watch periodically re-queries stored targets, records their snapshots and
// publishes the ones that changed. It also holds the database maintenance tasks.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/game"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/internal/publish"
	"github.com/woozymasta/a2squery/internal/storage"
	"golang.org/x/time/rate"
)

// Stats summarizes one watch round.
type Stats struct {
	Targets   int `json:"targets"`
	Online    int `json:"online"`
	Written   int `json:"written"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// Watcher re-queries every stored target once per interval.
type Watcher struct {
	store     *storage.Repository
	geo       game.CountryResolver
	publisher publish.Publisher
	limiter   *rate.Limiter
	a2s       config.A2S
	cfg       config.Watch
}

// New creates a Watcher. geo may be nil and publisher may be publish.Nop.
func New(
	store *storage.Repository, geo game.CountryResolver, publisher publish.Publisher, a2sOpts config.A2S, cfg config.Watch,
) *Watcher {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if publisher == nil {
		publisher = publish.Nop{}
	}

	return &Watcher{
		store:     store,
		geo:       geo,
		publisher: publisher,
		limiter:   rate.NewLimiter(limit, cfg.Workers),
		a2s:       a2sOpts,
		cfg:       cfg,
	}
}

// Run performs a round immediately and then once per interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		stats, err := w.Round(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Watch round failed")
		} else {
			log.Info().
				Int("targets", stats.Targets).
				Int("online", stats.Online).
				Int("written", stats.Written).
				Int("published", stats.Published).
				Int("failed", stats.Failed).
				Dur("duration", time.Since(start)).
				Msg("Watch round completed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Round queries every stored target once with a pool of workers.
func (w *Watcher) Round(ctx context.Context) (Stats, error) {
	targets, err := w.store.GetTargets()
	if err != nil {
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		stats = Stats{Targets: len(targets)}
		jobs  = make(chan models.Target, len(targets))
	)

	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				result := w.process(ctx, target)

				mu.Lock()
				stats.Online += result.Online
				stats.Written += result.Written
				stats.Published += result.Published
				stats.Failed += result.Failed
				mu.Unlock()
			}
		}()
	}

	for _, t := range targets {
		jobs <- t
	}
	close(jobs)

	wg.Wait()

	return stats, ctx.Err()
}

// process snapshots one target; the returned Stats has at most one in each counter.
func (w *Watcher) process(ctx context.Context, target models.Target) Stats {
	var stats Stats
	logCtx := log.With().Str("addr", target.Address).Logger()

	if err := w.limiter.Wait(ctx); err != nil {
		stats.Failed = 1
		return stats
	}

	snap, err := game.Snapshot(ctx, target.Address, target.AppID,
		game.Query{Players: w.cfg.Players, Rules: w.cfg.Rules}, w.a2s, w.geo)
	if err != nil {
		logCtx.Warn().Err(err).Msg("Failed to query target")
		stats.Failed = 1
		return stats
	}
	if snap.Online() {
		stats.Online = 1
	}

	written, err := w.store.SaveSnapshot(snap)
	if err != nil {
		logCtx.Error().Err(err).Msg("Failed to save snapshot")
		stats.Failed = 1
		return stats
	}
	if !written {
		logCtx.Trace().Msg("Snapshot unchanged")
		return stats
	}
	stats.Written = 1

	if err := w.publisher.Publish(snap); err != nil {
		logCtx.Warn().Err(err).Msg("Failed to publish snapshot")
		return stats
	}
	stats.Published = 1

	return stats
}
