package watch

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/render"
	"github.com/woozymasta/a2squery/internal/storage"
)

// Maintenance checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Maintenance(cfg *config.Config, store *storage.Repository) bool {
	if cfg.Storage.List {
		targets, err := store.GetTargets()
		if err != nil {
			log.Error().Err(err).Msg("Failed to list servers")
			return true
		}
		render.Targets(os.Stdout, targets)
		return true
	}

	if cfg.Storage.Prune <= 0 {
		return false
	}

	log.Info().Dur("older_than", cfg.Storage.Prune).Msg("Pruning old snapshots...")

	count, err := Prune(store, cfg.Storage.Prune)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune snapshots")
	} else {
		log.Info().Int64("deleted", count).Msg("Prune finished")
	}

	return true
}

// Prune deletes snapshots older than maxAge, keeping the latest snapshot of every target.
func Prune(store *storage.Repository, maxAge time.Duration) (int64, error) {
	return store.PruneSnapshots(time.Now().Add(-maxAge))
}
