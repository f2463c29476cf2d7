// main is the entry point of the a2squery application.
// It queries game servers once, or runs the HTTP API and the watcher on top of the database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/fake"
	"github.com/woozymasta/a2squery/internal/game"
	"github.com/woozymasta/a2squery/internal/geoip"
	"github.com/woozymasta/a2squery/internal/logger"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/internal/publish"
	"github.com/woozymasta/a2squery/internal/render"
	"github.com/woozymasta/a2squery/internal/server"
	"github.com/woozymasta/a2squery/internal/storage"
	"github.com/woozymasta/a2squery/internal/watch"
)

func main() {
	cfg := config.Parse()
	logger.Setup(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.FakeServer != "" {
		if err := runFakeServer(ctx, cfg.FakeServer); err != nil {
			log.Fatal().Err(err).Msg("Fake server failed")
		}
		return
	}

	if !cfg.Mode() {
		code := runQuery(ctx, cfg)
		stop()
		os.Exit(code)
	}

	runService(ctx, cfg)
}

// runQuery performs a one-shot query of the positional targets and prints the result.
// It returns the process exit code: 1 when any server did not answer.
func runQuery(ctx context.Context, cfg *config.Config) int {
	sections := render.Sections{Info: cfg.Query.Info, Players: cfg.Query.Players, Rules: cfg.Query.Rules}
	if !sections.Info && !sections.Players && !sections.Rules {
		sections.Info = true
	}

	// Country lookup only when a database is already on disk.
	geo := openGeoIP(cfg.GeoIP.Path)
	defer closeGeoIP(geo)

	snaps := make([]models.Snapshot, len(cfg.Args.Targets))
	var wg sync.WaitGroup
	for i, address := range cfg.Args.Targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := game.Snapshot(ctx, address, 0, game.Query{Players: sections.Players, Rules: sections.Rules}, cfg.A2S, geo)
			if err != nil {
				snap.InfoError = err.Error()
			}
			snaps[i] = snap
		}()
	}
	wg.Wait()

	if err := render.Snapshots(os.Stdout, cfg.Query.Format, sections, snaps); err != nil {
		log.Error().Err(err).Msg("Failed to print result")
		return 1
	}

	for i := range snaps {
		if !snaps[i].Online() {
			return 1
		}
	}
	return 0
}

// runService runs the database backed modes: fake data generation, maintenance, the HTTP
// API and the watcher.
func runService(ctx context.Context, cfg *config.Config) {
	log.Info().Msg("Starting a2squery service...")

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(store, cfg.Storage.GenerateCount)
		return
	} else if watch.Maintenance(cfg, store) {
		return
	}

	// GeoIP Update
	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}
	geo := openGeoIP(cfg.GeoIP.Path)
	defer closeGeoIP(geo)

	var wg sync.WaitGroup

	if cfg.RunWatch {
		publisher, err := publish.New(cfg.MQTT)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to MQTT broker, publishing disabled")
			publisher = publish.Nop{}
		}
		defer publisher.Close()

		watcher := watch.New(store, geo, publisher, cfg.A2S, cfg.Watch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
	}

	if cfg.Serve {
		srvHandler := server.New(store, geo, cfg)
		srvHandler.StartWorkers()

		httpServer := &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      srvHandler.Run(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 4*cfg.A2S.Timeout + 5*time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server failed")
			}
		}()

		<-ctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		// Stop workers (wait queue done)
		srvHandler.StopWorkers()
	}

	wg.Wait()
	log.Info().Msg("Service exited")
}

// runFakeServer serves random A2S responses on address until ctx is done.
func runFakeServer(ctx context.Context, address string) error {
	cfg := fake.RandomServerConfig(time.Now().UnixNano())
	cfg.ChallengeInfo = true

	srv, err := fake.Listen(address, cfg)
	if err != nil {
		return err
	}

	log.Info().
		Str("address", srv.Addr().String()).
		Str("name", cfg.Info.Name).
		Uint16("app_id", cfg.AppID).
		Bool("compress", cfg.Compress).
		Msg("Fake server listening")

	return srv.Serve(ctx)
}

func openGeoIP(path string) *geoip.Provider {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	geo, err := geoip.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}
	return geo
}

func closeGeoIP(geo *geoip.Provider) {
	if err := geo.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing GeoIP provider")
	}
}
