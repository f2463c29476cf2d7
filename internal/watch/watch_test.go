package watch

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/fake"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/internal/storage"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []models.Snapshot
}

func (r *recorder) Publish(s models.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return nil
}

func (r *recorder) Close() {}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func openStore(t *testing.T) *storage.Repository {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "watch.db"))
	if err != nil {
		t.Fatalf("storage.New() failed unexpectedly: %s", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRound(t *testing.T) {
	store := openStore(t)

	cfg := fake.RandomServerConfig(42)
	srv, err := fake.Listen("127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("fake.Listen() failed unexpectedly: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	sink, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() failed unexpectedly: %s", err)
	}
	defer sink.Close()

	for _, target := range []models.Target{
		{Address: srv.Addr().String(), AppID: cfg.AppID},
		{Address: sink.LocalAddr().String()},
	} {
		if err := store.UpsertTarget(target); err != nil {
			t.Fatalf("UpsertTarget() failed unexpectedly: %s", err)
		}
	}

	pub := &recorder{}
	w := New(store, nil, pub,
		config.A2S{Timeout: 200 * time.Millisecond},
		config.Watch{Workers: 2, Rate: 100, Players: true, Rules: true},
	)

	stats, err := w.Round(context.Background())
	if err != nil {
		t.Fatalf("Round() failed unexpectedly: %s", err)
	}
	want := Stats{Targets: 2, Online: 1, Written: 2, Published: 2}
	if stats != want {
		t.Fatalf("Round() = %+v, want %+v", stats, want)
	}

	latest, err := store.LatestSnapshot(srv.Addr().String())
	if err != nil || latest == nil || latest.Info == nil || latest.Info.Name != cfg.Info.Name {
		t.Fatalf("LatestSnapshot() = %+v, %v", latest, err)
	}
	if len(latest.Rules) != len(cfg.Rules) {
		t.Fatalf("LatestSnapshot() has %d rules, want %d", len(latest.Rules), len(cfg.Rules))
	}

	// Nothing changed between rounds.
	stats, err = w.Round(context.Background())
	if err != nil {
		t.Fatalf("Round() failed unexpectedly: %s", err)
	}
	if stats.Written != 0 || pub.count() != 2 {
		t.Fatalf("second Round() = %+v with %d published, want nothing new", stats, pub.count())
	}
}

func TestPrune(t *testing.T) {
	store := openStore(t)
	const addr = "192.0.2.5:27015"

	for i, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour} {
		snap := models.Snapshot{Address: addr, TakenAt: time.Now().Add(-age), InfoError: string(rune('a' + i))}
		if _, err := store.SaveSnapshot(snap); err != nil {
			t.Fatalf("SaveSnapshot() failed unexpectedly: %s", err)
		}
	}

	deleted, err := Prune(store, 24*time.Hour)
	if err != nil || deleted != 2 {
		t.Fatalf("Prune() = %d, %v, want 2 deleted", deleted, err)
	}

	if !Maintenance(&config.Config{Storage: config.Storage{Prune: time.Hour}}, store) {
		t.Fatal("Maintenance() with --db-prune did not run")
	}
	if !Maintenance(&config.Config{Storage: config.Storage{List: true}}, store) {
		t.Fatal("Maintenance() with --db-list did not run")
	}
	if Maintenance(&config.Config{}, store) {
		t.Fatal("Maintenance() without flags reported a task")
	}

	if latest, err := store.LatestSnapshot(addr); err != nil || latest == nil || latest.InfoError != "c" {
		t.Fatalf("LatestSnapshot() after prune = %+v, %v", latest, err)
	}
}
