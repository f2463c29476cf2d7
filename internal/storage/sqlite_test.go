package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(filepath.Join(t.TempDir(), "a2squery.db"))
	if err != nil {
		t.Fatalf("New() failed unexpectedly: %s", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func testSnapshot(address, mapName string, players uint8) models.Snapshot {
	return models.Snapshot{
		Address:     address,
		CountryCode: "DE",
		Ping:        models.Duration(12 * time.Millisecond),
		Info: &a2s.Info{
			Name: "test", Map: mapName, Folder: "cstrike", Game: "CS", AppID: 10, Players: players,
			MaxPlayers: 32, ServerType: a2s.ServerTypeDedicated, Environment: a2s.EnvironmentLinux,
			Version: "1.0",
		},
		Players: []a2s.Player{{Name: "gordon", Score: 3, Duration: 10}},
		Rules:   []a2s.Rule{{Name: "sv_gravity", Value: "800"}},
	}
}

func TestMigrations(t *testing.T) {
	repo := openTestRepository(t)

	applied, err := runMigrations(repo.db)
	if err != nil {
		t.Fatalf("runMigrations() failed unexpectedly: %s", err)
	}
	if applied != 0 {
		t.Fatalf("runMigrations() applied %d migrations twice", applied)
	}
}

func TestTargets(t *testing.T) {
	repo := openTestRepository(t)

	if err := repo.UpsertTarget(models.Target{Address: "10.0.0.1:27015", Label: "main", AppID: 2400}); err != nil {
		t.Fatalf("UpsertTarget() failed unexpectedly: %s", err)
	}
	if err := repo.UpsertTarget(models.Target{Address: "10.0.0.1:27015", CountryCode: "NL"}); err != nil {
		t.Fatalf("UpsertTarget() failed unexpectedly: %s", err)
	}
	if err := repo.UpsertTarget(models.Target{Address: "10.0.0.2:27015"}); err != nil {
		t.Fatalf("UpsertTarget() failed unexpectedly: %s", err)
	}

	target, err := repo.GetTarget("10.0.0.1:27015")
	if err != nil || target == nil {
		t.Fatalf("GetTarget() = %v, %v", target, err)
	}
	if target.Label != "main" || target.AppID != 2400 || target.CountryCode != "NL" {
		t.Fatalf("GetTarget() = %+v, want label, app id and country merged", target)
	}
	if target.FirstSeen.IsZero() || target.LastSeen.Before(target.FirstSeen) {
		t.Fatalf("GetTarget() timestamps = %s, %s", target.FirstSeen, target.LastSeen)
	}

	targets, err := repo.GetTargets()
	if err != nil || len(targets) != 2 {
		t.Fatalf("GetTargets() = %v, %v", targets, err)
	}

	deleted, err := repo.DeleteTarget("10.0.0.2:27015")
	if err != nil || !deleted {
		t.Fatalf("DeleteTarget() = %t, %v", deleted, err)
	}
	deleted, err = repo.DeleteTarget("10.0.0.2:27015")
	if err != nil || deleted {
		t.Fatalf("DeleteTarget() of a missing target = %t, %v", deleted, err)
	}

	if missing, err := repo.GetTarget("10.0.0.2:27015"); err != nil || missing != nil {
		t.Fatalf("GetTarget() after delete = %v, %v", missing, err)
	}
}

func TestSnapshots(t *testing.T) {
	repo := openTestRepository(t)
	const addr = "192.0.2.10:27015"

	if s, err := repo.LatestSnapshot(addr); err != nil || s != nil {
		t.Fatalf("LatestSnapshot() on empty db = %v, %v", s, err)
	}

	first := testSnapshot(addr, "de_dust2", 5)
	first.TakenAt = time.Now().Add(-2 * time.Hour)
	written, err := repo.SaveSnapshot(first)
	if err != nil || !written {
		t.Fatalf("SaveSnapshot(first) = %t, %v", written, err)
	}

	// Only the ping and player duration changed.
	same := testSnapshot(addr, "de_dust2", 5)
	same.TakenAt = time.Now().Add(-time.Hour)
	same.Ping = models.Duration(90 * time.Millisecond)
	same.Players[0].Duration = 99
	written, err = repo.SaveSnapshot(same)
	if err != nil || written {
		t.Fatalf("SaveSnapshot(unchanged) = %t, %v", written, err)
	}

	changed := testSnapshot(addr, "de_nuke", 6)
	changed.TakenAt = time.Now()
	written, err = repo.SaveSnapshot(changed)
	if err != nil || !written {
		t.Fatalf("SaveSnapshot(changed) = %t, %v", written, err)
	}

	latest, err := repo.LatestSnapshot(addr)
	if err != nil || latest == nil {
		t.Fatalf("LatestSnapshot() = %v, %v", latest, err)
	}
	if latest.Info == nil || latest.Info.Map != "de_nuke" || latest.Info.ServerType != a2s.ServerTypeDedicated {
		t.Fatalf("LatestSnapshot().Info = %+v", latest.Info)
	}
	if len(latest.Rules) != 1 || latest.Rules[0].Value != "800" || time.Duration(latest.Ping) != 12*time.Millisecond {
		t.Fatalf("LatestSnapshot() = %+v", latest)
	}

	target, err := repo.GetTarget(addr)
	if err != nil || target == nil || target.CountryCode != "DE" {
		t.Fatalf("GetTarget() registered by SaveSnapshot = %+v, %v", target, err)
	}

	pruned, err := repo.PruneSnapshots(time.Now().Add(-30 * time.Minute))
	if err != nil || pruned != 1 {
		t.Fatalf("PruneSnapshots() = %d, %v, want 1 deleted", pruned, err)
	}

	// The latest snapshot survives any cutoff.
	pruned, err = repo.PruneSnapshots(time.Now().Add(time.Hour))
	if err != nil || pruned != 0 {
		t.Fatalf("PruneSnapshots(future) = %d, %v, want 0 deleted", pruned, err)
	}

	if _, err := repo.DeleteTarget(addr); err != nil {
		t.Fatalf("DeleteTarget() failed unexpectedly: %s", err)
	}
	if s, err := repo.LatestSnapshot(addr); err != nil || s != nil {
		t.Fatalf("LatestSnapshot() after delete = %v, %v", s, err)
	}
}

func TestFingerprint(t *testing.T) {
	base := testSnapshot("a:1", "m", 1)
	fp := Fingerprint(&base)

	tests := map[string]func(s *models.Snapshot){
		"map":          func(s *models.Snapshot) { s.Info.Map = "other" },
		"player score": func(s *models.Snapshot) { s.Players[0].Score++ },
		"rule value":   func(s *models.Snapshot) { s.Rules[0].Value = "600" },
		"offline":      func(s *models.Snapshot) { s.Info = nil; s.InfoError = "a2s: timeout" },
		"address":      func(s *models.Snapshot) { s.Address = "a:2" },
	}

	for name, mutate := range tests {
		s := testSnapshot("a:1", "m", 1)
		mutate(&s)
		if Fingerprint(&s) == fp {
			t.Fatalf("Fingerprint() did not change with %s", name)
		}
	}
}
