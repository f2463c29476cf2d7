package fake

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/woozymasta/a2squery/internal/storage"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

func TestHandle(t *testing.T) {
	cfg := RandomServerConfig(1)
	cfg.Compress = false
	cfg.ChallengeInfo = true
	srv := &Server{cfg: cfg, challenge: 0x01020304}
	srv.cfg.SwitchSize = DefaultSwitchSize

	token := binary.LittleEndian.AppendUint32(nil, 0x01020304)
	info := append([]byte("\xFF\xFF\xFF\xFFTSource Engine Query\x00"), token...)

	tests := []struct {
		name  string
		query []byte
		kind  byte
	}{
		{name: "info without token", query: []byte("\xFF\xFF\xFF\xFFTSource Engine Query\x00"), kind: 'A'},
		{name: "info with token", query: info, kind: 0x49},
		{name: "players with empty token", query: []byte("\xFF\xFF\xFF\xFF\x55\xFF\xFF\xFF\xFF"), kind: 'A'},
		{name: "players with token", query: append([]byte("\xFF\xFF\xFF\xFF\x55"), token...), kind: 0x44},
		{name: "rules with wrong token", query: []byte("\xFF\xFF\xFF\xFF\x56\x00\x00\x00\x00"), kind: 'A'},
	}

	for _, tt := range tests {
		datagrams, err := srv.Handle(tt.query)
		if err != nil {
			t.Fatalf("Handle(%s) failed unexpectedly: %s", tt.name, err)
		}
		if len(datagrams) != 1 || !bytes.HasPrefix(datagrams[0], singleHeader) {
			t.Fatalf("Handle(%s) = %d datagrams, want one single packet", tt.name, len(datagrams))
		}
		if kind := datagrams[0][4]; kind != tt.kind {
			t.Fatalf("Handle(%s) answered 0x%02x, want 0x%02x", tt.name, kind, tt.kind)
		}
	}

	for _, bad := range [][]byte{nil, []byte("\xFF\xFF\xFF"), []byte("\xFF\xFF\xFF\xFF\x99"), []byte("\xFE\xFF\xFF\xFFT")} {
		if _, err := srv.Handle(bad); err == nil {
			t.Fatalf("Handle(% x) unexpectedly succeeded", bad)
		}
	}
}

func TestSplit(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 100)

	datagrams, err := Split(payload, 5, 128, false)
	if err != nil {
		t.Fatalf("Split() failed unexpectedly: %s", err)
	}
	// 1000 byte payload plus the inner 4 byte header in 128 byte chunks.
	if len(datagrams) != 8 {
		t.Fatalf("Split() = %d fragments, want 8", len(datagrams))
	}
	for n, d := range datagrams {
		if d[8] != 8 || int(d[9]) != n || binary.LittleEndian.Uint16(d[10:]) != 128 {
			t.Fatalf("fragment %d header = % x", n, d[:12])
		}
	}

	compressed, err := Split(payload, 5, 128, true)
	if err != nil {
		t.Fatalf("Split(compressed) failed unexpectedly: %s", err)
	}
	if id := binary.LittleEndian.Uint32(compressed[0][4:]); id != 0x80000005 {
		t.Fatalf("Split(compressed) id = %#x", id)
	}
	if size := binary.LittleEndian.Uint32(compressed[0][12:]); size != 1004 {
		t.Fatalf("Split(compressed) decompressed size = %d, want 1004", size)
	}

	if _, err := Split(bytes.Repeat([]byte{1}, 64*a2s.MaxFragments), 1, 60, false); err == nil {
		t.Fatal("Split() beyond the fragment limit unexpectedly succeeded")
	}
}

func TestGenerateData(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "fake.db"))
	if err != nil {
		t.Fatalf("storage.New() failed unexpectedly: %s", err)
	}
	defer store.Close()

	GenerateData(store, 5)

	targets, err := store.GetTargets()
	if err != nil {
		t.Fatalf("GetTargets() failed unexpectedly: %s", err)
	}
	if len(targets) == 0 || len(targets) > 5 {
		t.Fatalf("GetTargets() = %d targets, want 1..5", len(targets))
	}

	for _, target := range targets {
		snap, err := store.LatestSnapshot(target.Address)
		if err != nil || snap == nil {
			t.Fatalf("LatestSnapshot(%s) = %v, %v", target.Address, snap, err)
		}
	}
}
