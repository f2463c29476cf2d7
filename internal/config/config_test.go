package config

import (
	"errors"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

func TestParseArgs(t *testing.T) {
	t.Run(
		"one-shot query",
		func(t *testing.T) {
			cfg, err := ParseArgs([]string{"--players", "--format", "json", "--timeout", "750ms", "--app-id", "2400", "10.0.0.1:27015", "10.0.0.2"})
			if err != nil {
				t.Fatalf("ParseArgs() failed unexpectedly: %s", err)
			}
			if !cfg.Query.Players || cfg.Query.Info || cfg.Query.Format != FormatJSON {
				t.Fatalf("Query = %+v", cfg.Query)
			}
			if cfg.A2S.Timeout != 750*time.Millisecond || cfg.A2S.AppID != 2400 || cfg.A2S.BufferSize != 1400 {
				t.Fatalf("A2S = %+v", cfg.A2S)
			}
			if len(cfg.Args.Targets) != 2 || cfg.Mode() || cfg.UsesStorage() {
				t.Fatalf("targets = %v, mode = %t", cfg.Args.Targets, cfg.Mode())
			}
		},
	)

	t.Run(
		"service",
		func(t *testing.T) {
			cfg, err := ParseArgs([]string{"--serve", "--watch", "-t", "tok", "--db-path", "x.db", "--watch-interval", "30s", "--mqtt-broker", "tcp://localhost:1883"})
			if err != nil {
				t.Fatalf("ParseArgs() failed unexpectedly: %s", err)
			}
			if !cfg.Serve || !cfg.RunWatch || !cfg.Mode() || !cfg.UsesStorage() {
				t.Fatalf("modes = %+v", cfg)
			}
			if cfg.Storage.Path != "x.db" || cfg.Watch.Interval != 30*time.Second || cfg.MQTT.Broker == "" || cfg.MQTT.QoS != 1 {
				t.Fatalf("options = %+v, %+v, %+v", cfg.Storage, cfg.Watch, cfg.MQTT)
			}
		},
	)

	t.Run(
		"defaults",
		func(t *testing.T) {
			cfg, err := ParseArgs([]string{"127.0.0.1"})
			if err != nil {
				t.Fatalf("ParseArgs() failed unexpectedly: %s", err)
			}
			if cfg.A2S.Timeout != a2s.DefaultTimeout || cfg.A2S.BufferSize != a2s.DefaultMaxPacketSize {
				t.Fatalf("A2S defaults = %+v, want the library defaults", cfg.A2S)
			}
			if cfg.Query.Format != FormatTable || cfg.Storage.Path != "a2squery.db" {
				t.Fatalf("defaults = %+v, %+v", cfg.Query, cfg.Storage)
			}
		},
	)

	t.Run(
		"environment",
		func(t *testing.T) {
			t.Setenv("A2SQUERY_A2S_TIMEOUT", "2s")
			t.Setenv("A2SQUERY_WATCH_WORKERS", "3")

			cfg, err := ParseArgs([]string{"127.0.0.1"})
			if err != nil {
				t.Fatalf("ParseArgs() failed unexpectedly: %s", err)
			}
			if cfg.A2S.Timeout != 2*time.Second || cfg.Watch.Workers != 3 {
				t.Fatalf("env config = %+v, %+v", cfg.A2S, cfg.Watch)
			}
		},
	)

	t.Run(
		"invalid",
		func(t *testing.T) {
			tests := [][]string{
				{},
				{"--serve"},
				{"--format", "xml", "127.0.0.1"},
				{"--buffer-size", "10", "127.0.0.1"},
			}
			for _, args := range tests {
				if _, err := ParseArgs(args); err == nil {
					t.Fatalf("ParseArgs(%q) unexpectedly succeeded", args)
				}
			}
		},
	)

	t.Run(
		"help",
		func(t *testing.T) {
			_, err := ParseArgs([]string{"--help"})
			var flagsErr *flags.Error
			if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
				t.Fatalf("ParseArgs(--help) = %v, want ErrHelp", err)
			}
		},
	)
}
