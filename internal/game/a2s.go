// Package game queries game servers using the Source Engine Query (A2S) protocol and turns
// the answers into snapshots.
package game

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

// DefaultPort is assumed for addresses given without a port.
const DefaultPort = 27015

// Query selects the records requested for a snapshot. Info is always requested.
type Query struct {
	Players bool
	Rules   bool
}

// CountryResolver maps an address to an ISO country code.
type CountryResolver interface {
	CountryCode(ip net.IP) string
}

// ResolveAddr resolves "host[:port]" to a UDP address, defaulting to DefaultPort.
func ResolveAddr(address string) (*net.UDPAddr, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = address, strconv.Itoa(DefaultPort)
	}
	if host == "" {
		return nil, fmt.Errorf("invalid address %q: missing host", address)
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if addr.Port <= 0 {
		return nil, fmt.Errorf("invalid address %q: bad port", address)
	}

	return addr, nil
}

// NewClient creates an A2S client from the query options. appID overrides the configured
// application id when non-zero.
func NewClient(options config.A2S, appID uint16) (*a2s.Client, error) {
	if appID == 0 {
		appID = options.AppID
	}

	return a2s.New(a2s.Config{
		Logger:        &log.Logger,
		Timeout:       options.Timeout,
		MaxPacketSize: int(options.BufferSize),
		AppID:         appID,
	})
}

// Snapshot queries address for info and the records selected by q. A failing query is
// recorded in the snapshot instead of aborting it; only an unresolvable address or an
// unusable socket is returned as an error. geo may be nil.
func Snapshot(
	ctx context.Context, address string, appID uint16, q Query, options config.A2S, geo CountryResolver,
) (models.Snapshot, error) {
	snap := models.Snapshot{Address: address, TakenAt: time.Now().UTC()}

	addr, err := ResolveAddr(address)
	if err != nil {
		return snap, err
	}
	if geo != nil {
		snap.CountryCode = geo.CountryCode(addr.IP)
	}

	client, err := NewClient(options, appID)
	if err != nil {
		return snap, err
	}
	defer func() { _ = client.Close() }()

	logCtx := log.With().Str("addr", address).Logger()

	start := time.Now()
	snap.Info, err = client.Info(ctx, addr)
	snap.Ping = models.Duration(time.Since(start))
	if err != nil {
		logCtx.Debug().Err(err).Msg("Info query failed")
		snap.InfoError = err.Error()
		snap.Ping = 0

		// Players and rules of a server that did not answer info would time out as well.
		return snap, nil
	}

	if q.Players {
		if snap.Players, err = client.Players(ctx, addr); err != nil {
			logCtx.Debug().Err(err).Msg("Players query failed")
			snap.PlayersError = err.Error()
		}
	}

	if q.Rules {
		if snap.Rules, err = client.Rules(ctx, addr); err != nil {
			logCtx.Debug().Err(err).Msg("Rules query failed")
			snap.RulesError = err.Error()
		}
	}

	logCtx.Trace().
		Bool("online", snap.Online()).
		Dur("ping", time.Duration(snap.Ping)).
		Int("players", len(snap.Players)).
		Int("rules", len(snap.Rules)).
		Msg("Snapshot taken")

	return snap, nil
}
