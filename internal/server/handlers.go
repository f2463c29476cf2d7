package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/internal/game"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/internal/vars"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleVersion returns the build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Ver())
}

// liveQuery resolves the addr parameter, runs fn with a fresh client and writes its result or
// error as JSON.
// Query params: ?addr=1.2.3.4:27015[&app_id=2400]
func (s *Server) liveQuery(
	w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, c *a2s.Client, addr net.Addr) (any, error),
) {
	address := r.URL.Query().Get("addr")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing addr")
		return
	}

	var appID uint16
	if v := r.URL.Query().Get("app_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid app_id")
			return
		}
		appID = uint16(n)
	}

	addr, err := game.ResolveAddr(address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := game.NewClient(s.a2sOptions, appID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open A2S socket")
		writeError(w, http.StatusInternalServerError, "socket error")
		return
	}
	defer func() { _ = client.Close() }()

	result, err := fn(r.Context(), client, addr)
	if err != nil {
		log.Debug().Err(err).Str("addr", address).Str("path", r.URL.Path).Msg("Live query failed")
		writeError(w, queryErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryErrorStatus maps query failures to gateway status codes.
func queryErrorStatus(err error) int {
	if errors.Is(err, a2s.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// handleInfo performs a live A2S_INFO query.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.liveQuery(w, r, func(ctx context.Context, c *a2s.Client, addr net.Addr) (any, error) {
		return c.Info(ctx, addr)
	})
}

// handlePlayers performs a live A2S_PLAYER query.
func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	s.liveQuery(w, r, func(ctx context.Context, c *a2s.Client, addr net.Addr) (any, error) {
		players, err := c.Players(ctx, addr)
		if players == nil && err == nil {
			players = []a2s.Player{}
		}
		return players, err
	})
}

// handleRules performs a live A2S_RULES query.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.liveQuery(w, r, func(ctx context.Context, c *a2s.Client, addr net.Addr) (any, error) {
		rules, err := c.Rules(ctx, addr)
		if rules == nil && err == nil {
			rules = []a2s.Rule{}
		}
		return rules, err
	})
}

// targetAddress resolves the addr parameter to the canonical form targets are stored under.
// It writes a 400 response and returns false when the parameter is missing or invalid.
func targetAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := r.URL.Query().Get("addr")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing addr")
		return "", false
	}

	addr, err := game.ResolveAddr(address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	return addr.String(), true
}

// handleServers returns a JSON list of all stored targets.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	targets, err := s.storage.GetTargets()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch targets")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if targets == nil {
		targets = []models.Target{}
	}

	writeJSON(w, http.StatusOK, targets)
}

// handleGetServer returns a stored target with its latest snapshot.
// Query params: ?addr=1.2.3.4:27015
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	address, ok := targetAddress(w, r)
	if !ok {
		return
	}

	target, err := s.storage.GetTarget(address)
	if err != nil {
		log.Error().Err(err).Str("addr", address).Msg("Failed to fetch target")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	snap, err := s.storage.LatestSnapshot(address)
	if err != nil {
		log.Error().Err(err).Str("addr", address).Msg("Failed to fetch snapshot")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, targetResponse{Target: target, Snapshot: snap})
}

// handleAddServer registers a target and queues a snapshot of it.
func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	addr, err := game.ResolveAddr(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Store the canonical form so lookups by the returned address match.
	req.Address = addr.String()

	target := models.Target{Address: req.Address, Label: req.Label, AppID: req.AppID}
	if s.geoip != nil {
		target.CountryCode = s.geoip.CountryCode(addr.IP)
	}

	if err := s.storage.UpsertTarget(target); err != nil {
		log.Error().Err(err).Str("addr", req.Address).Msg("Failed to save target")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	queued := s.enqueue(snapshotJob{Address: req.Address, AppID: req.AppID})

	log.Info().Str("addr", req.Address).Str("label", req.Label).Bool("queued", queued).Msg("Target added")

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok", "address": req.Address, "queued": queued})
}

// handleDeleteServer removes a target and its snapshots.
// Query params: ?addr=1.2.3.4:27015
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	address, ok := targetAddress(w, r)
	if !ok {
		return
	}

	deleted, err := s.storage.DeleteTarget(address)
	if err != nil {
		log.Error().Err(err).Str("addr", address).Msg("Failed to delete target")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	log.Info().Str("addr", address).Msg("Target deleted manually")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Target deleted"})
}
