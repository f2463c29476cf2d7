package server

import (
	"sync"
	"time"

	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/game"
	"github.com/woozymasta/a2squery/internal/models"
	"github.com/woozymasta/a2squery/internal/storage"
)

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP requests and background snapshot processing.
type Server struct {
	// storage provides access to the persistent database layer for targets and snapshots.
	storage *storage.Repository

	// geoip resolves server addresses to country codes. It can be nil.
	geoip game.CountryResolver

	// queue is a buffered channel used to pass snapshot jobs from HTTP handlers
	// to background workers for asynchronous processing.
	queue chan snapshotJob

	// shutdown is closed to stop background goroutines during a graceful shutdown.
	shutdown chan struct{}

	// authToken is the secret token required to access the server management endpoints.
	authToken string

	// a2sOptions holds configuration settings for querying game servers.
	a2sOptions config.A2S

	// wg is used to wait for all background workers to finish processing
	// before the server shuts down completely.
	wg sync.WaitGroup

	// maxBody specifies the maximum allowed size (in bytes) for incoming HTTP request bodies.
	maxBody int64

	// hardLimitCount is the maximum number of requests allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// workers is the number of background snapshot workers.
	workers int

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}

// snapshotJob asks a background worker to snapshot and store one server.
type snapshotJob struct {
	Address string
	AppID   uint16
}

// targetRequest is the body of POST /api/server.
type targetRequest struct {
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
	AppID   uint16 `json:"app_id,omitempty"`
}

// targetResponse is the body of GET /api/server.
type targetResponse struct {
	Target   *models.Target   `json:"target"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// errorResponse is the body of every JSON error.
type errorResponse struct {
	Error string `json:"error"`
}
