// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/a2squery/internal/logger"
	"github.com/woozymasta/a2squery/internal/vars"
)

// Output formats of one-shot queries.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Query     Query         `group:"Query Options"`
	A2S       A2S           `group:"A2S Options" env-namespace:"A2SQUERY_A2S"`
	Server    Server        `group:"Server Options" env-namespace:"A2SQUERY"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"A2SQUERY_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"A2SQUERY_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"A2SQUERY_RATE_LIMIT"`
	Watch     Watch         `group:"Watch Options" namespace:"watch" env-namespace:"A2SQUERY_WATCH"`
	MQTT      MQTT          `group:"MQTT Options" namespace:"mqtt" env-namespace:"A2SQUERY_MQTT"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"A2SQUERY_LOG"`

	Args struct {
		Targets []string `positional-arg-name:"host:port" description:"Servers to query"`
	} `positional-args:"yes"`

	Serve      bool   `long:"serve" env:"A2SQUERY_SERVE" description:"Run the HTTP API"`
	RunWatch   bool   `long:"watch" env:"A2SQUERY_WATCH" description:"Periodically query stored servers"`
	FakeServer string `long:"fake-server" hidden:"true"`
	Version    bool   `short:"v" long:"version" description:"Print version and build info"`
}

// Query selects what a one-shot query requests and how it is printed.
type Query struct {
	// betteralign:ignore

	Info    bool   `short:"i" long:"info" description:"Request server info (default when nothing is selected)"`
	Players bool   `short:"p" long:"players" description:"Request the player list"`
	Rules   bool   `short:"r" long:"rules" description:"Request server rules"`
	Format  string `short:"f" long:"format" env:"A2SQUERY_FORMAT" description:"Output format" choice:"table" choice:"json" default:"table"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Timeout of every send and receive" default:"5s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Largest accepted datagram and switch size" default:"1400"`
	AppID      uint16        `long:"app-id" env:"APP_ID" description:"Application id selecting title-specific fields (2400 for The Ship)"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"512"`
	Workers     int    `long:"workers" env:"WORKERS" description:"Background snapshot workers" default:"4"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path          string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"a2squery.db"`
	Prune         time.Duration `long:"prune" description:"Delete snapshots older than the given age, keeping the latest per server, and exit"`
	List          bool          `long:"list" description:"Print the stored servers and exit"`
	GenerateCount int           `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"a2squery.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"30"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
}

// Watch holds the periodic re-query configuration.
type Watch struct {
	// betteralign:ignore

	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Delay between watch rounds" default:"1m"`
	Workers  int           `long:"workers" env:"WORKERS" description:"Concurrent queries per round" default:"10"`
	Rate     float64       `long:"rate" env:"RATE" description:"Max queries per second, 0 for unlimited" default:"20"`
	Players  bool          `long:"players" env:"PLAYERS" description:"Include player lists in snapshots"`
	Rules    bool          `long:"rules" env:"RULES" description:"Include rules in snapshots"`
}

// MQTT holds the snapshot publishing configuration. Publishing is off without a broker.
type MQTT struct {
	// betteralign:ignore

	Broker   string `long:"broker" env:"BROKER" description:"Broker URL, e.g. tcp://localhost:1883"`
	ClientID string `long:"client-id" env:"CLIENT_ID" description:"Client id" default:"a2squery"`
	Username string `long:"username" env:"USERNAME" description:"Broker username"`
	Password string `long:"password" env:"PASSWORD" description:"Broker password"`
	Topic    string `long:"topic" env:"TOPIC" description:"Topic prefix for changed snapshots" default:"a2squery/servers"`
	QoS      byte   `long:"qos" env:"QOS" description:"Publish QoS" choice:"0" choice:"1" choice:"2" default:"1"`
}

// Mode reports whether a long-running or maintenance mode was selected instead of a
// one-shot query.
func (c *Config) Mode() bool {
	return c.Serve || c.RunWatch || c.FakeServer != "" || c.Storage.Prune > 0 || c.Storage.List || c.Storage.GenerateCount > 0
}

// UsesStorage reports whether the selected mode needs the database.
func (c *Config) UsesStorage() bool {
	return c.Serve || c.RunWatch || c.Storage.Prune > 0 || c.Storage.List || c.Storage.GenerateCount > 0
}

// ParseArgs reads the configuration from args and environment variables and validates it.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.NamespaceDelimiter = "-"
	parser.Usage = "[OPTIONS] [host:port...]"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Version {
		return nil
	}

	if c.Serve && c.Server.AuthToken == "" {
		return errors.New("required flag `-t, --auth-token' or environment variable `A2SQUERY_AUTH_TOKEN' was not specified")
	}

	if !c.Mode() && len(c.Args.Targets) == 0 {
		return errors.New("no servers to query, pass at least one host:port")
	}

	if c.A2S.BufferSize != 0 && c.A2S.BufferSize < 64 {
		return fmt.Errorf("buffer size %d is too small", c.A2S.BufferSize)
	}

	if c.Watch.Workers < 1 {
		c.Watch.Workers = 1
	}
	if c.Server.Workers < 1 {
		c.Server.Workers = 1
	}

	return nil
}

// Parse reads the configuration from the process arguments.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}
