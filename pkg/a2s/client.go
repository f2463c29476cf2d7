package a2s

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds each socket operation when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// AppIDTheShip is the application id of The Ship, whose responses carry extra fields.
const AppIDTheShip = 2400

// Config contains settings to control Client instances.
type Config struct {
	// Logger receives debug and trace output about fragments and handshakes. Nil disables
	// logging.
	Logger *zerolog.Logger

	// Timeout bounds every send and every wait for a response. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxPacketSize is the largest datagram accepted from a server and the upper bound for the
	// switch size announced by multi-packet responses. Zero means DefaultMaxPacketSize.
	MaxPacketSize int

	// AppID selects title-specific record extensions. Zero disables them.
	AppID uint16
}

// Client queries game servers over a single socket.
//
// Clients are safe for concurrent use: each query exchange, including the challenge round
// trip, holds the socket exclusively until it completes. Use several clients to query in
// parallel.
type Client struct {
	mu        sync.Mutex
	transport Transport
	logger    zerolog.Logger
	timeout   time.Duration
	maxPacket int
	appID     uint16
}

// New binds a UDP socket on an ephemeral port and returns a Client using it.
func New(cfg Config) (*Client, error) {
	t, err := ListenUDP(":0")
	if err != nil {
		return nil, err
	}

	return NewWithTransport(t, cfg), nil
}

// NewWithTransport returns a Client using t. The client takes ownership of t.
func NewWithTransport(t Transport, cfg Config) *Client {
	c := &Client{
		transport: t,
		logger:    zerolog.Nop(),
		timeout:   cfg.Timeout,
		maxPacket: cfg.MaxPacketSize,
		appID:     cfg.AppID,
	}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.With().Str("component", "a2s").Logger()
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxPacket <= 0 {
		c.maxPacket = DefaultMaxPacketSize
	}

	return c
}

// Close closes the underlying transport. It does not wait for an exchange in flight: a
// pending query fails with a NetworkError instead.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Info requests A2S_INFO from addr. The query is sent without a challenge first; servers that
// answer with a challenge are queried again with the issued token.
func (c *Client) Info(ctx context.Context, addr net.Addr) (*Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.query(ctx, infoRequest, addr)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 && data[0] == responseChallenge {
		challenge, err := parseChallenge(data)
		if err != nil {
			return nil, err
		}

		c.logger.Debug().Str("addr", addr.String()).Int32("challenge", challenge).Msg("Info query challenged")

		data, err = c.query(ctx, withChallenge(infoRequest, challenge), addr)
		if err != nil {
			return nil, err
		}
	}

	return ParseInfo(data)
}

// Players requests A2S_PLAYER from addr.
func (c *Client) Players(ctx context.Context, addr net.Addr) ([]Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.challengeQuery(ctx, playersRequest, addr)
	if err != nil {
		return nil, err
	}

	return ParsePlayers(data, c.appID)
}

// Rules requests A2S_RULES from addr.
func (c *Client) Rules(ctx context.Context, addr net.Addr) ([]Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.challengeQuery(ctx, rulesRequest, addr)
	if err != nil {
		return nil, err
	}

	return ParseRules(data)
}

// challengeQuery performs the two round trips of a challenged query: base with the empty
// token, then base with the token the server issued.
func (c *Client) challengeQuery(ctx context.Context, base []byte, addr net.Addr) ([]byte, error) {
	data, err := c.query(ctx, withChallenge(base, noChallenge), addr)
	if err != nil {
		return nil, err
	}

	challenge, err := parseChallenge(data)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("addr", addr.String()).Int32("challenge", challenge).Msg("Challenge received")

	return c.query(ctx, withChallenge(base, challenge), addr)
}

// parseChallenge extracts the token from a challenge reply.
func parseChallenge(data []byte) (int32, error) {
	r := newReader(data)

	kind, err := r.uint8("challenge marker")
	if err != nil {
		return 0, err
	}
	if kind != responseChallenge {
		return 0, fmt.Errorf("%w: expected challenge, got 0x%02x", ErrInvalidResponse, kind)
	}

	return r.int32("challenge")
}

// query sends payload to addr and returns the response payload, reassembling and
// decompressing multi-packet responses.
func (c *Client) query(ctx context.Context, payload []byte, addr net.Addr) ([]byte, error) {
	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.transport.Send(sendCtx, payload, addr)
	cancel()
	if err != nil {
		return nil, err
	}

	if c.logger.GetLevel() <= zerolog.TraceLevel {
		c.logger.Trace().Str("addr", addr.String()).Str("packet", hex.EncodeToString(payload)).Msg("Query sent")
	}

	datagram, err := c.receive(ctx, addr)
	if err != nil {
		return nil, err
	}

	header, err := responseHeader(datagram)
	if err != nil {
		return nil, err
	}

	switch header {
	case singlePacket:
		return datagram[4:], nil
	case multiPacket:
		return c.reassemble(ctx, datagram, addr)
	default:
		return nil, fmt.Errorf("%w: response header %d", ErrInvalidResponse, header)
	}
}

// reassemble collects the remaining fragments of the response started by first.
func (c *Client) reassemble(ctx context.Context, first []byte, addr net.Addr) ([]byte, error) {
	f, err := parseFragment(first)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("addr", addr.String()).
		Uint16("app_id", c.appID).
		Uint32("id", f.id).
		Uint8("total", f.total).
		Uint16("switch_size", f.switchSize).
		Bool("compressed", f.compressed()).
		Msg("Multi-packet response")

	r, err := newReassembly(f, c.maxPacket)
	if err != nil {
		return nil, err
	}

	// Repeated fragments do not count towards completion, so the timeout covers the whole
	// reassembly rather than each datagram.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for !r.complete() {
		datagram, err := c.receive(ctx, addr)
		if err != nil {
			return nil, err
		}

		f, err := parseFragment(datagram)
		if err != nil {
			return nil, err
		}

		c.logger.Trace().Uint32("id", f.id).Uint8("number", f.number).Int("size", len(f.payload)).Msg("Fragment received")

		if _, err := r.add(f); err != nil {
			return nil, err
		}
	}

	return r.payload()
}

// receive waits for the next datagram from addr. Datagrams from other sources are dropped;
// the timeout covers the whole wait.
func (c *Client) receive(ctx context.Context, addr net.Addr) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for {
		buf := make([]byte, c.maxPacket)
		n, src, err := c.transport.Receive(ctx, buf)
		if err != nil {
			return nil, err
		}

		if src != nil && !sameAddr(src, addr) {
			c.logger.Trace().Str("src", src.String()).Str("want", addr.String()).Msg("Dropped datagram from unexpected source")
			continue
		}

		return buf[:n], nil
	}
}

// sameAddr compares UDP endpoints, treating IPv4 and IPv4-mapped IPv6 addresses as equal.
func sameAddr(a, b net.Addr) bool {
	ua, ok1 := a.(*net.UDPAddr)
	ub, ok2 := b.(*net.UDPAddr)
	if ok1 && ok2 {
		return ua.Port == ub.Port && ua.IP.Equal(ub.IP)
	}

	return a.String() == b.String()
}
