package fake

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2squery/pkg/a2s"
)

// DefaultSwitchSize is the fragment payload size used by Source servers.
const DefaultSwitchSize = 1248

var infoQuery = []byte("TSource Engine Query\x00")

// ServerConfig selects the records a fake server answers with and how it frames them.
type ServerConfig struct {
	Info    *a2s.Info
	Players []a2s.Player
	Rules   []a2s.Rule

	// SwitchSize is the largest fragment payload; responses that do not fit in one datagram
	// are split. Zero means DefaultSwitchSize.
	SwitchSize int

	// AppID selects title-specific player fields.
	AppID uint16

	// Compress forces multi-packet bzip2 framing for every response.
	Compress bool

	// ChallengeInfo makes info queries require a challenge like modern servers do.
	ChallengeInfo bool
}

// Server answers A2S queries on a UDP socket. It exists for tests and local development.
type Server struct {
	conn      net.PacketConn
	cfg       ServerConfig
	nextID    atomic.Uint32
	challenge int32
}

// Listen binds a fake server on address, e.g. "127.0.0.1:0".
func Listen(address string, cfg ServerConfig) (*Server, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, err
	}
	if cfg.SwitchSize <= 0 {
		cfg.SwitchSize = DefaultSwitchSize
	}

	return &Server{
		conn:      conn,
		cfg:       cfg,
		challenge: rand.Int31(),
	}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Close stops the server.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Serve answers queries until ctx is done or the socket is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	buf := make([]byte, 1400)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		datagrams, err := s.Handle(buf[:n])
		if err != nil {
			log.Debug().Err(err).Str("remote", addr.String()).Msg("Fake server ignored query")
			continue
		}

		for _, d := range datagrams {
			if _, err := s.conn.WriteTo(d, addr); err != nil {
				log.Warn().Err(err).Str("remote", addr.String()).Msg("Fake server failed to reply")
				break
			}
		}
	}
}

// Handle returns the datagrams answering query.
func (s *Server) Handle(query []byte) ([][]byte, error) {
	if len(query) < 5 || !bytes.Equal(query[:4], singleHeader) {
		return nil, fmt.Errorf("fake: malformed query")
	}

	body := query[4:]
	switch body[0] {
	case 'T':
		if !bytes.HasPrefix(body, infoQuery) {
			return nil, fmt.Errorf("fake: malformed info query")
		}
		if s.cfg.ChallengeInfo && !s.validToken(body[len(infoQuery):]) {
			return [][]byte{Challenge(s.challenge)}, nil
		}
		if s.cfg.Info == nil {
			return nil, fmt.Errorf("fake: no info configured")
		}
		payload, err := s.cfg.Info.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return s.frame(payload)

	case 0x55:
		if !s.validToken(body[1:]) {
			return [][]byte{Challenge(s.challenge)}, nil
		}
		payload, err := a2s.EncodePlayers(s.cfg.Players, s.cfg.AppID)
		if err != nil {
			return nil, err
		}
		return s.frame(payload)

	case 0x56:
		if !s.validToken(body[1:]) {
			return [][]byte{Challenge(s.challenge)}, nil
		}
		payload, err := a2s.EncodeRules(s.cfg.Rules)
		if err != nil {
			return nil, err
		}
		return s.frame(payload)

	default:
		return nil, fmt.Errorf("fake: unknown query 0x%02x", body[0])
	}
}

func (s *Server) validToken(token []byte) bool {
	return len(token) == 4 && int32(binary.LittleEndian.Uint32(token)) == s.challenge
}

// frame picks single or multi-packet framing for payload.
func (s *Server) frame(payload []byte) ([][]byte, error) {
	if !s.cfg.Compress && len(payload)+4 <= s.cfg.SwitchSize {
		return [][]byte{Single(payload)}, nil
	}

	return Split(payload, s.nextID.Add(1), s.cfg.SwitchSize, s.cfg.Compress)
}
