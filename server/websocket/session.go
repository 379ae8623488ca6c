package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchparty/relay/party"
	"github.com/couchparty/relay/protocol"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrSendBufferFull = errors.New("send buffer is full")

// session owns one client's transport. Outbound frames go through a
// buffered channel drained by the write pump; control frames (ping,
// close) use WriteControl, which gorilla allows concurrently.
type session struct {
	conn      *websocket.Conn
	send      chan []byte
	quit      chan struct{}
	alive     atomic.Bool
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newSession(conn *websocket.Conn, userID, partyID string, logger *zerolog.Logger) *session {
	return &session{
		conn: conn,
		send: make(chan []byte, defaultSendBufferSize),
		quit: make(chan struct{}),
		logger: logger.With().
			Str("connID", uuid.NewString()).
			Str("userID", userID).
			Str("partyID", partyID).
			Logger(),
	}
}

// Send queues one outbound frame. A full buffer means the client
// stopped draining; the error makes the party evict this member.
func (s *session) Send(data []byte) error {
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *session) Close() error {
	s.Terminate()
	return nil
}

// Terminate asks the write pump to stop. The pump flushes frames that
// are already queued, performs the close handshake and releases the
// transport. Safe to call from any goroutine, any number of times.
func (s *session) Terminate() {
	s.closeOnce.Do(func() { close(s.quit) })
}

func (s *session) Alive() bool { return s.alive.Load() }

func (s *session) SetAlive(alive bool) { s.alive.Store(alive) }

func (s *session) Ping() error {
	s.logger.Trace().Msg("ping sent")
	return s.conn.WriteControl(websocket.PingMessage, nil,
		time.Now().Add(defaultWebSocketWriteDeadline))
}

func (s *session) writePump() {
	defer func() {
		deadline := time.Now().Add(defaultWebSocketCloseWriteDeadline)
		if err := s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
			s.logger.Debug().Err(err).Msg("failed to write close frame")
		}
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("failed to close connection")
		}
	}()

	for {
		select {
		case <-s.quit:
			// Flush frames queued before the terminate request, so a
			// final broadcast still reaches the client.
			for {
				select {
				case msg := <-s.send:
					if !s.writeFrame(msg) {
						return
					}
				default:
					return
				}
			}
		case msg := <-s.send:
			if !s.writeFrame(msg) {
				s.Terminate()
				return
			}
		}
	}
}

func (s *session) writeFrame(msg []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
		s.logger.Error().Err(err).Msg("failed to set write deadline")
		return false
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write outgoing message")
		return false
	}
	return true
}

// handleFrame decodes one inbound frame and routes it. Malformed and
// unrecognized frames are logged and discarded; the connection stays
// open.
func (s *session) handleFrame(p *party.Party, member *party.Member, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownMethod) {
			var loose map[string]any
			_ = json.Unmarshal(raw, &loose)
			s.logger.Debug().Err(err).
				Str("frame", spew.Sdump(loose)).
				Msg("unrecognized message ignored")
		} else {
			s.logger.Warn().Err(err).Msg("failed to decode incoming message")
		}
		return
	}

	if _, ok := msg.(protocol.KeepAlive); ok {
		s.SetAlive(true)
		return
	}

	p.Handle(member, msg, raw)
}
