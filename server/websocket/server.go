// Package websocket implements the relay's connection gate and the
// per-connection read/write pumps.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/couchparty/relay/liveness"
	"github.com/couchparty/relay/party"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 32768
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	defaultSendBufferSize = 256
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	// PartyService resolves a party identifier for the connection gate.
	PartyService interface {
		Party(partyID string) (*party.Party, error)
	}

	// Monitor tracks live connections for the liveness sweep.
	Monitor interface {
		Add(c liveness.Conn)
		Remove(c liveness.Conn)
	}

	Config struct {
		Logger       *zerolog.Logger
		PartyService PartyService
		Monitor      Monitor
		ListenAddr   string
	}

	Server struct {
		svc     PartyService
		monitor Monitor
		ws      *websocket.Upgrader
		*http.Server

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:  cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:     cfg.PartyService,
		monitor: cfg.Monitor,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.connect)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

// connect is the connection gate: both identifiers must be present and
// the party must exist before any protocol state is created.
func (srv *Server) connect(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	partyID := r.URL.Query().Get("partyId")
	if userID == "" || partyID == "" {
		srv.logger.Debug().Msg("user id or party id not provided")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p, err := srv.svc.Party(partyID)
	if err != nil {
		srv.logger.Debug().Err(err).
			Str("partyID", partyID).
			Msg("party not found")
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := newSession(conn, userID, partyID, &srv.logger)
	member := party.NewMember(userID, sess)

	srv.monitor.Add(sess)
	go sess.writePump()
	go srv.readLoop(sess, p, member)

	sess.logger.Debug().Msg("connection established")
}

func (srv *Server) readLoop(sess *session, p *party.Party, member *party.Member) {
	defer func() {
		srv.monitor.Remove(sess)
		p.Detach(member)
		sess.Terminate()
		sess.logger.Debug().Msg("connection closed")
	}()

	sess.conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	sess.conn.SetPongHandler(func(string) error {
		sess.logger.Trace().Msg("got pong")
		sess.SetAlive(true)
		return nil
	})
	sess.SetAlive(true)

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				sess.logger.Debug().Msg("connection closed by client")
			} else {
				sess.logger.Warn().Err(err).Msg("receive failed")
			}
			return
		}
		sess.handleFrame(p, member, raw)
	}
}
