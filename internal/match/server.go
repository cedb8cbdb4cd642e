package match

import (
	"errors"
	"log/slog"
	"net"

	"github.com/tacgo/tacgo/internal/model"
	"github.com/tacgo/tacgo/internal/protocol"
	"github.com/tacgo/tacgo/internal/session"
)

// Server ties a Dispatcher to the client registry that every accepted
// connection is registered into and reaped from, and to the match-history
// sink every session constructed here shares.
type Server struct {
	Dispatcher *Dispatcher
	Clients    *session.Registry
	History    *model.History
}

// NewServer builds a Server over the given registries and history sink.
// history may be nil to disable match-history recording.
func NewServer(clients *session.Registry, dispatcher *Dispatcher, history *model.History) *Server {
	return &Server{Dispatcher: dispatcher, Clients: clients, History: history}
}

// HandleConn runs the session loop for one accepted connection: register
// with the client registry (closing the socket outright on capacity
// failure), repeatedly dispatch inbound packets until receive fails, then
// best-effort logout and unregister.
func (srv *Server) HandleConn(conn net.Conn) {
	s := session.New(conn, srv.History)

	if err := srv.Clients.Register(s); err != nil {
		slog.Warn("connection rejected", "remote", conn.RemoteAddr(), "err", err)
		_ = conn.Close()
		return
	}
	defer srv.Clients.Unregister(s)
	defer conn.Close()

	for {
		h, payload, err := protocol.ReadPacket(conn)
		if err != nil {
			if !errors.Is(err, protocol.ErrDisconnected) {
				slog.Debug("session receive failed", "remote", conn.RemoteAddr(), "err", err)
			}
			break
		}

		r := srv.Dispatcher.Dispatch(s, h, payload)
		if err := s.Send(r.typ, r.id, r.role, r.payload); err != nil {
			slog.Debug("session reply failed", "remote", conn.RemoteAddr(), "err", err)
			break
		}
	}

	if s.LoggedIn() {
		if err := s.Logout(); err != nil {
			slog.Warn("logout during teardown failed", "remote", conn.RemoteAddr(), "err", err)
		}
	}
}
