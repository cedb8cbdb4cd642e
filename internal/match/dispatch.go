// Package match implements the session loop: one logical task per
// connection, dispatching inbound packets to client-session operations and
// replying ACK or NACK.
package match

import (
	"strconv"
	"strings"

	"github.com/tacgo/tacgo/internal/model"
	"github.com/tacgo/tacgo/internal/protocol"
	"github.com/tacgo/tacgo/internal/session"
)

// Dispatcher holds the process-wide registries a session loop dispatches
// against. One Dispatcher is constructed per server and shared by every
// connection.
type Dispatcher struct {
	Clients *session.Registry
	Players *model.Registry
}

// NewDispatcher builds a Dispatcher over the given registries.
func NewDispatcher(clients *session.Registry, players *model.Registry) *Dispatcher {
	return &Dispatcher{Clients: clients, Players: players}
}

// reply is the server's synchronous answer to one inbound packet.
type reply struct {
	typ     protocol.Type
	id      uint8
	role    protocol.Role
	payload []byte
}

func ack(id uint8, role protocol.Role, payload []byte) reply {
	return reply{typ: protocol.TypeAck, id: id, role: role, payload: payload}
}

func nack(id uint8, role protocol.Role) reply {
	return reply{typ: protocol.TypeNack, id: id, role: role}
}

// Dispatch handles one inbound packet from s and returns the synchronous
// reply to send back. Every operation error collapses to NACK: none of
// them are fatal to the session loop.
func (d *Dispatcher) Dispatch(s *session.Session, h protocol.Header, payload []byte) reply {
	if h.Type != protocol.TypeLogin && !s.LoggedIn() {
		return nack(h.ID, h.Role)
	}

	switch h.Type {
	case protocol.TypeLogin:
		return d.handleLogin(s, h, payload)
	case protocol.TypeUsers:
		return d.handleUsers(h)
	case protocol.TypeInvite:
		return d.handleInvite(s, h, payload)
	case protocol.TypeRevoke:
		if err := s.RevokeInvitation(h.ID); err != nil {
			return nack(h.ID, h.Role)
		}
		return ack(h.ID, h.Role, nil)
	case protocol.TypeDecline:
		if err := s.DeclineInvitation(h.ID); err != nil {
			return nack(h.ID, h.Role)
		}
		return ack(h.ID, h.Role, nil)
	case protocol.TypeAccept:
		state, err := s.AcceptInvitation(h.ID)
		if err != nil {
			return nack(h.ID, h.Role)
		}
		return ack(h.ID, h.Role, []byte(state))
	case protocol.TypeMove:
		if err := s.MakeMove(h.ID, string(payload)); err != nil {
			return nack(h.ID, h.Role)
		}
		return ack(h.ID, h.Role, nil)
	case protocol.TypeResign:
		if err := s.ResignGame(h.ID); err != nil {
			return nack(h.ID, h.Role)
		}
		return ack(h.ID, h.Role, nil)
	default:
		return nack(h.ID, h.Role)
	}
}

func (d *Dispatcher) handleLogin(s *session.Session, h protocol.Header, payload []byte) reply {
	if s.LoggedIn() {
		return nack(h.ID, h.Role)
	}
	if err := d.Clients.Login(s, d.Players, string(payload)); err != nil {
		return nack(h.ID, h.Role)
	}
	return ack(h.ID, h.Role, nil)
}

func (d *Dispatcher) handleUsers(h protocol.Header) reply {
	players := d.Clients.AllPlayers()
	var b strings.Builder
	for _, p := range players {
		b.WriteString(p.Name())
		b.WriteByte('\t')
		b.WriteString(formatRating(p.Rating()))
		b.WriteByte('\n')
	}
	return ack(h.ID, h.Role, []byte(b.String()))
}

func (d *Dispatcher) handleInvite(s *session.Session, h protocol.Header, payload []byte) reply {
	targetRole := h.Role
	if targetRole != protocol.RoleFirst && targetRole != protocol.RoleSecond {
		return nack(h.ID, h.Role)
	}
	target := d.Clients.Lookup(string(payload))
	if target == nil {
		return nack(h.ID, h.Role)
	}

	sourceID, err := s.MakeInvitation(target, targetRole.Other())
	if err != nil {
		return nack(h.ID, h.Role)
	}
	return ack(sourceID, targetRole.Other(), nil)
}

// formatRating renders a rating as a truncated decimal integer, matching
// the users-listing encoding.
func formatRating(r float64) string {
	return strconv.FormatInt(int64(r), 10)
}
