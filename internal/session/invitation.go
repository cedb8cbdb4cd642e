package session

import (
	"fmt"
	"sync"

	"github.com/tacgo/tacgo/internal/protocol"
	"github.com/tacgo/tacgo/internal/ttt"
)

// State is the invitation's place in its OPEN → ACCEPTED → CLOSED state
// machine. Once CLOSED, an invitation never transitions again.
type State uint8

const (
	StateOpen State = iota
	StateAccepted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateAccepted:
		return "ACCEPTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Invitation is shared by exactly two client sessions: source and target.
// SourceID and TargetID are the local invitation ids each side assigned
// it; every notification to a side addresses it by that side's own id.
type Invitation struct {
	Source     *Session
	Target     *Session
	SourceRole protocol.Role
	TargetRole protocol.Role

	// SourceID, TargetID are set once by Session.MakeInvitation, from the
	// ids addInvitation assigns on each side; they never change afterwards.
	SourceID, TargetID uint8

	mu    sync.Mutex
	state State
	game  *ttt.Game
}

// NewInvitation constructs an OPEN invitation between source and target.
// source != target and sourceRole != targetRole are preconditions enforced
// by the caller, Session.MakeInvitation.
func NewInvitation(source, target *Session, sourceRole, targetRole protocol.Role) *Invitation {
	return &Invitation{
		Source:     source,
		Target:     target,
		SourceRole: sourceRole,
		TargetRole: targetRole,
		state:      StateOpen,
	}
}

// State returns the invitation's current state.
func (inv *Invitation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Game returns the invitation's game, or nil if none exists yet.
func (inv *Invitation) Game() *ttt.Game {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.game
}

// Accept transitions OPEN → ACCEPTED, creating the Game. Fails if the
// invitation is not OPEN.
func (inv *Invitation) Accept() (*ttt.Game, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != StateOpen {
		return nil, fmt.Errorf("accept invitation: %w", ErrWrongState)
	}
	inv.game = ttt.Create()
	inv.state = StateAccepted
	return inv.game, nil
}

// Close transitions the invitation to CLOSED. role is NONE when closing an
// OPEN invitation with no game (revoke/decline); it is the resigning side
// when closing an ACCEPTED invitation, in which case the in-progress game
// is resigned with that side losing.
func (inv *Invitation) Close(role protocol.Role) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	switch inv.state {
	case StateOpen:
		if role != protocol.RoleNone {
			return fmt.Errorf("close invitation: %w", ErrWrongState)
		}
	case StateAccepted:
		if role == protocol.RoleNone {
			return fmt.Errorf("close invitation: %w", ErrWrongState)
		}
		if err := inv.game.Resign(role); err != nil {
			return fmt.Errorf("close invitation: %w", err)
		}
	default:
		return fmt.Errorf("close invitation: %w", ErrWrongState)
	}

	inv.state = StateClosed
	return nil
}

// IDFor returns the local invitation id belonging to side, used to address
// a notification to that side.
func (inv *Invitation) IDFor(side *Session) uint8 {
	if side == inv.Source {
		return inv.SourceID
	}
	return inv.TargetID
}

// RoleFor returns the game role belonging to side.
func (inv *Invitation) RoleFor(side *Session) protocol.Role {
	if side == inv.Source {
		return inv.SourceRole
	}
	return inv.TargetRole
}

// Peer returns the other side of the invitation from side's perspective.
func (inv *Invitation) Peer(side *Session) *Session {
	if side == inv.Source {
		return inv.Target
	}
	return inv.Source
}
