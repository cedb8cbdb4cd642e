package session

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tacgo/tacgo/internal/model"
	"github.com/tacgo/tacgo/internal/protocol"
	"github.com/tacgo/tacgo/internal/ttt"
)

// Session is the per-connection state for one client: the socket, login
// state, the client's invitation list (keyed by its own locally-assigned
// id), and the mutex serializing outbound writes.
type Session struct {
	conn    net.Conn
	history *model.History // shared match-history sink; nil disables recording

	writeMu sync.Mutex // serializes Send calls; taken independently of mu

	mu          sync.Mutex
	loggedIn    bool
	player      *model.Player
	invitations map[uint8]*Invitation
}

// New wraps conn in a fresh, not-yet-logged-in Session. history is the
// shared match-history sink every finished game bound to this session is
// recorded into; nil disables recording.
func New(conn net.Conn, history *model.History) *Session {
	return &Session{
		conn:        conn,
		history:     history,
		invitations: make(map[uint8]*Invitation),
	}
}

// Conn returns the underlying connection, for the receive loop.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Player returns the player this session is logged in as, or nil.
func (s *Session) Player() *model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// LoggedIn reports whether the session has completed login.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// shutdownRead half-closes the read side of the connection so the
// session's receive loop observes EOF. Falls back
// to a full Close on connection types that don't support a half-close.
func (s *Session) shutdownRead() {
	type readCloser interface{ CloseRead() error }
	if rc, ok := s.conn.(readCloser); ok {
		_ = rc.CloseRead()
		return
	}
	_ = s.conn.Close()
}

// Send serializes one packet to this session's peer under the
// write-mutex, so that writes on a single session never interleave. Errors are returned uninterpreted; callers that
// are notifying a peer (as opposed to replying to the requester) should log
// and swallow them.
func (s *Session) Send(typ protocol.Type, id uint8, role protocol.Role, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	h := protocol.Header{Type: typ, ID: id, Role: role, Size: uint16(len(payload))}
	return protocol.WritePacket(s.conn, h, payload)
}

// notify sends a best-effort notification to a peer, logging and
// swallowing any I/O error.
func notify(peer *Session, typ protocol.Type, id uint8, role protocol.Role, payload []byte) {
	if err := peer.Send(typ, id, role, payload); err != nil {
		slog.Warn("notify failed", "type", typ, "err", err)
	}
}

// login marks the session logged in as player. Fails if already logged in.
// Cross-session name uniqueness is enforced by the caller (Registry.Login),
// which holds the registry lock across this call.
func (s *Session) login(player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedIn {
		return fmt.Errorf("login: %w", ErrAlreadyLoggedIn)
	}
	s.loggedIn = true
	s.player = player
	return nil
}

// smallestFreeID returns the smallest non-negative integer not already a
// key of m.
func smallestFreeID(m map[uint8]*Invitation) uint8 {
	for id := uint8(0); ; id++ {
		if _, used := m[id]; !used {
			return id
		}
	}
}

// addInvitation inserts inv into this session's list under its own
// smallest-free local id, and returns that id.
func (s *Session) addInvitation(inv *Invitation) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := smallestFreeID(s.invitations)
	s.invitations[id] = inv
	return id
}

// invitation returns the invitation at localID, if any.
func (s *Session) invitation(localID uint8) (*Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[localID]
	return inv, ok
}

// removeInvitation drops the entry at localID, if present.
func (s *Session) removeInvitation(localID uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invitations, localID)
}

// invitationIDs snapshots the current set of local invitation ids, for
// Logout's cleanup walk.
func (s *Session) invitationIDs() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint8, 0, len(s.invitations))
	for id := range s.invitations {
		ids = append(ids, id)
	}
	return ids
}

// MakeInvitation creates an OPEN invitation from s to target, with s
// playing sourceRole and target playing the opposite role, adds it to both
// sessions' lists, and notifies target. Returns s's own local id for the
// new invitation.
func (s *Session) MakeInvitation(target *Session, sourceRole protocol.Role) (uint8, error) {
	if target == s {
		return 0, fmt.Errorf("make invitation: %w", ErrWrongSide)
	}
	if !target.LoggedIn() {
		return 0, fmt.Errorf("make invitation: %w", ErrNotLoggedIn)
	}

	targetRole := sourceRole.Other()
	inv := NewInvitation(s, target, sourceRole, targetRole)

	sourceID := s.addInvitation(inv)
	targetID := target.addInvitation(inv)
	inv.SourceID = sourceID
	inv.TargetID = targetID

	me := s.Player()
	var payload []byte
	if me != nil {
		payload = []byte(me.Name())
	}
	notify(target, protocol.TypeInvited, targetID, targetRole, payload)

	return sourceID, nil
}

// RevokeInvitation closes an OPEN invitation that s originated, and
// notifies the target. Fails unless s is the source of an OPEN invitation
// known under localID.
func (s *Session) RevokeInvitation(localID uint8) error {
	inv, ok := s.invitation(localID)
	if !ok {
		return fmt.Errorf("revoke invitation: %w", ErrUnknownID)
	}
	if inv.Source != s {
		return fmt.Errorf("revoke invitation: %w", ErrWrongSide)
	}
	if inv.State() != StateOpen {
		return fmt.Errorf("revoke invitation: %w", ErrWrongState)
	}
	if err := inv.Close(protocol.RoleNone); err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}

	s.removeInvitation(inv.SourceID)
	inv.Target.removeInvitation(inv.TargetID)

	notify(inv.Target, protocol.TypeRevoked, inv.TargetID, protocol.RoleNone, nil)
	return nil
}

// DeclineInvitation closes an OPEN invitation that s is the target of, and
// notifies the source.
func (s *Session) DeclineInvitation(localID uint8) error {
	inv, ok := s.invitation(localID)
	if !ok {
		return fmt.Errorf("decline invitation: %w", ErrUnknownID)
	}
	if inv.Target != s {
		return fmt.Errorf("decline invitation: %w", ErrWrongSide)
	}
	if inv.State() != StateOpen {
		return fmt.Errorf("decline invitation: %w", ErrWrongState)
	}
	if err := inv.Close(protocol.RoleNone); err != nil {
		return fmt.Errorf("decline invitation: %w", err)
	}

	s.removeInvitation(inv.TargetID)
	inv.Source.removeInvitation(inv.SourceID)

	notify(inv.Source, protocol.TypeDeclined, inv.SourceID, protocol.RoleNone, nil)
	return nil
}

// AcceptInvitation accepts an OPEN invitation that s is the target of,
// creating its Game. It notifies the source, and returns the payload the
// caller (the session loop) should attach to s's own ACK: empty when the
// source moves first (the source's ACCEPTED notification already carries
// the board), or the rendered initial board when s itself moves first.
func (s *Session) AcceptInvitation(localID uint8) (string, error) {
	inv, ok := s.invitation(localID)
	if !ok {
		return "", fmt.Errorf("accept invitation: %w", ErrUnknownID)
	}
	if inv.Target != s {
		return "", fmt.Errorf("accept invitation: %w", ErrWrongSide)
	}

	game, err := inv.Accept()
	if err != nil {
		return "", fmt.Errorf("accept invitation: %w", err)
	}

	state := game.Render()
	if inv.SourceRole == protocol.RoleFirst {
		notify(inv.Source, protocol.TypeAccepted, inv.SourceID, protocol.RoleNone, []byte(state))
		return "", nil
	}
	notify(inv.Source, protocol.TypeAccepted, inv.SourceID, protocol.RoleNone, nil)
	return state, nil
}

// MakeMove applies a move to the game bound to the invitation at localID.
// On success, it notifies the opponent, and — if the move ended the game —
// sends ENDED to both sides, removes the invitation from both lists, and
// posts the Elo result.
func (s *Session) MakeMove(localID uint8, moveStr string) error {
	inv, ok := s.invitation(localID)
	if !ok {
		return fmt.Errorf("make move: %w", ErrUnknownID)
	}
	game := inv.Game()
	if game == nil || inv.State() != StateAccepted {
		return fmt.Errorf("make move: %w", ErrNoGame)
	}

	myRole := inv.RoleFor(s)
	move, err := ttt.ParseMove(myRole, moveStr)
	if err != nil {
		return fmt.Errorf("make move: %w", err)
	}
	if err := game.Apply(move); err != nil {
		return fmt.Errorf("make move: %w", err)
	}

	opponent := inv.Peer(s)
	rendered := game.Render()
	notify(opponent, protocol.TypeMoved, inv.IDFor(opponent), protocol.RoleNone, []byte(rendered))

	if game.Terminated() {
		winner := game.Winner()
		endGame(inv, winner)
	}
	return nil
}

// ResignGame resigns the game bound to the invitation at localID on s's
// behalf: closes the invitation with s's role losing, notifies the
// opponent of the resignation and then both sides of the end, removes the
// invitation from both lists, and posts the Elo result.
func (s *Session) ResignGame(localID uint8) error {
	inv, ok := s.invitation(localID)
	if !ok {
		return fmt.Errorf("resign game: %w", ErrUnknownID)
	}
	if inv.Game() == nil || inv.State() != StateAccepted {
		return fmt.Errorf("resign game: %w", ErrNoGame)
	}

	myRole := inv.RoleFor(s)
	if err := inv.Close(myRole); err != nil {
		return fmt.Errorf("resign game: %w", err)
	}

	opponent := inv.Peer(s)
	notify(opponent, protocol.TypeResigned, inv.IDFor(opponent), protocol.RoleNone, nil)

	s.removeInvitation(inv.IDFor(s))
	opponent.removeInvitation(inv.IDFor(opponent))

	notify(s, protocol.TypeEnded, inv.IDFor(s), myRole.Other(), nil)
	notify(opponent, protocol.TypeEnded, inv.IDFor(opponent), myRole.Other(), nil)

	postElo(inv, myRole.Other())
	return nil
}

// endGame is the shared tail of MakeMove when a move ends the game:
// remove the invitation from both lists, notify both sides, post Elo.
func endGame(inv *Invitation, winner protocol.Role) {
	source, target := inv.Source, inv.Target
	source.removeInvitation(inv.SourceID)
	target.removeInvitation(inv.TargetID)

	notify(source, protocol.TypeEnded, inv.SourceID, winner, nil)
	notify(target, protocol.TypeEnded, inv.TargetID, winner, nil)

	postElo(inv, winner)
}

// postElo maps a game's winning role to the (source, target, r) triple
// model.PostResult expects: the Elo call is always ordered
// (source player, target player, result). It then records the finished
// game into whichever side carries a non-nil history sink.
func postElo(inv *Invitation, winner protocol.Role) {
	sourcePlayer := inv.Source.Player()
	targetPlayer := inv.Target.Player()
	if sourcePlayer == nil || targetPlayer == nil {
		return
	}

	var r model.Result
	switch winner {
	case inv.SourceRole:
		r = model.ResultFirstWon
	case inv.TargetRole:
		r = model.ResultSecondWon
	default:
		r = model.ResultDraw
	}
	sourceAfter, targetAfter := model.PostResult(sourcePlayer, targetPlayer, r)
	recordHistory(inv, sourcePlayer, targetPlayer, sourceAfter, targetAfter, winner)
}

// recordHistory appends a HistoryEntry for a finished game to whichever
// side's history sink is set (both sides of an invitation are constructed
// against the same server-wide sink, so either suffices). Entries are
// keyed by game role rather than source/target, matching the FIRST/SECOND
// orientation the wire protocol and the users listing use elsewhere.
func recordHistory(inv *Invitation, sourcePlayer, targetPlayer *model.Player, sourceAfter, targetAfter float64, winner protocol.Role) {
	h := inv.Source.history
	if h == nil {
		h = inv.Target.history
	}
	if h == nil {
		return
	}

	firstPlayer, secondPlayer := sourcePlayer, targetPlayer
	firstAfter, secondAfter := sourceAfter, targetAfter
	if inv.SourceRole == protocol.RoleSecond {
		firstPlayer, secondPlayer = targetPlayer, sourcePlayer
		firstAfter, secondAfter = targetAfter, sourceAfter
	}

	h.Record(model.HistoryEntry{
		First:             firstPlayer.Name(),
		Second:            secondPlayer.Name(),
		Winner:            winner,
		FirstRatingAfter:  firstAfter,
		SecondRatingAfter: secondAfter,
		EndedAt:           time.Now(),
	})
}

// Logout ends a login session: every invitation still in the list is wound
// down (an active game is resigned; an OPEN invitation is revoked if s
// originated it, declined otherwise), then the player reference is
// dropped. The walk releases s.mu before calling into per-invitation
// operations (which re-acquire it), so a concurrent Logout re-entry or a
// peer's own cleanup cannot deadlock against it.
func (s *Session) Logout() error {
	s.mu.Lock()
	if !s.loggedIn {
		s.mu.Unlock()
		return fmt.Errorf("logout: %w", ErrNotLoggedIn)
	}
	s.mu.Unlock()

	for _, id := range s.invitationIDs() {
		inv, ok := s.invitation(id)
		if !ok {
			continue
		}
		switch {
		case inv.State() == StateAccepted:
			_ = s.ResignGame(id)
		case inv.Source == s:
			_ = s.RevokeInvitation(id)
		default:
			_ = s.DeclineInvitation(id)
		}
	}

	s.mu.Lock()
	s.player = nil
	s.loggedIn = false
	s.mu.Unlock()
	return nil
}
