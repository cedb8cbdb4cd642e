// Package ttt implements the Tic-Tac-Toe rules engine: board state, move
// parsing, win detection, and the canonical text rendering of a board.
package ttt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tacgo/tacgo/internal/protocol"
)

// Errors returned by move parsing and application.
var (
	ErrInvalidMove = errors.New("ttt: invalid move")
	ErrIllegalMove = errors.New("ttt: illegal move")
)

// Cell is the mark occupying a board square.
type Cell uint8

const (
	CellEmpty Cell = iota
	CellFirst
	CellSecond
)

func (c Cell) glyph() byte {
	switch c {
	case CellFirst:
		return 'X'
	case CellSecond:
		return 'O'
	default:
		return ' '
	}
}

func cellForRole(r protocol.Role) Cell {
	switch r {
	case protocol.RoleFirst:
		return CellFirst
	case protocol.RoleSecond:
		return CellSecond
	default:
		return CellEmpty
	}
}

// Move is a single placement: cell index 0-8, and (optionally) the role the
// player claims to be moving as.
type Move struct {
	Cell int
	Role protocol.Role
}

// Game is a single 3x3 Tic-Tac-Toe match. Zero value is not usable; use
// Create. All methods are safe for concurrent use.
type Game struct {
	mu         sync.Mutex
	board      [9]Cell
	turn       protocol.Role // side to move
	turnCount  int
	terminated bool
	winner     protocol.Role
}

// Create returns a new game with an empty board and FIRST to move.
func Create() *Game {
	return &Game{turn: protocol.RoleFirst}
}

// ParseMove parses a move string in one of the two forms the protocol
// accepts: "<d>" (a bare digit 1-9), or "<d>-X"/"<d>-O" (digit plus an
// explicit side marker). If role is non-NONE, it must match the side to
// move implied by the string, when present.
func ParseMove(role protocol.Role, s string) (Move, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Move{}, fmt.Errorf("parse move %q: %w", s, ErrInvalidMove)
	}

	digits := s
	var side protocol.Role
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		digits = s[:idx]
		marker := s[idx+1:]
		switch marker {
		case "X":
			side = protocol.RoleFirst
		case "O":
			side = protocol.RoleSecond
		default:
			return Move{}, fmt.Errorf("parse move %q: %w", s, ErrInvalidMove)
		}
	}

	if len(digits) != 1 || digits[0] < '1' || digits[0] > '9' {
		return Move{}, fmt.Errorf("parse move %q: %w", s, ErrInvalidMove)
	}
	d, err := strconv.Atoi(digits)
	if err != nil {
		return Move{}, fmt.Errorf("parse move %q: %w", s, ErrInvalidMove)
	}

	if side != protocol.RoleNone && role != protocol.RoleNone && side != role {
		return Move{}, fmt.Errorf("parse move %q: %w", s, ErrInvalidMove)
	}

	effective := role
	if effective == protocol.RoleNone {
		effective = side
	}
	return Move{Cell: d - 1, Role: effective}, nil
}

// Unparse renders m back to its canonical "<d>" wire form, used to verify
// the parse/unparse round trip invariant.
func Unparse(m Move) string {
	return strconv.Itoa(m.Cell + 1)
}

// Apply places a mark for the mover implied by the game's current side to
// move. The move's Role, if set, must match that side. Rejects a non-empty
// cell, a move from the wrong side, or a move on a terminated game.
func (g *Game) Apply(m Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated {
		return fmt.Errorf("apply move: %w", ErrIllegalMove)
	}
	if m.Role != protocol.RoleNone && m.Role != g.turn {
		return fmt.Errorf("apply move: %w", ErrIllegalMove)
	}
	if m.Cell < 0 || m.Cell > 8 {
		return fmt.Errorf("apply move: %w", ErrInvalidMove)
	}
	if g.board[m.Cell] != CellEmpty {
		return fmt.Errorf("apply move: %w", ErrIllegalMove)
	}

	mover := g.turn
	g.board[m.Cell] = cellForRole(mover)
	g.turnCount++
	g.turn = mover.Other()

	if w := winnerOf(g.board); w != protocol.RoleNone {
		g.terminated = true
		g.winner = w
	} else if g.turnCount == 9 {
		g.terminated = true
		g.winner = protocol.RoleNone
	}

	return nil
}

// Resign ends the game with role losing and the other side winning.
// Errors if the game has already terminated.
func (g *Game) Resign(role protocol.Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated {
		return fmt.Errorf("resign: %w", ErrIllegalMove)
	}
	g.terminated = true
	g.winner = role.Other()
	return nil
}

// Winner returns the winning role if the game has terminated, else NONE.
func (g *Game) Winner() protocol.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.terminated {
		return protocol.RoleNone
	}
	return g.winner
}

// Terminated reports whether the game has ended (by win, draw, or resign).
func (g *Game) Terminated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminated
}

// Turn returns the side currently to move.
func (g *Game) Turn() protocol.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turn
}

// winLines enumerates the eight ways to win on a 3x3 board.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

func winnerOf(board [9]Cell) protocol.Role {
	for _, line := range winLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != CellEmpty && a == b && b == c {
			return roleForCell(a)
		}
	}
	return protocol.RoleNone
}

func roleForCell(c Cell) protocol.Role {
	switch c {
	case CellFirst:
		return protocol.RoleFirst
	case CellSecond:
		return protocol.RoleSecond
	default:
		return protocol.RoleNone
	}
}

// Render returns the canonical board text: three rows of three cells
// separated by "|", dash separator lines between rows, and a trailing
// "It's <X|O>'s turn" line. The side named on the turn line is the current
// side to move; a terminated game still reports the side that would have
// moved next.
func (g *Game) Render() string {
	g.mu.Lock()
	board := g.board
	turn := g.turn
	g.mu.Unlock()

	var b strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			b.WriteString("-----\n")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				b.WriteByte('|')
			}
			b.WriteByte(board[row*3+col].glyph())
		}
		b.WriteByte('\n')
	}
	b.WriteString("It's ")
	b.WriteByte(roleGlyph(turn))
	b.WriteString("'s turn\n")
	return b.String()
}

func roleGlyph(r protocol.Role) byte {
	switch r {
	case protocol.RoleFirst:
		return 'X'
	case protocol.RoleSecond:
		return 'O'
	default:
		return ' '
	}
}
