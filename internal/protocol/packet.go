// Package protocol implements the wire framing for the tacgo session
// protocol: a fixed 16-byte header (network byte order) followed by an
// optional payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// HeaderSize is the fixed on-wire size of a packet header, in bytes.
const HeaderSize = 16

// Type identifies the kind of packet carried by a header.
type Type uint8

// Client→server packet types.
const (
	TypeNone    Type = 0
	TypeLogin   Type = 1
	TypeUsers   Type = 2
	TypeInvite  Type = 3
	TypeRevoke  Type = 4
	TypeAccept  Type = 5
	TypeDecline Type = 6
	TypeMove    Type = 7
	TypeResign  Type = 8
)

// Server→client synchronous replies.
const (
	TypeAck  Type = 9
	TypeNack Type = 10
)

// Server→client asynchronous notifications.
const (
	TypeInvited  Type = 11
	TypeRevoked  Type = 12
	TypeAccepted Type = 13
	TypeDeclined Type = 14
	TypeMoved    Type = 15
	TypeResigned Type = 16
	TypeEnded    Type = 17
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeLogin:
		return "LOGIN"
	case TypeUsers:
		return "USERS"
	case TypeInvite:
		return "INVITE"
	case TypeRevoke:
		return "REVOKE"
	case TypeAccept:
		return "ACCEPT"
	case TypeDecline:
		return "DECLINE"
	case TypeMove:
		return "MOVE"
	case TypeResign:
		return "RESIGN"
	case TypeAck:
		return "ACK"
	case TypeNack:
		return "NACK"
	case TypeInvited:
		return "INVITED"
	case TypeRevoked:
		return "REVOKED"
	case TypeAccepted:
		return "ACCEPTED"
	case TypeDeclined:
		return "DECLINED"
	case TypeMoved:
		return "MOVED"
	case TypeResigned:
		return "RESIGNED"
	case TypeEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}

// Role identifies a side in a game: the first mover, the second mover, or
// the sentinel NONE used where no game role applies.
type Role uint8

const (
	RoleNone   Role = 0
	RoleFirst  Role = 1
	RoleSecond Role = 2
)

// Other returns the opposing role. RoleNone maps to itself.
func (r Role) Other() Role {
	switch r {
	case RoleFirst:
		return RoleSecond
	case RoleSecond:
		return RoleFirst
	default:
		return RoleNone
	}
}

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "NONE"
	case RoleFirst:
		return "FIRST"
	case RoleSecond:
		return "SECOND"
	default:
		return fmt.Sprintf("ROLE(%d)", uint8(r))
	}
}

// Header is the fixed 16-byte packet header carried at the front of
// every frame.
type Header struct {
	Type  Type
	ID    uint8
	Role  Role
	Size  uint16
	TsSec uint32
	TsNsc uint32
}

// Errors surfaced by the codec layer.
var (
	ErrInvalidPacket = errors.New("protocol: invalid packet")
	ErrDisconnected  = errors.New("protocol: disconnected")
	ErrPeerGone      = errors.New("protocol: peer gone")
)

// Encode writes h in network byte order into buf[:HeaderSize].
func (h Header) Encode(buf []byte) {
	_ = buf[HeaderSize-1]
	buf[0] = byte(h.Type)
	buf[1] = h.ID
	buf[2] = byte(h.Role)
	buf[3] = 0
	binary.BigEndian.PutUint16(buf[4:6], h.Size)
	binary.BigEndian.PutUint16(buf[6:8], 0)
	binary.BigEndian.PutUint32(buf[8:12], h.TsSec)
	binary.BigEndian.PutUint32(buf[12:16], h.TsNsc)
}

// DecodeHeader parses a 16-byte network-order header from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("decode header: %w", ErrInvalidPacket)
	}
	return Header{
		Type:  Type(buf[0]),
		ID:    buf[1],
		Role:  Role(buf[2]),
		Size:  binary.BigEndian.Uint16(buf[4:6]),
		TsSec: binary.BigEndian.Uint32(buf[8:12]),
		TsNsc: binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// stamp fills in the sender timestamp fields from wall-clock time.
func stamp(h Header) Header {
	now := time.Now()
	h.TsSec = uint32(now.Unix())
	h.TsNsc = uint32(now.Nanosecond())
	return h
}

// WritePacket serializes h (after stamping its timestamp) and payload to w
// as a single framed packet. It is short-write safe: partial writes are
// looped until the whole frame is on the wire or an error occurs.
//
// WritePacket does not itself serialize concurrent callers; the caller
// (normally a client session) must hold its write-mutex across this call.
func WritePacket(w io.Writer, h Header, payload []byte) error {
	if int(h.Size) != len(payload) {
		return fmt.Errorf("write packet: size/payload mismatch: %w", ErrInvalidPacket)
	}

	h = stamp(h)

	buf := make([]byte, HeaderSize+len(payload))
	h.Encode(buf)
	copy(buf[HeaderSize:], payload)

	if err := writeFull(w, buf); err != nil {
		return fmt.Errorf("write packet: %w", translateWriteErr(err))
	}
	return nil
}

// writeFull loops Write until buf is fully written or an error occurs.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
		buf = buf[n:]
	}
	return nil
}

// translateWriteErr maps a write failure to ErrPeerGone: "peer closed
// (or broke) while we were writing".
func translateWriteErr(_ error) error {
	return ErrPeerGone
}

// ReadPacket reads exactly one framed packet from r: the 16-byte header,
// then Size payload bytes (nil if Size is zero). EOF or a short read at any
// point is reported as ErrDisconnected.
func ReadPacket(r io.Reader) (Header, []byte, error) {
	var hbuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		return Header{}, nil, fmt.Errorf("read header: %w", ErrDisconnected)
	}

	h, err := DecodeHeader(hbuf[:])
	if err != nil {
		return Header{}, nil, err
	}

	if h.Size == 0 {
		return h, nil, nil
	}

	payload := make([]byte, h.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, fmt.Errorf("read payload: %w", ErrDisconnected)
	}
	return h, payload, nil
}
