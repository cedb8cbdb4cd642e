package match

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacgo/tacgo/internal/model"
	"github.com/tacgo/tacgo/internal/protocol"
	"github.com/tacgo/tacgo/internal/session"
)

func newDispatcher() (*Dispatcher, *session.Registry) {
	clients := session.NewRegistry(0)
	players := model.NewRegistry()
	return NewDispatcher(clients, players), clients
}

// newTestSession registers a fresh session and returns it alongside a
// channel of every packet notified to it, so tests can observe the
// recipient-local id a notification carries without reaching into session
// internals.
func newTestSession(t *testing.T, clients *session.Registry) (*session.Session, <-chan protocol.Header) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { _ = local.Close(); _ = remote.Close() })

	notifications := make(chan protocol.Header, 16)
	go func() {
		for {
			h, _, err := protocol.ReadPacket(remote)
			if err != nil {
				close(notifications)
				return
			}
			notifications <- h
		}
	}()

	s := session.New(local, nil)
	require.NoError(t, clients.Register(s))
	return s, notifications
}

func recvHeader(t *testing.T, ch <-chan protocol.Header) protocol.Header {
	t.Helper()
	select {
	case h := <-ch:
		return h
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return protocol.Header{}
	}
}

func TestDispatchLoginThenDuplicateNack(t *testing.T) {
	d, clients := newDispatcher()
	a, _ := newTestSession(t, clients)
	b, _ := newTestSession(t, clients)

	r := d.Dispatch(a, protocol.Header{Type: protocol.TypeLogin}, []byte("alice"))
	assert.Equal(t, protocol.TypeAck, r.typ)

	r = d.Dispatch(b, protocol.Header{Type: protocol.TypeLogin}, []byte("alice"))
	assert.Equal(t, protocol.TypeNack, r.typ)
}

func TestDispatchBeforeLoginNacksEverything(t *testing.T) {
	d, clients := newDispatcher()
	a, _ := newTestSession(t, clients)

	r := d.Dispatch(a, protocol.Header{Type: protocol.TypeUsers}, nil)
	assert.Equal(t, protocol.TypeNack, r.typ)
}

func TestDispatchUsersListsAllLoggedIn(t *testing.T) {
	d, clients := newDispatcher()
	a, _ := newTestSession(t, clients)
	b, _ := newTestSession(t, clients)
	d.Dispatch(a, protocol.Header{Type: protocol.TypeLogin}, []byte("alice"))
	d.Dispatch(b, protocol.Header{Type: protocol.TypeLogin}, []byte("bob"))

	r := d.Dispatch(a, protocol.Header{Type: protocol.TypeUsers}, nil)
	require.Equal(t, protocol.TypeAck, r.typ)
	assert.Contains(t, string(r.payload), "alice\t1500\n")
	assert.Contains(t, string(r.payload), "bob\t1500\n")
}

func TestDispatchInviteAcceptMoveResign(t *testing.T) {
	d, clients := newDispatcher()
	a, aNotes := newTestSession(t, clients)
	b, bNotes := newTestSession(t, clients)
	d.Dispatch(a, protocol.Header{Type: protocol.TypeLogin}, []byte("alice"))
	d.Dispatch(b, protocol.Header{Type: protocol.TypeLogin}, []byte("bob"))

	r := d.Dispatch(a, protocol.Header{Type: protocol.TypeInvite, Role: protocol.RoleSecond}, []byte("bob"))
	require.Equal(t, protocol.TypeAck, r.typ)
	sourceID := r.id

	invited := recvHeader(t, bNotes)
	assert.Equal(t, protocol.TypeInvited, invited.Type)
	bID := invited.ID

	r = d.Dispatch(b, protocol.Header{Type: protocol.TypeAccept, ID: bID}, nil)
	require.Equal(t, protocol.TypeAck, r.typ)
	accepted := recvHeader(t, aNotes)
	assert.Equal(t, protocol.TypeAccepted, accepted.Type)

	r = d.Dispatch(a, protocol.Header{Type: protocol.TypeMove, ID: sourceID}, []byte("1"))
	assert.Equal(t, protocol.TypeAck, r.typ)
	moved := recvHeader(t, bNotes)
	assert.Equal(t, protocol.TypeMoved, moved.Type)

	r = d.Dispatch(b, protocol.Header{Type: protocol.TypeResign, ID: bID}, nil)
	assert.Equal(t, protocol.TypeAck, r.typ)

	resigned := recvHeader(t, aNotes)
	assert.Equal(t, protocol.TypeResigned, resigned.Type)
	endedA := recvHeader(t, aNotes)
	assert.Equal(t, protocol.TypeEnded, endedA.Type)
	assert.Equal(t, protocol.RoleFirst, endedA.Role)
	endedB := recvHeader(t, bNotes)
	assert.Equal(t, protocol.TypeEnded, endedB.Type)
	assert.Equal(t, protocol.RoleFirst, endedB.Role)
}

func TestDispatchInviteUnknownTargetNacks(t *testing.T) {
	d, clients := newDispatcher()
	a, _ := newTestSession(t, clients)
	d.Dispatch(a, protocol.Header{Type: protocol.TypeLogin}, []byte("alice"))

	r := d.Dispatch(a, protocol.Header{Type: protocol.TypeInvite, Role: protocol.RoleFirst}, []byte("ghost"))
	assert.Equal(t, protocol.TypeNack, r.typ)
}

func TestDispatchUnknownTypeNacks(t *testing.T) {
	d, clients := newDispatcher()
	a, _ := newTestSession(t, clients)
	d.Dispatch(a, protocol.Header{Type: protocol.TypeLogin}, []byte("alice"))

	r := d.Dispatch(a, protocol.Header{Type: protocol.TypeNone}, nil)
	assert.Equal(t, protocol.TypeNack, r.typ)
}

func TestFormatRatingTruncates(t *testing.T) {
	assert.Equal(t, "1516", formatRating(1516.9))
	assert.Equal(t, "-1", formatRating(-1.5))
}

func TestHandleUsersPayloadHasNoExtraWhitespace(t *testing.T) {
	d, clients := newDispatcher()
	a, _ := newTestSession(t, clients)
	d.Dispatch(a, protocol.Header{Type: protocol.TypeLogin}, []byte("alice"))

	r := d.Dispatch(a, protocol.Header{Type: protocol.TypeUsers}, nil)
	lines := strings.Split(strings.TrimRight(string(r.payload), "\n"), "\n")
	assert.Len(t, lines, 1)
}
