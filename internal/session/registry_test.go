package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacgo/tacgo/internal/model"
)

func registrySession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	s, remote := pipeSession(t)
	drain(remote)
	return s, remote
}

func TestRegistryRegisterEnforcesCapacity(t *testing.T) {
	r := NewRegistry(1)
	a, _ := registrySession(t)
	b, _ := registrySession(t)

	require.NoError(t, r.Register(a))
	assert.ErrorIs(t, r.Register(b), ErrCapacity)
}

func TestRegistryUnregisterFreesCapacity(t *testing.T) {
	r := NewRegistry(1)
	a, _ := registrySession(t)
	b, _ := registrySession(t)

	require.NoError(t, r.Register(a))
	r.Unregister(a)
	assert.NoError(t, r.Register(b))
}

func TestRegistryLoginRejectsDuplicateName(t *testing.T) {
	r := NewRegistry(0)
	players := model.NewRegistry()
	a, _ := registrySession(t)
	b, _ := registrySession(t)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	require.NoError(t, r.Login(a, players, "alice"))
	assert.ErrorIs(t, r.Login(b, players, "alice"), ErrNameInUse)
}

func TestRegistryLoginRejectsInvalidUsername(t *testing.T) {
	r := NewRegistry(0)
	players := model.NewRegistry()
	a, _ := registrySession(t)
	require.NoError(t, r.Register(a))

	assert.ErrorIs(t, r.Login(a, players, ""), ErrNameInUse)
}

func TestRegistryLookupFindsLoggedInSession(t *testing.T) {
	r := NewRegistry(0)
	players := model.NewRegistry()
	a, _ := registrySession(t)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Login(a, players, "alice"))

	assert.Same(t, a, r.Lookup("alice"))
	assert.Nil(t, r.Lookup("ghost"))
}

func TestRegistryAllPlayersOmitsNotLoggedIn(t *testing.T) {
	r := NewRegistry(0)
	players := model.NewRegistry()
	a, _ := registrySession(t)
	b, _ := registrySession(t)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Login(a, players, "alice"))

	got := r.AllPlayers()
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Name())
}

func TestRegistryWaitForEmptyReturnsImmediatelyWhenEmpty(t *testing.T) {
	r := NewRegistry(0)
	done := make(chan struct{})
	go func() {
		r.WaitForEmpty()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEmpty did not return for an already-empty registry")
	}
}

func TestRegistryShutdownAllAndWaitForEmpty(t *testing.T) {
	r := NewRegistry(0)
	a, remoteA := registrySession(t)
	b, remoteB := registrySession(t)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	var wg sync.WaitGroup
	wg.Add(2)
	for s, remote := range map[*Session]net.Conn{a: remoteA, b: remoteB} {
		go func(s *Session, remote net.Conn) {
			defer wg.Done()
			buf := make([]byte, 1)
			_, _ = remote.Read(buf)
			r.Unregister(s)
		}(s, remote)
	}

	done := make(chan struct{})
	go func() {
		r.WaitForEmpty()
		close(done)
	}()

	r.ShutdownAll()
	wg.Wait()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEmpty did not return after all sessions unregistered")
	}
	assert.Equal(t, 0, r.Count())
}
