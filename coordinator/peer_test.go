package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairledger/sidechain/coordinator/schedule"
	"github.com/fairledger/sidechain/crypto"
)

// waitAuthenticated polls until sock completes both halves of the mutual
// handshake, failing the test if it never does.
func waitAuthenticated(t *testing.T, sock *Socket) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sock.Authenticated() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("socket never completed handshake")
}

func TestPeerHandshakeAuthenticatesBothDirections(t *testing.T) {
	aPriv, err := crypto.GenerateKey()
	require.NoError(t, err)
	bPriv, err := crypto.GenerateKey()
	require.NoError(t, err)

	aSchedule := &fakeSchedule{witnesses: map[string]schedule.Witness{
		"b": {Account: "b", SigningKey: bPriv.Public().Bytes(), IP: "127.0.0.1"},
	}}
	mgrA := NewPeerManager("a", aPriv, aSchedule)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mgrA.ServeWS(w, r)
	}))
	defer srv.Close()

	bSchedule := &fakeSchedule{witnesses: map[string]schedule.Witness{
		"a": {Account: "a", SigningKey: aPriv.Public().Bytes(), IP: "127.0.0.1"},
	}}
	mgrB := NewPeerManager("b", bPriv, bSchedule)

	target := strings.TrimPrefix(srv.URL, "http://")
	sockB, err := mgrB.connect(context.Background(), schedule.Witness{Account: "a", IP: target})
	require.NoError(t, err)

	waitAuthenticated(t, sockB)

	mgrA.mu.Lock()
	sockA, ok := mgrA.sockets["b"]
	mgrA.mu.Unlock()
	require.True(t, ok, "server side never registered the peer's account")

	waitAuthenticated(t, sockA)
}

func TestPeerHandshakeRejectsUnknownAccount(t *testing.T) {
	aPriv, err := crypto.GenerateKey()
	require.NoError(t, err)
	strangerPriv, err := crypto.GenerateKey()
	require.NoError(t, err)

	// a's schedule never lists "stranger", so the handshake must be
	// dropped rather than authenticated.
	mgrA := NewPeerManager("a", aPriv, &fakeSchedule{witnesses: map[string]schedule.Witness{}})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mgrA.ServeWS(w, r)
	}))
	defer srv.Close()

	strangerSchedule := &fakeSchedule{witnesses: map[string]schedule.Witness{
		"a": {Account: "a", SigningKey: aPriv.Public().Bytes(), IP: "127.0.0.1"},
	}}
	mgrStranger := NewPeerManager("stranger", strangerPriv, strangerSchedule)

	target := strings.TrimPrefix(srv.URL, "http://")
	sock, err := mgrStranger.connect(context.Background(), schedule.Witness{Account: "a", IP: target})
	require.NoError(t, err)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && !sock.Authenticated() {
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, sock.Authenticated(), "unknown account must never authenticate")
}
