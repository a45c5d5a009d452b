package anchor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeMatchesSteemCustomJSONShape(t *testing.T) {
	env, err := NewEnvelope("witness-1", "mychain", CustomJSON{
		ContractName:    "witnesses",
		ContractAction:  "proposeRound",
		ContractPayload: map[string]interface{}{"round": 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"witness-1"}, env.RequiredAuths)
	assert.Equal(t, "ssc-mychain", env.ID)

	var payload CustomJSON
	require.NoError(t, json.Unmarshal([]byte(env.JSON), &payload))
	assert.Equal(t, "witnesses", payload.ContractName)
}

func TestRoundRobinBroadcastsToNextEndpoint(t *testing.T) {
	var hits []string
	srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "srv1")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv1.Close()
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "srv2")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv2.Close()

	rr := NewRoundRobin([]string{srv1.URL, srv2.URL}, nil)
	env, err := NewEnvelope("me", "chain", CustomJSON{ContractName: "x", ContractAction: "y"})
	require.NoError(t, err)

	require.NoError(t, rr.Broadcast(context.Background(), env))
	require.NoError(t, rr.Broadcast(context.Background(), env))

	assert.Equal(t, []string{"srv1", "srv2"}, hits)
}

func TestRoundRobinFailsWithNoEndpoints(t *testing.T) {
	rr := NewRoundRobin(nil, nil)
	env, err := NewEnvelope("me", "chain", CustomJSON{})
	require.NoError(t, err)

	err = rr.Broadcast(context.Background(), env)
	assert.ErrorIs(t, err, ErrTransport)
}
