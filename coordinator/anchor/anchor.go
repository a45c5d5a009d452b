// Package anchor is the out-of-scope anchor-chain RPC client's stated
// interface (spec.md §1: "the anchor-chain RPC client" is an external
// collaborator whose interface is stated but not designed) plus a
// minimal round-robin implementation, grounded on the teacher's
// fairnode/client package pattern of holding a pool of backend
// connections and rotating on failure.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

// ErrTransport is spec.md §7's TransportError: anchor RPC or peer socket
// failure. Retry with backoff; rotate endpoints.
var ErrTransport = errors.New("anchor: transport error")

// CustomJSON is the payload wrapped inside the anchor envelope's "json"
// field (spec.md §4.3's proposeRound submission and §6's envelope).
type CustomJSON struct {
	ContractName    string      `json:"contractName"`
	ContractAction  string      `json:"contractAction"`
	ContractPayload interface{} `json:"contractPayload"`
}

// Envelope is spec.md §6's anchor custom JSON envelope.
type Envelope struct {
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	ID                   string   `json:"id"`
	JSON                 string   `json:"json"`
}

// NewEnvelope builds the envelope for account broadcasting payload under
// chainID, per spec.md §6's `id:"ssc-<chainId>"` convention.
func NewEnvelope(account, chainID string, payload CustomJSON) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		RequiredAuths:        []string{account},
		RequiredPostingAuths: []string{},
		ID:                   fmt.Sprintf("ssc-%s", chainID),
		JSON:                 string(raw),
	}, nil
}

// Client broadcasts a signed custom JSON to the anchor chain. The anchor
// chain itself, its RPC wire format, and its auth model are out of
// scope (spec.md §1) — this is only the seam the Coordinator calls
// through.
type Client interface {
	Broadcast(ctx context.Context, env Envelope) error
}

// RoundRobin is a Client over a fixed pool of HTTP endpoints, advancing
// to the next endpoint on every call and, on failure, moving on through
// the rest of the pool (each endpoint at most once) before giving up —
// mirroring fairnode/client's multi-transport
// failover without its TCP/UDP-specific framing.
type RoundRobin struct {
	mu         sync.Mutex
	endpoints  []string
	next       int
	httpClient *http.Client
}

// NewRoundRobin builds a RoundRobin over endpoints. An empty pool is
// accepted; Broadcast on it fails with ErrTransport.
func NewRoundRobin(endpoints []string, httpClient *http.Client) *RoundRobin {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RoundRobin{endpoints: endpoints, httpClient: httpClient}
}

func (r *RoundRobin) pick() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.endpoints) == 0 {
		return ""
	}
	ep := r.endpoints[r.next%len(r.endpoints)]
	r.next++
	return ep
}

// Broadcast posts env as JSON to the next endpoint in rotation, trying
// each endpoint at most once per call.
func (r *RoundRobin) Broadcast(ctx context.Context, env Envelope) error {
	if len(r.endpoints) == 0 {
		return errors.Wrap(ErrTransport, "no anchor endpoints configured")
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	var lastErr error
	for range r.endpoints {
		ep := r.pick()
		if err := r.post(ctx, ep, body); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return errors.Wrap(ErrTransport, lastErr.Error())
}

func (r *RoundRobin) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("anchor: endpoint %s returned status %d", endpoint, resp.StatusCode)
	}
	return nil
}
