package coordinator

import "github.com/pkg/errors"

// ErrConsensusMismatch is spec.md §7's ConsensusMismatch: a peer's round
// hash differs from mine. Non-fatal; no dispute escalation. The proposer
// only logs the rejection and does not resend the proposal; the
// proposition stays in flight until it reaches quorum or times out after
// MaxWaitingPeriods ticks, after which the round is proposed again.
var ErrConsensusMismatch = errors.New("coordinator: round hash different")

// ErrSignatureError is spec.md §7's SignatureError: a handshake or
// proposal signature failed to verify. The socket is dropped or the
// message rejected; never a panic.
var ErrSignatureError = errors.New("coordinator: invalid signature")

// ErrNotScheduled rejects a proposal from a peer not listed in the
// schedule for the round it claims.
var ErrNotScheduled = errors.New("coordinator: witness not scheduled for round")

// ErrNotAuthenticated rejects any proposeRound frame received before the
// handshake completed in both directions.
var ErrNotAuthenticated = errors.New("coordinator: peer not authenticated")

// ErrMalformed rejects a proposal whose round hash is not 64 characters
// long. A signature of the wrong length is rejected earlier, by the peer
// transport, as "invalid signature".
var ErrMalformed = errors.New("coordinator: malformed proposal fields")
