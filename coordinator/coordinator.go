// Package coordinator implements spec.md §4.3's Round Coordinator: a
// per-witness state machine that proposes round hashes, verifies peers'
// proposals, aggregates signatures to a quorum, and anchors the result.
//
// Per spec.md §9's Design Note ("re-architect as a single Coordinator
// value owning these fields"), all of the reference's module-level
// singletons (currentRound, lastProposedRound, sockets, ...) live as
// fields on Coordinator; every handler is a method, so multiple
// instances can coexist in tests.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/fairledger/sidechain/bus"
	"github.com/fairledger/sidechain/common"
	"github.com/fairledger/sidechain/coordinator/anchor"
	"github.com/fairledger/sidechain/coordinator/schedule"
	"github.com/fairledger/sidechain/crypto"
)

var logger = log.New("module", "coordinator")

// DefaultQuorum is NB_WITNESSES_REQUIRED_TO_VALIDATE_BLOCK in the
// reference parameterization: 3 of 4 witnesses.
const DefaultQuorum = 3

// DefaultMaxWaitingPeriods is MAX_PROPOSITION_WAITING_PERIODS: a
// proposition in flight for this many ticks without reaching quorum is
// discarded.
const DefaultMaxWaitingPeriods = 20

// DefaultTickInterval is the Coordinator's state-machine tick period.
const DefaultTickInterval = 3 * time.Second

// Config parameterizes a Coordinator instance.
type Config struct {
	ChainID           string
	Account           string
	SigningKey        *crypto.PrivateKey
	Quorum            int
	MaxWaitingPeriods int
	TickInterval      time.Duration
}

func (c *Config) setDefaults() {
	if c.Quorum == 0 {
		c.Quorum = DefaultQuorum
	}
	if c.MaxWaitingPeriods == 0 {
		c.MaxWaitingPeriods = DefaultMaxWaitingPeriods
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
}

// proposition is the in-flight round this witness is proposing, per
// spec.md §3's "Round proposition (in-memory, per witness)".
type proposition struct {
	round          uint64
	roundHash      string
	signatures     map[string]common.Sig
	waitingPeriods int
}

// Broadcaster sends a signed proposeRound request to every witness in
// witnesses (excluding self); replies arrive later via
// Coordinator.HandlePeerReply, delivered from whatever goroutine the
// transport's read loop runs on — never synchronously from Broadcast
// itself, matching the WebSocket request/ack framing of spec.md §6.
type Broadcaster interface {
	Broadcast(ctx context.Context, witnesses []schedule.Witness, round uint64, roundHash string, sig common.Sig)
}

// Coordinator is a single witness's round-agreement state machine.
type Coordinator struct {
	cfg Config

	bus        bus.Bus
	schedule   schedule.Reader
	anchor     anchor.Client
	checkpoint *Checkpoint
	peers      Broadcaster

	mu                      sync.Mutex
	current                 *proposition
	lastProposedRoundNumber uint64
	lastVerifiedRoundNumber uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Coordinator. peers may be nil in tests that only exercise
// the verifier side.
func New(cfg Config, b bus.Bus, sr schedule.Reader, anchorClient anchor.Client, checkpoint *Checkpoint, peers Broadcaster) *Coordinator {
	cfg.setDefaults()
	return &Coordinator{
		cfg:        cfg,
		bus:        b,
		schedule:   sr,
		anchor:     anchorClient,
		checkpoint: checkpoint,
		peers:      peers,
		stopCh:     make(chan struct{}),
	}
}

// Start loads persisted checkpoint state and begins the tick loop. It
// returns once the loop goroutine has started; Stop ends it.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.checkpoint != nil {
		lp, err := c.checkpoint.LastProposedRound()
		if err != nil {
			return err
		}
		lv, err := c.checkpoint.LastVerifiedRound()
		if err != nil {
			return err
		}
		c.lastProposedRoundNumber = lp
		c.lastVerifiedRoundNumber = lv
	}

	c.wg.Add(1)
	go c.loop(ctx)
	return nil
}

// Stop ends the tick loop. In-flight anchor submissions are allowed to
// drain — Stop does not cancel a Broadcast/anchor call already under
// way, per spec.md §5's cancellation contract.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick performs one state-machine step: propose if eligible, time out a
// stalled proposition, otherwise wait for aggregation (which proceeds
// via HandlePeerReply as replies arrive).
func (c *Coordinator) tick(ctx context.Context) {
	params, err := c.schedule.CurrentParams()
	if err != nil {
		logger.Error("read consensus params", "err", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.waitingPeriods++
		if c.current.waitingPeriods >= c.cfg.MaxWaitingPeriods {
			logger.Warn("proposition timed out", "round", c.current.round)
			c.lastProposedRoundNumber = c.current.round - 1
			c.persistLastProposed()
			c.current = nil
		}
		return
	}

	if params.CurrentWitness != c.cfg.Account {
		return
	}
	if params.Round <= c.lastProposedRoundNumber {
		return
	}

	roundHash, err := RoundHash(c.bus, params.LastVerifiedBlockNumber+1, params.LastBlockRound)
	if err != nil {
		logger.Error("compute round hash", "err", err)
		return
	}

	sig, err := c.sign(roundHash)
	if err != nil {
		logger.Error("sign round hash", "err", err)
		return
	}

	c.current = &proposition{
		round:      params.Round,
		roundHash:  roundHash,
		signatures: map[string]common.Sig{c.cfg.Account: sig},
	}

	witnesses, err := c.schedule.ScheduleFor(params.Round)
	if err != nil {
		logger.Error("read schedule", "round", params.Round, "err", err)
		return
	}
	peers := make([]schedule.Witness, 0, len(witnesses))
	for _, w := range witnesses {
		if w.Account != c.cfg.Account {
			peers = append(peers, w)
		}
	}
	if c.peers != nil {
		c.peers.Broadcast(ctx, peers, params.Round, roundHash, sig)
	}
}

// RoundHash implements spec.md §4.3's round hash: H_0 = ""; for each
// block in [from, to] ascending, H_i = SHA256(H_{i-1} || B_i.hash).
func RoundHash(b bus.Bus, from, to uint64) (string, error) {
	h := ""
	if to < from {
		return h, nil
	}
	for n := from; n <= to; n++ {
		blk, ok, err := b.GetBlock(n)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("coordinator: block %d not found while computing round hash", n)
		}
		h = crypto.Sha256([]byte(h), []byte(blk.Hash)).Hex()
	}
	return h, nil
}

func (c *Coordinator) sign(roundHash string) (common.Sig, error) {
	return crypto.Sign(common.HexToHash(roundHash), c.cfg.SigningKey)
}

// HandlePeerReply implements the Aggregate action of spec.md §4.3: a
// verifying peer's signed reply to my in-flight proposition.
func (c *Coordinator) HandlePeerReply(peerAccount string, round uint64, roundHash string, sig common.Sig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.round != round {
		return nil // stale reply, ignore
	}
	if roundHash != c.current.roundHash {
		return errors.Wrap(ErrConsensusMismatch, "peer reply round hash differs")
	}

	peer, ok, err := c.schedule.WitnessByAccount(peerAccount)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(ErrNotScheduled, peerAccount)
	}
	pub, err := crypto.PublicKeyFromBytes(peer.SigningKey)
	if err != nil {
		return errors.Wrap(ErrSignatureError, err.Error())
	}
	if !crypto.VerifySignature(pub, common.HexToHash(roundHash), sig) {
		return ErrSignatureError
	}

	if _, already := c.current.signatures[peerAccount]; already {
		return nil // duplicate reply, no-op (spec.md §8 "Quorum": no duplicate submission)
	}
	c.current.signatures[peerAccount] = sig

	if len(c.current.signatures) >= c.cfg.Quorum {
		c.submitLocked(context.Background())
	}
	return nil
}

// submitLocked anchors the current proposition and clears it. Caller
// must hold c.mu.
func (c *Coordinator) submitLocked(ctx context.Context) {
	sigs := make([]map[string]string, 0, len(c.current.signatures))
	for account, sig := range c.current.signatures {
		sigs = append(sigs, map[string]string{"witness": account, "signature": sig.Hex()})
	}

	payload := anchor.CustomJSON{
		ContractName:   "witnesses",
		ContractAction: "proposeRound",
		ContractPayload: map[string]interface{}{
			"round":      c.current.round,
			"roundHash":  c.current.roundHash,
			"signatures": sigs,
		},
	}
	env, err := anchor.NewEnvelope(c.cfg.Account, c.cfg.ChainID, payload)
	if err != nil {
		logger.Error("build anchor envelope", "err", err)
		return
	}

	if c.anchor != nil {
		if err := c.anchor.Broadcast(ctx, env); err != nil {
			logger.Error("anchor broadcast failed", "round", c.current.round, "err", err)
			return
		}
	}

	c.lastProposedRoundNumber = c.current.round
	c.persistLastProposed()
	c.current = nil
}

func (c *Coordinator) persistLastProposed() {
	if c.checkpoint == nil {
		return
	}
	if err := c.checkpoint.SetLastProposedRound(c.lastProposedRoundNumber); err != nil {
		logger.Error("persist checkpoint", "err", err)
	}
}

func (c *Coordinator) persistLastVerified() {
	if c.checkpoint == nil {
		return
	}
	if err := c.checkpoint.SetLastVerifiedRound(c.lastVerifiedRoundNumber); err != nil {
		logger.Error("persist checkpoint", "err", err)
	}
}

// ProposalAck is the verifier's signed reply to an incoming proposal, or
// a rejection reason string per spec.md §4.3's ack union
// `(err:string|null, {round, roundHash, signature}|null)`.
type ProposalAck struct {
	Round     uint64
	RoundHash string
	Signature common.Sig
}

// HandleProposal implements the verifier side of spec.md §4.3
// (proposeRoundHandler): validates an incoming proposal from an
// authenticated, scheduled peer, recomputes the local round hash, and
// either signs and replies or reports the mismatch.
func (c *Coordinator) HandleProposal(authenticated bool, peerAccount string, round uint64, roundHash string, sig common.Sig) (*ProposalAck, error) {
	if !authenticated {
		return nil, ErrNotAuthenticated
	}
	if len(roundHash) != 64 {
		return nil, ErrMalformed
	}

	witnesses, err := c.schedule.ScheduleFor(round)
	if err != nil {
		return nil, err
	}
	var peer schedule.Witness
	found := false
	for _, w := range witnesses {
		if w.Account == peerAccount {
			peer, found = w, true
			break
		}
	}
	if !found {
		return nil, ErrNotScheduled
	}

	pub, err := crypto.PublicKeyFromBytes(peer.SigningKey)
	if err != nil {
		return nil, errors.Wrap(ErrSignatureError, err.Error())
	}
	if !crypto.VerifySignature(pub, common.HexToHash(roundHash), sig) {
		return nil, ErrSignatureError
	}

	params, err := c.schedule.CurrentParams()
	if err != nil {
		return nil, err
	}
	localHash, err := RoundHash(c.bus, params.LastVerifiedBlockNumber+1, params.LastBlockRound)
	if err != nil {
		return nil, err
	}

	if localHash != roundHash {
		return nil, errors.Wrap(ErrConsensusMismatch, "round hash different")
	}

	mySig, err := c.sign(localHash)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if round > c.lastVerifiedRoundNumber {
		c.lastVerifiedRoundNumber = round
		c.persistLastVerified()
	}
	c.mu.Unlock()

	return &ProposalAck{Round: round, RoundHash: localHash, Signature: mySig}, nil
}
