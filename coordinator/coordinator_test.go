package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairledger/sidechain/common"
	"github.com/fairledger/sidechain/coordinator/anchor"
	"github.com/fairledger/sidechain/coordinator/schedule"
	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/core/types"
	"github.com/fairledger/sidechain/crypto"
)

// fakeBus is a hand-written bus.Bus test double: the examples' generated
// gomock doubles are all mocks of protobuf service clients this rewrite
// does not carry (see DESIGN.md), so the narrow bus.Bus surface is
// faked directly instead of generating a throwaway mock package for it.
type fakeBus struct {
	blocks map[uint64]*types.Block
}

func newFakeBus() *fakeBus { return &fakeBus{blocks: map[uint64]*types.Block{}} }

func (b *fakeBus) addBlock(n uint64, hash string) {
	b.blocks[n] = &types.Block{BlockNumber: n, Hash: hash}
}

func (b *fakeBus) GetBlock(n uint64) (*types.Block, bool, error) {
	blk, ok := b.blocks[n]
	return blk, ok, nil
}
func (b *fakeBus) GetLatestBlock() (*types.Block, bool, error) { return nil, false, nil }
func (b *fakeBus) FindInTable(contract, table string, q store.Document) ([]store.Document, error) {
	return nil, nil
}
func (b *fakeBus) FindOneInTable(contract, table string, q store.Document) (store.Document, bool, error) {
	return nil, false, nil
}
func (b *fakeBus) GetContract(name string) (*types.Contract, bool, error) { return nil, false, nil }

type fakeSchedule struct {
	witnesses map[string]schedule.Witness
	params    schedule.Params
}

func (s *fakeSchedule) CurrentParams() (schedule.Params, error) { return s.params, nil }
func (s *fakeSchedule) ScheduleFor(round uint64) ([]schedule.Witness, error) {
	out := make([]schedule.Witness, 0, len(s.witnesses))
	for _, w := range s.witnesses {
		out = append(out, w)
	}
	return out, nil
}
func (s *fakeSchedule) WitnessByAccount(account string) (schedule.Witness, bool, error) {
	w, ok := s.witnesses[account]
	return w, ok, nil
}

func TestRoundHashEmptyRangeIsEmptyString(t *testing.T) {
	b := newFakeBus()
	h, err := RoundHash(b, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, "", h)
}

func TestRoundHashChainsOverBlocks(t *testing.T) {
	b := newFakeBus()
	hash64 := func(c byte) string {
		h := make([]byte, 32)
		h[0] = c
		return common.BytesToHash(h).Hex()
	}
	b.addBlock(1, hash64(1))
	b.addBlock(2, hash64(2))

	h1, err := RoundHash(b, 1, 1)
	require.NoError(t, err)

	h2, err := RoundHash(b, 1, 2)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.NotEmpty(t, h1)
}

func TestRoundHashMissingBlockErrors(t *testing.T) {
	b := newFakeBus()
	_, err := RoundHash(b, 1, 1)
	assert.Error(t, err)
}

func newSignedWitness(t *testing.T, account string) (schedule.Witness, *crypto.PrivateKey) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return schedule.Witness{Account: account, SigningKey: priv.Public().Bytes()}, priv
}

func TestHandleProposalRejectsUnauthenticated(t *testing.T) {
	c := New(Config{ChainID: "sc", Account: "me"}, newFakeBus(), &fakeSchedule{}, nil, nil, nil)
	_, err := c.HandleProposal(false, "peer", 1, "", common.Sig{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestHandleProposalRejectsUnknownPeer(t *testing.T) {
	sr := &fakeSchedule{witnesses: map[string]schedule.Witness{}}
	c := New(Config{ChainID: "sc", Account: "me"}, newFakeBus(), sr, nil, nil, nil)
	_, err := c.HandleProposal(true, "stranger", 1, sampleRoundHash(), common.Sig{})
	assert.ErrorIs(t, err, ErrNotScheduled)
}

func TestHandleProposalAcceptsMatchingRoundHash(t *testing.T) {
	b := newFakeBus()
	b.addBlock(1, sampleRoundHash())

	peerWitness, peerKey := newSignedWitness(t, "peer")
	sr := &fakeSchedule{
		witnesses: map[string]schedule.Witness{"peer": peerWitness},
		params:    schedule.Params{LastVerifiedBlockNumber: 0, LastBlockRound: 1},
	}

	myPriv, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := New(Config{ChainID: "sc", Account: "me", SigningKey: myPriv}, b, sr, nil, nil, nil)

	roundHash, err := RoundHash(b, 1, 1)
	require.NoError(t, err)
	sig, err := crypto.Sign(common.HexToHash(roundHash), peerKey)
	require.NoError(t, err)

	ack, err := c.HandleProposal(true, "peer", 1, roundHash, sig)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ack.Round)
	assert.Equal(t, roundHash, ack.RoundHash)
}

func TestHandlePeerReplyIgnoresStaleRound(t *testing.T) {
	c := New(Config{ChainID: "sc", Account: "me"}, newFakeBus(), &fakeSchedule{}, nil, nil, nil)
	err := c.HandlePeerReply("peer", 99, sampleRoundHash(), common.Sig{})
	assert.NoError(t, err)
}

func TestHandlePeerReplyReachesQuorumAndClearsProposition(t *testing.T) {
	b := newFakeBus()
	peerWitness, peerKey := newSignedWitness(t, "peer")
	sr := &fakeSchedule{witnesses: map[string]schedule.Witness{"peer": peerWitness}}

	myPriv, err := crypto.GenerateKey()
	require.NoError(t, err)

	checkpointDir := t.TempDir() + "/checkpoint"
	cp, err := OpenCheckpoint(checkpointDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })

	c := New(Config{ChainID: "sc", Account: "me", SigningKey: myPriv, Quorum: 2}, b, sr, noopAnchor{}, cp, nil)
	c.current = &proposition{round: 1, roundHash: "", signatures: map[string]common.Sig{"me": {}}}

	sig, err := crypto.Sign(common.HexToHash(""), peerKey)
	require.NoError(t, err)

	err = c.HandlePeerReply("peer", 1, "", sig)
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Nil(t, c.current)
	assert.Equal(t, uint64(1), c.lastProposedRoundNumber)
}

type noopAnchor struct{}

func (noopAnchor) Broadcast(ctx context.Context, env anchor.Envelope) error { return nil }

func sampleRoundHash() string {
	return common.BytesToHash(make([]byte, 32)).Hex()
}
