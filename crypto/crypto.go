// Package crypto implements the signing and hashing primitives shared by
// the ledger, executor and round coordinator: SHA-256 hashing over the
// canonical byte/JSON encodings of spec.md §3 and §4.3, and recoverable
// ECDSA (secp256k1) signatures in the 65-byte/130-hex convention spec.md
// §6 specifies.
package crypto

import (
	crand "crypto/rand"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"

	"github.com/fairledger/sidechain/common"
)

var (
	ErrInvalidSigLen  = errors.New("crypto: invalid signature length")
	ErrInvalidPubkey  = errors.New("crypto: invalid public key")
	ErrRecoverFailed  = errors.New("crypto: signature recovery failed")
)

// PrivateKey is a witness's secp256k1 signing key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is a witness's secp256k1 verifying key.
type PublicKey struct {
	key *btcec.PublicKey
}

// GenerateKey creates a new random signing key, used by the keystore when
// provisioning a fresh witness account.
func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	return &PrivateKey{key: k}, nil
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, _ := btcec.PrivKeyFromBytes(btcec.S256(), b)
	if key == nil {
		return nil, ErrInvalidPubkey
	}
	return &PrivateKey{key: key}, nil
}

func (p *PrivateKey) Bytes() []byte { return p.key.Serialize() }

func (p *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: (*btcec.PublicKey)(&p.key.PublicKey)}
}

func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	pub, err := btcec.ParsePubKey(b, btcec.S256())
	if err != nil {
		return nil, errors.Wrap(err, "parse public key")
	}
	return &PublicKey{key: pub}, nil
}

func (p *PublicKey) Bytes() []byte {
	return p.key.SerializeCompressed()
}

// Equal reports whether p and other encode the same key.
func (p *PublicKey) Equal(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.key.IsEqual(other.key)
}

// Sha256 computes the SHA-256 digest of the lexical concatenation of its
// arguments, per spec.md §3's hash invariants for Transaction and Block.
// The result's Hex method gives the lowercase 64-hex form.
func Sha256(parts ...[]byte) common.Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Sign produces a 65-byte recoverable signature over hash: 1 header byte
// followed by 32 bytes R and 32 bytes S, matching the teacher's
// crypto.SigToPub/crypto.Sign recoverable-signature convention
// (fairnode/verify/verify.go) but built on the plain btcec API rather than
// go-ethereum's cgo secp256k1 binding.
func Sign(hash common.Hash, priv *PrivateKey) (common.Sig, error) {
	compact, err := btcec.SignCompact(btcec.S256(), priv.key, hash.Bytes(), false)
	if err != nil {
		return common.Sig{}, errors.Wrap(err, "sign")
	}
	return common.BytesToSig(compact)
}

// SigToPub recovers the public key that produced sig over hash.
func SigToPub(hash common.Hash, sig common.Sig) (*PublicKey, error) {
	pub, _, err := btcec.RecoverCompact(btcec.S256(), sig.Bytes(), hash.Bytes())
	if err != nil {
		return nil, errors.Wrap(ErrRecoverFailed, err.Error())
	}
	return &PublicKey{key: pub}, nil
}

// VerifySignature reports whether sig over hash was produced by the holder
// of pub. Used for witness challenge/proposal verification (spec.md §4.3).
func VerifySignature(pub *PublicKey, hash common.Hash, sig common.Sig) bool {
	recovered, err := SigToPub(hash, sig)
	if err != nil {
		return false
	}
	return recovered.Equal(pub)
}

// RandomBytes returns n cryptographically random bytes, used for keystore
// salts/IVs and witness handshake auth tokens.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = crand.Read(b)
	return b
}
