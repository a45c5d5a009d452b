package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashLength is the expected length of the hash, in bytes.
const HashLength = 32

// SigLength is the expected length of a recoverable ECDSA signature
// (V || R || S), in bytes.
const SigLength = 65

// Hash represents the 32 byte output of SHA-256, rendered as lowercase
// 64-character hex over the wire and in logs.
type Hash [HashLength]byte

// BytesToHash sets the hash to the value of b, left-padding if b is short.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToHash sets the hash to the value of s, accepting an optional 0x prefix.
func HexToHash(s string) Hash {
	return BytesToHash(FromHex(s))
}

func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the lowercase hex encoding of h, without a 0x prefix, matching
// the wire convention of spec.md ("hex-string-64").
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*h = HexToHash(s)
	return nil
}

// Sig is a recoverable ECDSA signature: 65 bytes of V || R || S (one
// recovery header byte, then R and S), rendered as 130 hex characters per
// spec.md §6.
type Sig [SigLength]byte

func BytesToSig(b []byte) (Sig, error) {
	var s Sig
	if len(b) != SigLength {
		return s, fmt.Errorf("invalid signature length: got %d want %d", len(b), SigLength)
	}
	copy(s[:], b)
	return s, nil
}

func HexToSig(h string) (Sig, error) {
	b, err := hex.DecodeString(trim0x(h))
	if err != nil {
		return Sig{}, err
	}
	return BytesToSig(b)
}

func (s Sig) Bytes() []byte { return s[:] }

func (s Sig) Hex() string { return hex.EncodeToString(s[:]) }

func (s Sig) String() string { return s.Hex() }

func (s Sig) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Hex())
}

func (s *Sig) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	sig, err := HexToSig(str)
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// FromHex decodes a hex string, accepting an optional 0x prefix. Malformed
// input decodes to nil rather than panicking, matching common.FromHex in
// the teacher's common package.
func FromHex(s string) []byte {
	b, err := hex.DecodeString(trim0x(s))
	if err != nil {
		return nil
	}
	return b
}
