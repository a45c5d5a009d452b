package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	hash := Sha256([]byte("round hash payload"))
	sig, err := Sign(hash, priv)
	require.NoError(t, err)

	assert.True(t, VerifySignature(priv.Public(), hash, sig))
}

func TestVerifySignatureRejectsWrongHash(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	sig, err := Sign(Sha256([]byte("a")), priv)
	require.NoError(t, err)

	assert.False(t, VerifySignature(priv.Public(), Sha256([]byte("b")), sig))
}

func TestSigToPubRecoversSigner(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	hash := Sha256([]byte("payload"))
	sig, err := Sign(hash, priv)
	require.NoError(t, err)

	recovered, err := SigToPub(hash, sig)
	require.NoError(t, err)
	assert.True(t, recovered.Equal(priv.Public()))
}

func TestPrivateKeyFromBytesRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(priv.Bytes())
	require.NoError(t, err)
	assert.Equal(t, priv.Public().Bytes(), restored.Public().Bytes())
}

func TestSha256IsDeterministic(t *testing.T) {
	h1 := Sha256([]byte("a"), []byte("b"))
	h2 := Sha256([]byte("a"), []byte("b"))
	h3 := Sha256([]byte("ab"))

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
