package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// KeyFile is the on-disk encrypted representation of a witness signing key,
// grounded on cmd/fairnode/keycmd.go's account-provisioning flow but using
// golang.org/x/crypto/scrypt directly rather than go-ethereum's keystore
// package (out of scope here: only one key, the witness's own, is ever
// stored).
type KeyFile struct {
	Account string `json:"account"`
	Salt    string `json:"salt"`
	IV      string `json:"iv"`
	Cipher  string `json:"cipher"`
}

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// EncryptKey encrypts priv with a key derived from passphrase via scrypt
// and writes it to path as JSON.
func EncryptKey(path, account, passphrase string, priv *PrivateKey) error {
	salt := RandomBytes(32)
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return errors.Wrap(err, "derive key")
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return errors.Wrap(err, "new cipher")
	}
	iv := RandomBytes(aes.BlockSize)
	stream := cipher.NewCTR(block, iv)

	plain := priv.Bytes()
	enc := make([]byte, len(plain))
	stream.XORKeyStream(enc, plain)

	kf := KeyFile{
		Account: account,
		Salt:    hex.EncodeToString(salt),
		IV:      hex.EncodeToString(iv),
		Cipher:  hex.EncodeToString(enc),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal keyfile")
	}
	return os.WriteFile(path, data, 0600)
}

// DecryptKey reads and decrypts the key file at path using passphrase.
func DecryptKey(path, passphrase string) (*PrivateKey, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "read keyfile")
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, "", errors.Wrap(err, "unmarshal keyfile")
	}

	salt, err := hex.DecodeString(kf.Salt)
	if err != nil {
		return nil, "", errors.Wrap(err, "decode salt")
	}
	iv, err := hex.DecodeString(kf.IV)
	if err != nil {
		return nil, "", errors.Wrap(err, "decode iv")
	}
	enc, err := hex.DecodeString(kf.Cipher)
	if err != nil {
		return nil, "", errors.Wrap(err, "decode cipher")
	}

	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, "", errors.Wrap(err, "derive key")
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, "", errors.Wrap(err, "new cipher")
	}
	stream := cipher.NewCTR(block, iv)
	plain := make([]byte, len(enc))
	stream.XORKeyStream(plain, enc)

	priv, err := PrivateKeyFromBytes(plain)
	if err != nil {
		return nil, "", errors.Wrap(err, "parse private key")
	}
	return priv, kf.Account, nil
}
