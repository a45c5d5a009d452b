package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	log "gopkg.in/inconshreveable/log15.v2"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/fairledger/sidechain/crypto"
)

var keyGenerateCommand = cli.Command{
	Name:   "account",
	Usage:  "generate a new witness signing key and write it to an encrypted keyfile",
	Action: generateAccount,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "keypath",
			Usage: "path to write the encrypted signing key file",
			Value: "witness.key",
		},
	},
}

// generateAccount mints a fresh secp256k1 keypair the way the teacher's
// keycmd.go does (generate, prompt passphrase, write an encrypted
// keyfile), but derives the witness's printable account from a BIP-39
// mnemonic entropy source instead of go-ethereum's address scheme, since
// spec.md's Account is an opaque string, not an Ethereum address.
func generateAccount(ctx *cli.Context) error {
	keyPath := ctx.String("keypath")
	if _, err := os.Stat(keyPath); err == nil {
		return errors.Errorf("keyfile already exists at %s", keyPath)
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return errors.Wrap(err, "generate signing key")
	}

	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return errors.Wrap(err, "generate mnemonic entropy")
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return errors.Wrap(err, "derive mnemonic")
	}
	account := accountFromMnemonic(mnemonic)

	passphrase := promptPassphrase(true)
	if err := crypto.EncryptKey(keyPath, account, passphrase, priv); err != nil {
		return errors.Wrap(err, "write keyfile")
	}

	color.Green("new witness account generated")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"account", account})
	table.Append([]string{"keyfile", keyPath})
	table.Append([]string{"mnemonic", mnemonic})
	table.Render()

	fmt.Println()
	color.Yellow("record the mnemonic above somewhere safe; it is not stored on disk")
	log.Info("generated witness account", "account", account, "keyfile", keyPath)
	return nil
}

// accountFromMnemonic derives a short, stable account identifier from the
// mnemonic's seed so the value is deterministic and reproducible from the
// mnemonic alone, without ever persisting the seed itself.
func accountFromMnemonic(mnemonic string) string {
	seed := bip39.NewSeed(mnemonic, "")
	h := crypto.Sha256(seed)
	return h.Hex()[:40]
}

func promptPassphrase(confirm bool) string {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	passphrase, err := line.PasswordPrompt("Passphrase: ")
	if err != nil {
		log.Crit("failed to read passphrase", "err", err)
	}
	if confirm {
		again, err := line.PasswordPrompt("Repeat passphrase: ")
		if err != nil {
			log.Crit("failed to read passphrase", "err", err)
		}
		if passphrase != again {
			log.Crit("passphrases do not match")
		}
	}
	return passphrase
}
