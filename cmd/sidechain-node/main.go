// Command sidechain-node runs the Ledger/Executor half of a sidechain
// witness (always) and the Round Coordinator half (only when a witness
// account is configured), grounded on the teacher's cmd/fairnode/main.go
// urfave/cli.v1 shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "gopkg.in/inconshreveable/log15.v2"
	"gopkg.in/urfave/cli.v1"

	"github.com/fairledger/sidechain/bus"
	"github.com/fairledger/sidechain/config"
	"github.com/fairledger/sidechain/coordinator"
	"github.com/fairledger/sidechain/coordinator/anchor"
	"github.com/fairledger/sidechain/coordinator/schedule"
	"github.com/fairledger/sidechain/core/ledger"
	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/crypto"
	"github.com/fairledger/sidechain/executor"
	"github.com/fairledger/sidechain/rpc"
)

var logger = log.New("module", "main")

func main() {
	app := cli.NewApp()
	app.Name = "sidechain-node"
	app.Usage = "ledger, contract executor and round coordinator for a sidechain witness"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to the node's TOML configuration file",
		},
		cli.IntFlag{
			Name:  "loglevel",
			Value: 3,
			Usage: "log level to emit to the screen",
		},
		cli.StringFlag{
			Name:  "keypath",
			Usage: "path to the witness's encrypted signing key file",
			Value: "witness.key",
		},
	}
	app.Commands = []cli.Command{
		keyGenerateCommand,
		consoleCommand,
	}
	app.Action = runNode

	if err := app.Run(os.Args); err != nil {
		logger.Crit("node exited", "err", err)
		os.Exit(1)
	}
}

func runNode(ctx *cli.Context) error {
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(ctx.Int("loglevel")), log.StreamHandler(os.Stdout, log.TerminalFormat())))

	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	st, err := openStore(cfg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	if err := st.Start(); err != nil {
		return errors.Wrap(err, "start store")
	}
	defer st.Stop()

	exec := executor.New(st, time.Duration(cfg.JSVMTimeout)*time.Millisecond)

	l, err := ledger.New(cfg.DataDir, cfg.ChainID, st, exec)
	if err != nil {
		return errors.Wrap(err, "build ledger")
	}
	if err := l.Start(); err != nil {
		return errors.Wrap(err, "start ledger")
	}
	defer l.Stop()

	ledgerBus := bus.NewLedgerBus(l, st)

	autosave := time.Duration(cfg.AutosaveInterval) * time.Millisecond
	stopProducer := make(chan struct{})
	go runBlockProducer(l, autosave, stopProducer)
	defer close(stopProducer)

	mux := http.NewServeMux()
	mux.Handle("/", rpc.New(ledgerBus, jwtSecretFor(cfg)))

	var coord *coordinator.Coordinator
	var peers *coordinator.PeerManager
	if cfg.WitnessEnabled() {
		coord, peers, err = startCoordinator(ctx, cfg, ledgerBus)
		if err != nil {
			return errors.Wrap(err, "start coordinator")
		}
		defer coord.Stop()
		mux.HandleFunc("/witness", peers.ServeWS)
	} else {
		logger.Info("ACCOUNT/ACTIVE_SIGNING_KEY not set, running without round coordinator")
	}

	server := &http.Server{Addr: cfg.RPCAddr, Handler: mux}
	go func() {
		logger.Info("rpc listening", "addr", cfg.RPCAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server stopped", "err", err)
		}
	}()

	waitForSignal()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore picks the Mongo-backed store when the config names a URL and
// falls back to the in-memory store otherwise, matching spec.md §1's
// "document store is an external collaborator" (Mongo in production,
// Memory for a standalone/test node).
func openStore(cfg config.Config) (store.Store, error) {
	if cfg.MongoURL == "" {
		return store.NewMemory(), nil
	}
	return store.NewMongo(cfg.MongoURL, cfg.ChainID)
}

func runBlockProducer(l *ledger.Ledger, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if _, err := l.ProduceBlock(now); err != nil {
				logger.Error("produce block", "err", err)
			}
		}
	}
}

func jwtSecretFor(cfg config.Config) []byte {
	if cfg.ActiveSigningKey == "" {
		return nil
	}
	return []byte(cfg.ActiveSigningKey)
}

func startCoordinator(ctx *cli.Context, cfg config.Config, b bus.Bus) (*coordinator.Coordinator, *coordinator.PeerManager, error) {
	signingKey, err := loadSigningKey(ctx, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load signing key")
	}

	scheduleReader := schedule.NewBusReader(b)
	anchorClient := anchor.NewRoundRobin(splitNonEmpty(cfg.AnchorEndpoints), &http.Client{Timeout: 10 * time.Second})

	checkpointPath := filepath.Join(cfg.DataDir, "coordinator")
	checkpoint, err := coordinator.OpenCheckpoint(checkpointPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open checkpoint")
	}

	peers := coordinator.NewPeerManager(cfg.Account, signingKey, scheduleReader)

	coord := coordinator.New(coordinator.Config{
		ChainID:    cfg.ChainID,
		Account:    cfg.Account,
		SigningKey: signingKey,
	}, b, scheduleReader, anchorClient, checkpoint, peers)

	peers.SetCoordinator(coord)

	if err := coord.Start(context.Background()); err != nil {
		return nil, nil, errors.Wrap(err, "start coordinator loop")
	}
	return coord, peers, nil
}

// splitNonEmpty drops empty entries left behind by a trailing
// comma-separated config value.
func splitNonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

func loadSigningKey(ctx *cli.Context, cfg config.Config) (*crypto.PrivateKey, error) {
	keyPath := ctx.String("keypath")
	passphrase := os.Getenv("WITNESS_PASSPHRASE")
	if passphrase == "" {
		return nil, errors.New("WITNESS_PASSPHRASE must be set to unlock the signing key")
	}
	priv, account, err := crypto.DecryptKey(keyPath, passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt keyfile")
	}
	if account != cfg.Account {
		logger.Warn("keyfile account differs from ACCOUNT env var", "keyfile", account, "env", cfg.Account)
	}
	return priv, nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println()
}
