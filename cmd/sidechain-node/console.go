package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	log "gopkg.in/inconshreveable/log15.v2"
	"gopkg.in/urfave/cli.v1"

	"github.com/fairledger/sidechain/bus"
	"github.com/fairledger/sidechain/config"
	"github.com/fairledger/sidechain/core/ledger"
	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/executor"
)

var consoleCommand = cli.Command{
	Name:   "console",
	Usage:  "open a read-only admin console against the node's ledger",
	Action: runConsole,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to the node's TOML configuration file",
		},
	},
}

// runConsole opens the same Ledger/Store the node runs, grounded on the
// teacher's wizard.go interactive-prompt pattern (github.com/peterh/liner
// over a raw bufio scanner), but scoped to read-only chain inspection:
// no block production, no coordinator, no contract execution.
func runConsole(ctx *cli.Context) error {
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

	exec := executor.New(st, 0)
	l, err := ledger.New(cfg.DataDir, cfg.ChainID, st, exec)
	if err != nil {
		return errors.Wrap(err, "build ledger")
	}
	if err := l.Start(); err != nil {
		return errors.Wrap(err, "start ledger")
	}
	defer l.Stop()

	b := bus.NewLedgerBus(l, st)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("sidechain-node console. Commands: getblock <n>, getlatest, findintable <contract> <table>, exit")
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			break
		}
		line.AppendHistory(input)
		if !dispatchCommand(b, input) {
			break
		}
	}
	return nil
}

func dispatchCommand(b bus.Bus, input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "exit", "quit":
		return false
	case "getblock":
		if len(fields) != 2 {
			fmt.Println("usage: getblock <n>")
			return true
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Println("invalid block number:", err)
			return true
		}
		printBlock(b, n)
	case "getlatest":
		printLatestBlock(b)
	case "findintable":
		if len(fields) != 3 {
			fmt.Println("usage: findintable <contract> <table>")
			return true
		}
		printTable(b, fields[1], fields[2])
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return true
}

func printBlock(b bus.Bus, n uint64) {
	block, ok, err := b.GetBlock(n)
	if err != nil {
		log.Error("getblock", "err", err)
		return
	}
	if !ok {
		fmt.Println("no such block")
		return
	}
	printJSON(block)
}

func printLatestBlock(b bus.Bus) {
	block, ok, err := b.GetLatestBlock()
	if err != nil {
		log.Error("getlatest", "err", err)
		return
	}
	if !ok {
		fmt.Println("chain is empty")
		return
	}
	printJSON(block)
}

func printTable(b bus.Bus, contract, table string) {
	docs, err := b.FindInTable(contract, table, store.Document{})
	if err != nil {
		log.Error("findintable", "err", err)
		return
	}
	printJSON(docs)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println("marshal error:", err)
		return
	}
	fmt.Println(string(data))
}
