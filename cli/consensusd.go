package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MiguelVN7/Mini-Blockchain/cli/cmd"
	"github.com/MiguelVN7/Mini-Blockchain/core"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

func main() {
	urlFlag := &cli.StringFlag{
		Name:    "url",
		Usage:   "Base URL of the consensus node",
		Value:   "http://127.0.0.1:8080",
		EnvVars: []string{"CONSENSUS_URL"},
	}
	cryptoFlag := &cli.StringFlag{
		Name:    "crypto",
		Usage:   "Signature scheme (ecdsa, ed25519, bls, pgp)",
		Value:   consensus.SchemeECDSA,
		EnvVars: []string{"CONSENSUS_CRYPTO"},
	}
	identityFlags := []cli.Flag{
		urlFlag,
		cryptoFlag,
		&cli.StringFlag{
			Name:    "node",
			Usage:   "Node id to act as",
			EnvVars: []string{"CONSENSUS_NODE"},
		},
		&cli.StringFlag{
			Name:    "key",
			Usage:   "Private key of the node (a key file path for pgp)",
			EnvVars: []string{"CONSENSUS_KEY"},
		},
	}
	withIdentity := func(flags ...cli.Flag) []cli.Flag {
		return append(append([]cli.Flag{}, identityFlags...), flags...)
	}
	blockFlags := withIdentity(
		&cli.Uint64Flag{Name: "index", Usage: "Block index", Required: true},
		&cli.StringFlag{Name: "prev", Usage: "Hash of the previous block"},
		&cli.StringFlag{Name: "hash", Usage: "Block hash, derived from the block when empty"},
		&cli.StringFlag{Name: "txs", Usage: "Transactions as a JSON array of objects"},
	)

	app := &cli.App{
		Name:                 "consensusd",
		Usage:                "a stake-weighted leader election node",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:   "node",
				Usage:  "runs the consensus node",
				Action: cmd.RunNode,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Usage:   "The port to run the node on",
						Value:   8080,
						EnvVars: []string{"CONSENSUS_PORT"},
					},
					&cli.StringFlag{
						Name:    "db",
						Usage:   "The path to the consensus database",
						Value:   "consensus.db",
						EnvVars: []string{"CONSENSUS_DB"},
					},
					&cli.StringFlag{
						Name:    "store",
						Usage:   "Storage backend (sqlite, pebble, memory)",
						Value:   "sqlite",
						EnvVars: []string{"CONSENSUS_STORE"},
					},
					cryptoFlag,
					&cli.StringSliceFlag{
						Name:  "readmit",
						Usage: "Re-activate an expelled node on startup",
					},
				},
			},
			{
				Name:   "keygen",
				Usage:  "creates a node key",
				Action: cmd.RunKeygen,
				Flags: []cli.Flag{
					cryptoFlag,
					&cli.StringFlag{Name: "label", Usage: "Label for the key", Value: "node"},
					&cli.StringFlag{Name: "db", Usage: "Also save the key in this database"},
				},
			},
			{
				Name:   "register",
				Usage:  "registers this node",
				Action: cmd.RunRegister,
				Flags: withIdentity(
					&cli.StringFlag{Name: "ip", Usage: "IPv4 address, discovered over STUN when empty"},
					&cli.StringFlag{Name: "stun", Usage: "STUN server used for discovery", Value: core.DefaultSTUNServer},
				),
			},
			{
				Name:   "freeze",
				Usage:  "adds to the frozen stake of this node",
				Action: cmd.RunFreeze,
				Flags: withIdentity(
					&cli.Int64Flag{Name: "tokens", Usage: "Amount to freeze", Required: true},
				),
			},
			{
				Name:   "seed",
				Usage:  "publishes the turn seed as leader",
				Action: cmd.RunSeed,
				Flags: withIdentity(
					&cli.IntFlag{Name: "turn", Usage: "Turn to seed, the current turn by default"},
					&cli.StringFlag{Name: "token", Usage: "Base64 randomness, random when empty"},
				),
			},
			{
				Name:   "vote",
				Usage:  "casts this node's vote",
				Action: cmd.RunVote,
				Flags: withIdentity(
					&cli.StringFlag{Name: "token", Usage: "Vote token, random when empty"},
				),
			},
			{
				Name:   "propose",
				Usage:  "asks whether this node may publish",
				Action: cmd.RunPropose,
				Flags:  blockFlags,
			},
			{
				Name:   "submit",
				Usage:  "submits the block and closes the turn",
				Action: cmd.RunSubmit,
				Flags:  blockFlags,
			},
			{
				Name:   "report",
				Usage:  "accuses a node of fraud",
				Action: cmd.RunReport,
				Flags: withIdentity(
					&cli.StringFlag{Name: "accused", Usage: "Node id to accuse", Required: true},
					&cli.StringFlag{Name: "block-hash", Usage: "Hash of the offending block"},
					&cli.StringFlag{Name: "reason", Usage: "Why the node is accused"},
				),
			},
			{
				Name:   "result",
				Usage:  "prints the vote tally",
				Action: cmd.RunResult,
				Flags:  []cli.Flag{urlFlag},
			},
			{
				Name:   "status",
				Usage:  "prints the turn status",
				Action: cmd.RunStatus,
				Flags:  []cli.Flag{urlFlag},
			},
			{
				Name:   "nodes",
				Usage:  "lists registered nodes",
				Action: cmd.RunNodes,
				Flags: []cli.Flag{
					urlFlag,
					&cli.BoolFlag{Name: "votes", Usage: "Also list the votes of this turn"},
				},
			},
			{
				Name:   "history",
				Usage:  "lists committed turns",
				Action: cmd.RunHistory,
				Flags: []cli.Flag{
					urlFlag,
					&cli.IntFlag{Name: "limit", Usage: "Number of commits, 0 for all", Value: 20},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
