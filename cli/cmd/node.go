package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/MiguelVN7/Mini-Blockchain/api"
	"github.com/MiguelVN7/Mini-Blockchain/core"
	"github.com/MiguelVN7/Mini-Blockchain/core/consensus"
)

func openStore(backend, dbPath string) (consensus.StateStore, error) {
	switch backend {
	case "", "sqlite":
		store, err := consensus.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, err
		}
		_, err = store.DB().Exec("PRAGMA journal_mode = WAL;")
		if err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case "pebble":
		return consensus.NewPebbleStore(dbPath)
	case "memory":
		return consensus.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q, must be one of (sqlite, pebble, memory)", backend)
	}
}

// RunNode serves the consensus API until interrupted.
func RunNode(cmdCtx *cli.Context) error {
	port := cmdCtx.Int("port")
	dbPath := cmdCtx.String("db")
	backend := cmdCtx.String("store")
	scheme := cmdCtx.String("crypto")
	logger := core.NewLogger("node", "")

	crypto, err := consensus.NewCryptoProvider(scheme)
	if err != nil {
		return err
	}
	store, err := openStore(backend, dbPath)
	if err != nil {
		return err
	}

	engine, err := consensus.NewEngine(consensus.Config{
		Store:  store,
		Crypto: crypto,
		OnTurnAdvanced: func(c consensus.Commit) {
			logger.Printf("Turn %d closed by %s, block %d\n", c.Turn, c.LeaderID, c.BlockIndex)
		},
	})
	if err != nil {
		store.Close()
		return err
	}
	defer engine.Close()

	for _, nodeID := range cmdCtx.StringSlice("readmit") {
		if err := engine.Readmit(nodeID); err != nil {
			return err
		}
	}

	server, err := api.NewServer(engine, port, scheme)
	if err != nil {
		return err
	}

	// Handle process signals.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Printf("Shutdown: %s\n", err)
		}
	}()

	return server.Start()
}
