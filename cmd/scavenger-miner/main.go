// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command scavenger-miner runs the mining orchestrator as a standalone
// process: it loads configuration, wires every component, and drives
// the orchestrator until the challenge window closes or it is asked to
// shut down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"scavenger-miner/internal/config"
	"scavenger-miner/internal/devfee"
	"scavenger-miner/internal/hashengine"
	"scavenger-miner/internal/log"
	"scavenger-miner/internal/model"
	"scavenger-miner/internal/orchestrator"
	"scavenger-miner/internal/receipts"
	"scavenger-miner/internal/scavengerclient"
	"scavenger-miner/internal/status"
)

const logRotatorMaxRolls = 10

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := log.InitLogRotator(filepath.Join(cfg.LogDir, "scavenger-miner.log"), logRotatorMaxRolls); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := log.SetLogLevels(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	mainLog := log.Logger(log.SubsystemOrchestrator)

	engine, closeEngine, err := buildHashEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct hash engine: %w", err)
	}
	defer closeEngine()

	store, err := receipts.Open(
		filepath.Join(cfg.DataDir, "receipts.jsonl"),
		filepath.Join(cfg.DataDir, "errors.jsonl"),
	)
	if err != nil {
		return fmt.Errorf("failed to open receipts store: %w", err)
	}

	fee, err := devfee.New(
		filepath.Join(cfg.DataDir, "devfee.db"),
		cfg.DevFeeURL,
		devfee.MainnetPrefixes,
		&http.Client{Timeout: 10 * time.Second},
	)
	if err != nil {
		return fmt.Errorf("failed to open dev-fee cache: %w", err)
	}
	defer fee.Close()
	if cfg.DevFeeDisabled {
		if err := fee.SetEnabled(false); err != nil {
			mainLog.Warnf("failed to persist dev-fee disable: %v", err)
		}
	}

	scav := scavengerclient.New(cfg.ScavengerBaseURL, &http.Client{})

	book, err := loadAddressBook(cfg.AddressesFile)
	if err != nil {
		return fmt.Errorf("failed to load addresses file %s: %w", cfg.AddressesFile, err)
	}

	orch := orchestrator.New(cfg, engine, scav, store, fee, book.walletAddresses, book.register(scav))

	var statusServer *status.Server
	if cfg.StatusListen != "" {
		statusServer, err = status.New(cfg.StatusListen, orch.Coordination())
		if err != nil {
			return fmt.Errorf("failed to start status listener: %w", err)
		}
		orch.SetObserver(func(e orchestrator.Event) { statusServer.Broadcast(e) })
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		mainLog.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	var wg sync.WaitGroup
	if statusServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := statusServer.Serve(ctx); err != nil && err != context.Canceled {
				mainLog.Errorf("status server exited: %v", err)
			}
		}()
	}

	mainLog.Infof("scavenger-miner starting, data dir %s", cfg.DataDir)
	runErr := orch.Run(ctx)
	wg.Wait()

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// buildHashEngine selects LocalEngine or GRPCEngine depending on
// whether a sidecar address was configured, per spec.md §6.3.
func buildHashEngine(cfg *config.Config) (hashengine.Engine, func(), error) {
	if cfg.HashEngineAddr == "" {
		return hashengine.NewLocalEngine(), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	engine, err := hashengine.DialGRPCEngine(ctx, cfg.HashEngineAddr)
	if err != nil {
		return nil, nil, err
	}
	return engine, func() { engine.Close() }, nil
}

// addressRecord is the on-disk shape of one entry in the addresses file.
// Key derivation and signing happen outside this module (spec.md §1);
// this is the narrowest bridge that lets the entrypoint drive the
// orchestrator without owning wallet logic itself.
type addressRecord struct {
	Index        int    `json:"index"`
	Bech32       string `json:"bech32"`
	PublicKeyHex string `json:"public_key"`
	SignatureHex string `json:"signature"`
	Registered   bool   `json:"registered"`
}

type addressBook struct {
	mu      sync.Mutex
	records map[string]addressRecord
}

func loadAddressBook(path string) (*addressBook, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &addressBook{records: make(map[string]addressRecord)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var recs []addressRecord
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		return nil, err
	}
	book := &addressBook{records: make(map[string]addressRecord, len(recs))}
	for _, r := range recs {
		book.records[r.Bech32] = r
	}
	return book, nil
}

func (b *addressBook) walletAddresses() []model.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Address, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, model.Address{
			Index:      r.Index,
			Bech32:     r.Bech32,
			PublicKey:  r.PublicKeyHex,
			Registered: r.Registered,
		})
	}
	return out
}

// register returns a registrar.Registerer closure bound to scav; it
// looks up the pre-computed signature for addr from the address book
// rather than signing anything itself.
func (b *addressBook) register(scav *scavengerclient.Client) func(ctx context.Context, addr model.Address) error {
	return func(ctx context.Context, addr model.Address) error {
		b.mu.Lock()
		rec, ok := b.records[addr.Bech32]
		b.mu.Unlock()
		if !ok {
			return fmt.Errorf("no signature on file for address %s", addr.Bech32)
		}
		if err := scav.Register(ctx, addr.Bech32, rec.SignatureHex, rec.PublicKeyHex); err != nil {
			return err
		}
		b.mu.Lock()
		rec.Registered = true
		b.records[addr.Bech32] = rec
		b.mu.Unlock()
		return nil
	}
}
