// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the orchestrator's on-disk configuration file and
// merges it with command-line flags, following the go-flags
// INI-file-plus-flags convention used across the decred family of
// daemons this module is descended from.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// GroupingMode selects how the orchestrator partitions workers across
// addresses in startMining.
type GroupingMode string

const (
	// GroupingAuto lets the orchestrator pick a grouping based on the
	// total worker count (spec.md §4.8).
	GroupingAuto GroupingMode = "auto"
	// GroupingAllOnOne puts every worker on a single address at a time.
	GroupingAllOnOne GroupingMode = "all-on-one"
	// GroupingGrouped fixes the worker count per address via
	// WorkersPerAddress.
	GroupingGrouped GroupingMode = "grouped"
)

const (
	defaultConfigFilename   = "scavenger-miner.conf"
	defaultWorkerThreads    = 4
	defaultBatchSize        = 300
	defaultWorkersPerAddr   = 1
	defaultGroupingMode     = GroupingAuto
	defaultMaxSubmitFails   = 1
	defaultDevFeeRatio      = 17
	defaultScavengerBaseURL = "https://scavenger.prod.gd.midnighttge.io"
)

// Config holds every tunable of the orchestrator configuration file
// described in spec.md §6.4, plus the process-level settings (log level,
// data directory, service endpoints) a complete binary needs.
type Config struct {
	// ConfigFile is not part of the persisted config file itself; it is
	// the path go-flags should read INI-style defaults from.
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file" no-ini:"true"`

	DataDir  string `short:"b" long:"datadir" description:"Directory to store receipts and dev-fee cache"`
	LogDir   string `long:"logdir" description:"Directory to log output"`
	LogLevel string `long:"loglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`

	WorkerThreads     int          `long:"workerthreads" description:"Number of concurrent mining workers"`
	BatchSize         int          `long:"batchsize" description:"Number of nonces hashed per batch per worker"`
	WorkerGrouping    GroupingMode `long:"workergrouping" description:"Worker grouping mode: auto, all-on-one, grouped"`
	WorkersPerAddress int          `long:"workersperaddress" description:"Workers per address when workergrouping=grouped"`

	MaxSubmissionFailures int `long:"maxsubmissionfailures" description:"Submission failures tolerated before abandoning an address for a challenge"`

	ScavengerBaseURL string `long:"scavengerurl" description:"Base URL of the scavenger challenge service"`
	DevFeeURL        string `long:"devfeeurl" description:"Dev-fee address pool endpoint"`
	DevFeeRatio      int    `long:"devfeeratio" description:"Target 1-in-N density of dev-fee solutions (validated only; the dev-fee rotator uses the ratio stored in its cache, 17 by default)"`
	DevFeeDisabled   bool   `long:"nodevfee" description:"Disable developer-fee mining; the setting is saved in the dev-fee cache and stays in effect on later runs"`

	HashEngineAddr string `long:"hashengineaddr" description:"gRPC address of the hash engine driver sidecar"`

	StatusListen string `long:"statuslisten" description:"Address for the optional local status HTTP/WebSocket listener"`

	AddressesFile string `long:"addressesfile" description:"Path to a JSON file listing the wallet's mining addresses"`
}

// Default returns a Config populated with the factory defaults, before
// any file or flag overrides are applied.
func Default() *Config {
	return &Config{
		ConfigFile:            defaultConfigPath(),
		DataDir:               defaultDataDir(),
		LogDir:                filepath.Join(defaultDataDir(), "logs"),
		LogLevel:              "info",
		WorkerThreads:         defaultWorkerThreads,
		BatchSize:             defaultBatchSize,
		WorkerGrouping:        defaultGroupingMode,
		WorkersPerAddress:     defaultWorkersPerAddr,
		MaxSubmissionFailures: defaultMaxSubmitFails,
		ScavengerBaseURL:      defaultScavengerBaseURL,
		DevFeeRatio:           defaultDevFeeRatio,
		AddressesFile:         filepath.Join(defaultDataDir(), "addresses.json"),
		StatusListen:          "",
	}
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func defaultDataDir() string {
	return filepath.Join(defaultHomeDir(), ".scavenger-miner")
}

func defaultConfigPath() string {
	return filepath.Join(defaultDataDir(), defaultConfigFilename)
}

// Load parses the configuration file (if present) and then command-line
// arguments over it, returning the merged Config. Missing config files
// are not an error; a caller starting fresh simply gets the defaults.
func Load(args []string) (*Config, error) {
	cfg := Default()

	preCfg := *cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := preParser.ParseArgs(args); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}
	if preCfg.ConfigFile != "" {
		cfg.ConfigFile = preCfg.ConfigFile
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if _, err := parser.ParseArgs(args); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerThreads < 1 {
		return fmt.Errorf("workerthreads must be >= 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batchsize must be >= 1")
	}
	switch c.WorkerGrouping {
	case GroupingAuto, GroupingAllOnOne, GroupingGrouped:
	default:
		return fmt.Errorf("unknown workergrouping %q", c.WorkerGrouping)
	}
	if c.WorkerGrouping == GroupingGrouped && c.WorkersPerAddress < 1 {
		return fmt.Errorf("workersperaddress must be >= 1 in grouped mode")
	}
	if c.MaxSubmissionFailures < 1 {
		return fmt.Errorf("maxsubmissionfailures must be >= 1")
	}
	if c.DevFeeRatio < 2 {
		return fmt.Errorf("devfeeratio must be >= 2")
	}
	return nil
}
