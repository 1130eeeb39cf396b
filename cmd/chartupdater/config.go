// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/caarlos0/env/v6"
	flags "github.com/jessevdk/go-flags"

	"github.com/explorercharts/chartdata/updater"
)

const (
	defaultConfigFilename = "chartupdater.conf"
	defaultLogFilename    = "chartupdater.log"
	defaultLogLevel       = "info"
	defaultMaxLogRolls    = 3

	// Names of the updaters for --update.
	updateNetwork     = "network"
	updateMasternodes = "masternodes"
	updateGithub      = "github"
)

var (
	// The plot files are shared with the chartdata server.
	defaultHomeDir  = btcutil.AppDataDir("chartdata", false)
	defaultNodeServ = "127.0.0.1:18049"
	defaultNodeUser = "rpc"
	allUpdaters     = []string{updateNetwork, updateMasternodes, updateGithub}
)

type config struct {
	HomeDir     string `short:"A" long:"appdata" description:"Path to the chartdata home directory" env:"CHARTDATA_APPDATA_DIR"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file" env:"CHARTUPDATER_CONFIG_FILE"`
	DataDir     string `short:"b" long:"datadir" description:"Directory of the plot data files (default is {appdata}/data)" env:"CHARTDATA_DATA_DIR"`
	LogDir      string `long:"logdir" description:"Directory to log output (default is {appdata}/logs)" env:"CHARTUPDATER_LOG_DIR"`
	MaxLogRolls int    `long:"maxlogrolls" description:"Maximum number of rolled log files to keep" env:"CHARTUPDATER_MAX_LOG_ROLLS"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}" env:"CHARTUPDATER_LOG_LEVEL"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`

	Update   []string      `short:"u" long:"update" description:"Updaters to run {network, masternodes, github}. May be repeated. Default is all." env:"CHARTUPDATER_UPDATE" env-delim:","`
	Interval time.Duration `short:"i" long:"interval" description:"Run the updaters every interval until interrupted. Runs once when 0." env:"CHARTUPDATER_INTERVAL"`

	// Node RPC
	NodeServ      string `long:"nodeserv" description:"Hostname/IP and port of the node RPC server" env:"CHARTUPDATER_NODE_SERV"`
	NodeUser      string `long:"nodeuser" description:"Node RPC user name" env:"CHARTUPDATER_NODE_USER"`
	NodePass      string `long:"nodepass" description:"Node RPC password" env:"CHARTUPDATER_NODE_PASS"`
	NodeCert      string `long:"nodecert" description:"File containing the node RPC certificate" env:"CHARTUPDATER_NODE_CERT"`
	NodeEnableTLS bool   `long:"nodetls" description:"Connect to the node RPC server with TLS" env:"CHARTUPDATER_NODE_TLS"`
	TestNet       bool   `long:"testnet" description:"The node is on the test network" env:"CHARTUPDATER_USE_TESTNET"`

	// Developer activity
	GithubToken string `long:"githubtoken" description:"GitHub API token, for a higher request limit" env:"CHARTUPDATER_GITHUB_TOKEN"`
	GithubRepo  string `long:"githubrepo" description:"GitHub repository as owner/name" env:"CHARTUPDATER_GITHUB_REPO"`
	CoinID      string `long:"coinid" description:"CoinGecko coin id for the developer history" env:"CHARTUPDATER_COIN_ID"`
}

var defaultConfig = config{
	HomeDir:     defaultHomeDir,
	ConfigFile:  filepath.Join(defaultHomeDir, defaultConfigFilename),
	MaxLogRolls: defaultMaxLogRolls,
	DebugLevel:  defaultLogLevel,
	NodeServ:    defaultNodeServ,
	NodeUser:    defaultNodeUser,
	GithubRepo:  updater.DefaultRepo,
	CoinID:      updater.DefaultCoinID,
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

// updaters returns the validated updater names, all of them if none were
// selected.
func (cfg *config) updaters() ([]string, error) {
	if len(cfg.Update) == 0 {
		return allUpdaters, nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, name := range cfg.Update {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case updateNetwork, updateMasternodes, updateGithub:
		default:
			return nil, fmt.Errorf("unknown updater %q, expected one of %v", name, allUpdaters)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// needsNode indicates if any selected updater reads from the node.
func needsNode(names []string) bool {
	for _, name := range names {
		if name != updateGithub {
			return true
		}
	}
	return false
}

// loadConfig reads the config file, the environment and the command line, in
// increasing order of precedence.
func loadConfig() (*config, error) {
	cfg := defaultConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.HomeDir != defaultHomeDir && cfg.ConfigFile == defaultConfig.ConfigFile {
		cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
	}
	explicitConfig := cfg.ConfigFile != filepath.Join(cfg.HomeDir, defaultConfigFilename)

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := preParser.Parse(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			preParser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		preParser.WriteHelp(os.Stderr)
		return nil, err
	}
	if preCfg.ShowVersion {
		fmt.Printf("chartupdater version %s\n", Version())
		os.Exit(0)
	}
	if preCfg.ConfigFile != cfg.ConfigFile {
		explicitConfig = true
	}

	parser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || explicitConfig {
			return nil, fmt.Errorf("unable to parse configuration file: %w", err)
		}
	}
	if err = env.Parse(&cfg); err != nil {
		return nil, err
	}
	if _, err = parser.Parse(); err != nil {
		return nil, err
	}

	cfg.HomeDir = cleanAndExpandPath(cfg.HomeDir)
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.HomeDir, "data")
	}
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.HomeDir, "logs")
	}
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.NodeCert = cleanAndExpandPath(cfg.NodeCert)

	if _, err = cfg.updaters(); err != nil {
		return nil, err
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("invalid interval %v", cfg.Interval)
	}
	if cfg.GithubRepo != "" && strings.Count(cfg.GithubRepo, "/") != 1 {
		return nil, fmt.Errorf("invalid githubrepo %q, expected owner/name", cfg.GithubRepo)
	}

	if err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename), cfg.MaxLogRolls); err != nil {
		return nil, err
	}
	if err = setLogLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}

	return &cfg, nil
}
