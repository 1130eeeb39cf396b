// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/caarlos0/env/v6"
	"github.com/decred/slog"
	flags "github.com/jessevdk/go-flags"
	"golang.org/x/text/language"

	"github.com/explorercharts/chartdata/dataset"
)

const (
	defaultConfigFilename = "chartdata.conf"
	defaultLogFilename    = "chartdata.log"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultCacheFilename  = "chartdata.gob"
	defaultLogLevel       = "info"
	defaultMaxLogRolls    = 3
)

var (
	defaultHomeDir = btcutil.AppDataDir("chartdata", false)

	defaultHost        = "localhost"
	defaultPort        = "7778"
	defaultAPIProto    = "http"
	defaultIndentJSON  = "   "
	defaultServerHead  = "chartdata"
	defaultRateLimit   = float64(1 << 8)
	defaultChartCache  = 1024
	defaultChartLocale = "en-US"
)

type config struct {
	// General application behavior
	HomeDir      string `short:"A" long:"appdata" description:"Path to application home directory" env:"CHARTDATA_APPDATA_DIR"`
	ConfigFile   string `short:"C" long:"configfile" description:"Path to configuration file" env:"CHARTDATA_CONFIG_FILE"`
	DataDir      string `short:"b" long:"datadir" description:"Directory of the plot data files (default is {appdata}/data)" env:"CHARTDATA_DATA_DIR"`
	LogDir       string `long:"logdir" description:"Directory to log output (default is {appdata}/logs)" env:"CHARTDATA_LOG_DIR"`
	MaxLogRolls  int    `long:"maxlogrolls" description:"Maximum number of rolled and compressed log files to keep" env:"CHARTDATA_MAX_LOG_ROLLS"`
	ShowVersion  bool   `short:"V" long:"version" description:"Display version information and exit"`
	DebugLevel   string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}, or SUBSYS=level,... pairs. Use show to list the subsystems" env:"CHARTDATA_LOG_LEVEL"`
	Quiet        bool   `short:"q" long:"quiet" description:"Easy way to set debuglevel to error" env:"CHARTDATA_QUIET"`
	CPUProfile   string `long:"cpuprofile" description:"File for CPU profiling." env:"CHARTDATA_CPU_PROFILE_PATH"`
	UseGops      bool   `short:"g" long:"gops" description:"Run with gops diagnostics agent listening. See github.com/google/gops for more information." env:"CHARTDATA_USE_GOPS"`
	ServerHeader string `long:"server-http-header" description:"Set the HTTP response header Server key value. Valid values are \"off\", or a custom string." env:"CHARTDATA_SERVER_HEADER"`

	// API
	APIProto    string  `long:"apiproto" description:"Protocol for API (http or https)" env:"CHARTDATA_ENABLE_HTTPS"`
	APIListen   string  `long:"apilisten" description:"Listen address for API. default localhost:7778" env:"CHARTDATA_LISTEN_URL"`
	TLSCert     string  `long:"tlscert" description:"TLS certificate file for https (default is {appdata}/chartdata.cert)" env:"CHARTDATA_TLS_CERT"`
	TLSKey      string  `long:"tlskey" description:"TLS key file for https (default is {appdata}/chartdata.key)" env:"CHARTDATA_TLS_KEY"`
	IndentJSON  string  `long:"indentjson" description:"String for JSON indentation (default is \"   \"), when indentation is requested via URL query." env:"CHARTDATA_INDENT_JSON"`
	UseRealIP   bool    `long:"userealip" description:"Use the RealIP middleware from the go-chi/chi/middleware package to get the client's real IP from the X-Forwarded-For or X-Real-IP headers, in that order." env:"CHARTDATA_USE_REAL_IP"`
	CompressAPI bool    `long:"compress-api" description:"Use compression for chart frames, which are large JSON responses." env:"CHARTDATA_COMPRESS_API"`
	RateLimit   float64 `long:"ratelimit" description:"Maximum number of requests per second per client to the API and websocket (0 disables)." env:"CHARTDATA_RATE_LIMIT"`

	// Data I/O
	NetworkFile    string `long:"networkfile" description:"Network statistics plot file name in datadir" env:"CHARTDATA_NETWORK_FILE"`
	SupplyFile     string `long:"supplyfile" description:"Supply plot file name in datadir" env:"CHARTDATA_SUPPLY_FILE"`
	GithubFile     string `long:"githubfile" description:"Developer activity plot file name in datadir" env:"CHARTDATA_GITHUB_FILE"`
	MasternodeFile string `long:"mnfile" description:"Masternode payments plot file name in datadir" env:"CHARTDATA_MN_FILE"`
	NoWatch        bool   `long:"nowatch" description:"Do not reload the plot files when they change." env:"CHARTDATA_NO_WATCH"`
	CacheFile      string `long:"cachefile" description:"Dataset dump file, restored for missing plot files at startup and written at shutdown (default is {appdata}/chartdata.gob). Use \"off\" to disable." env:"CHARTDATA_CACHE_FILE"`
	ChartCache     int    `long:"chartcache" description:"Number of chart responses kept in memory." env:"CHARTDATA_CHART_CACHE"`
	ChartsFile     string `long:"chartsfile" description:"YAML or JSON file of chart definitions overriding the built-in charts" env:"CHARTDATA_CHARTS_FILE"`
	Target         int    `long:"target" description:"Number of points a chart range is reduced to, for charts without their own target." env:"CHARTDATA_TARGET"`
	Locale         string `long:"locale" description:"Locale of the time axis labels, e.g. en-US or de" env:"CHARTDATA_LOCALE"`
}

var (
	defaultConfig = config{
		HomeDir:      defaultHomeDir,
		ConfigFile:   filepath.Join(defaultHomeDir, defaultConfigFilename),
		DebugLevel:   defaultLogLevel,
		MaxLogRolls:  defaultMaxLogRolls,
		ServerHeader: defaultServerHead,
		APIProto:     defaultAPIProto,
		IndentJSON:   defaultIndentJSON,
		RateLimit:    defaultRateLimit,
		ChartCache:   defaultChartCache,
		Locale:       defaultChartLocale,
	}
)

// cleanAndExpandPath expands environment variables and leading ~ in the passed
// path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser to
	// otheruser's home directory. On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	if userName == "" {
		homeDir, _ = os.UserHomeDir()
	}
	if homeDir == "" {
		// Fall back to the parent of the default app data directory, which
		// is the home directory on most systems.
		homeDir = filepath.Dir(defaultHomeDir)
	}

	return filepath.Join(homeDir, path)
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := slog.LevelFromString(logLevel)
	return ok
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeNetworkAddress checks for a valid local network address format and
// adds default host and port if not present. Invalidates addresses that
// include a protocol identifier.
func normalizeNetworkAddress(a, defaultHost, defaultPort string) (string, error) {
	if strings.Contains(a, "://") {
		return a, fmt.Errorf("address %s contains a protocol identifier, which is not allowed", a)
	}
	if a == "" {
		return defaultHost + ":" + defaultPort, nil
	}
	host, port, err := net.SplitHostPort(a)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && addrErr.Err == "missing port in address" {
			normalized := a + ":" + defaultPort
			host, port, err = net.SplitHostPort(normalized)
			if err != nil {
				return a, fmt.Errorf("unable to address %s after port resolution: %w", normalized, err)
			}
		} else {
			return a, fmt.Errorf("unable to normalize address %s: %w", a, err)
		}
	}
	if host == "" {
		host = defaultHost
	}
	if port == "" {
		port = defaultPort
	}
	return host + ":" + port, nil
}

// definitions returns the plot file definitions with the configured file
// names.
func (cfg *config) definitions() []*dataset.Definition {
	files := map[string]string{
		dataset.Network:     cfg.NetworkFile,
		dataset.Supply:      cfg.SupplyFile,
		dataset.Github:      cfg.GithubFile,
		dataset.Masternodes: cfg.MasternodeFile,
	}
	defs := dataset.DefaultDefinitions()
	for _, def := range defs {
		if file := files[def.ID]; file != "" {
			def.File = file
		}
	}
	return defs
}

// loadConfig initializes and parses the config using a config file, the
// environment and command line options, which take precedence in that order.
func loadConfig() (*config, error) {
	loadConfigError := func(err error) (*config, error) {
		return nil, err
	}

	// Default config.
	cfg := defaultConfig
	defaultConfigNow := defaultConfig

	// Load settings from environment variables.
	if err := env.Parse(&cfg); err != nil {
		return loadConfigError(err)
	}

	// If appdata was specified but not the config file, change the config file
	// path, and record this as the new default config file location.
	if defaultHomeDir != cfg.HomeDir && defaultConfigNow.ConfigFile == cfg.ConfigFile {
		cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		// Update the defaultConfig to avoid an error if the config file in this
		// "new default" location does not exist.
		defaultConfigNow.ConfigFile = cfg.ConfigFile
	}

	// Pre-parse the command line options to see if an alternative config file
	// or the version flag was specified. Override any environment variables
	// with parsed command line flags.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	_, flagerr := preParser.Parse()

	if flagerr != nil {
		e, ok := flagerr.(*flags.Error)
		if !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		if ok && e.Type == flags.ErrHelp {
			preParser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		return loadConfigError(flagerr)
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s, %s-%s)\n", appName,
			Version(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// If a non-default appdata folder is specified on the command line, it may
	// be necessary adjust the config file location. If the the config file
	// location was not specified on the command line, the default location
	// should be under the non-default appdata directory. However, if the config
	// file was specified on the command line, it should be used regardless of
	// the appdata directory.
	if defaultHomeDir != preCfg.HomeDir && defaultConfigNow.ConfigFile == preCfg.ConfigFile {
		preCfg.ConfigFile = filepath.Join(preCfg.HomeDir, defaultConfigFilename)
		defaultConfigNow.ConfigFile = preCfg.ConfigFile
	}

	// Config file name for logging.
	configFile := "NONE (defaults)"

	// Parse config file if it exists.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return loadConfigError(err)
		}
		// Missing config files are only an error when set explicitly.
		if preCfg.ConfigFile != defaultConfigNow.ConfigFile {
			configFileError = err
		}
	} else {
		configFile = preCfg.ConfigFile
	}

	// Environment variables take precedence over the config file.
	if err = env.Parse(&cfg); err != nil {
		return loadConfigError(err)
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return loadConfigError(err)
	}

	// Warn about missing config file after the final command line parse
	// succeeds. This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		fmt.Printf("%v\n", configFileError)
		return loadConfigError(configFileError)
	}

	// Paths under the home directory.
	cfg.HomeDir = cleanAndExpandPath(cfg.HomeDir)
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
	}
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
	}
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	switch cfg.CacheFile {
	case "off":
		cfg.CacheFile = ""
	case "":
		cfg.CacheFile = filepath.Join(cfg.HomeDir, defaultCacheFilename)
	default:
		cfg.CacheFile = cleanAndExpandPath(cfg.CacheFile)
	}
	cfg.ChartsFile = cleanAndExpandPath(cfg.ChartsFile)
	cfg.CPUProfile = cleanAndExpandPath(cfg.CPUProfile)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized, the
	// logger variables may be used.
	if err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename), cfg.MaxLogRolls); err != nil {
		return loadConfigError(err)
	}

	// Parse, validate, and set debug log level(s).
	if cfg.Quiet {
		cfg.DebugLevel = "error"
	}
	if err = parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err = fmt.Errorf("%s: %v", "loadConfig", err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return loadConfigError(err)
	}

	// API listen address.
	cfg.APIListen, err = normalizeNetworkAddress(cfg.APIListen, defaultHost, defaultPort)
	if err != nil {
		return loadConfigError(err)
	}

	switch cfg.APIProto {
	case "http":
	case "https":
		if cfg.TLSCert == "" {
			cfg.TLSCert = filepath.Join(cfg.HomeDir, "chartdata.cert")
		}
		if cfg.TLSKey == "" {
			cfg.TLSKey = filepath.Join(cfg.HomeDir, "chartdata.key")
		}
		cfg.TLSCert = cleanAndExpandPath(cfg.TLSCert)
		cfg.TLSKey = cleanAndExpandPath(cfg.TLSKey)
	default:
		return loadConfigError(fmt.Errorf("invalid apiproto %q, expected http or https", cfg.APIProto))
	}

	// Validate the locale of the time labels.
	if _, err = language.Parse(cfg.Locale); err != nil {
		return loadConfigError(fmt.Errorf("invalid locale %q: %w", cfg.Locale, err))
	}

	if cfg.ChartCache < 0 {
		return loadConfigError(fmt.Errorf("invalid chartcache %d", cfg.ChartCache))
	}
	if cfg.Target < 0 {
		return loadConfigError(fmt.Errorf("invalid target %d", cfg.Target))
	}
	if cfg.RateLimit < 0 {
		return loadConfigError(fmt.Errorf("invalid ratelimit %v", cfg.RateLimit))
	}

	log.Infof("Loaded configuration from %s.", configFile)

	return &cfg, nil
}
