package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/botcash/nostr-bridge/src/common"
	"github.com/botcash/nostr-bridge/src/nostr"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the relay's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultBindAddr           = "127.0.0.1:8080"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultRPCURL             = "http://localhost:8532"
	DefaultRateLimit          = 30
	DefaultMaxReplay          = 100
	DefaultPollInterval       = 30 * time.Second
	DefaultFeedLimit          = 50
	DefaultMaxBridgeRetries   = 3
	DefaultConversionRate     = 0.00000001
	DefaultStore              = false
	DefaultMoniker            = "botcash-nostr"
	DefaultSponsorNewUsers    = true
	DefaultMaxSponsoredPerDay = 100
)

// Config contains all the configuration properties of the bridge.
type Config struct {
	// DataDir is the top-level directory containing bridge configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates log output to a file.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where the websocket relay listens.
	BindAddr string `mapstructure:"listen"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service used for
	// identity linking and stats.
	ServiceAddr string `mapstructure:"service-listen"`

	// RPCURL is the JSON-RPC endpoint of the Botcash node.
	RPCURL string `mapstructure:"rpc-url"`

	// RPCUser is the Botcash RPC username, if auth is enabled.
	RPCUser string `mapstructure:"rpc-user"`

	// RPCPassword is the Botcash RPC password, if auth is enabled.
	RPCPassword string `mapstructure:"rpc-password"`

	// BridgeAddress is the Botcash address used for sponsored transactions.
	BridgeAddress string `mapstructure:"bridge-address"`

	// AllowedKinds is the publish allow-list of event kinds.
	AllowedKinds []int `mapstructure:"kinds"`

	// RateLimit caps accepted events per pubkey per minute.
	RateLimit int `mapstructure:"rate-limit"`

	// MaxReplay caps stored events replayed per subscription request.
	MaxReplay int `mapstructure:"max-replay"`

	// PollInterval is the period of the Botcash feed poll.
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// FeedLimit is the page size of one feed poll.
	FeedLimit int `mapstructure:"feed-limit"`

	// MaxBridgeRetries bounds cross-post attempts per Botcash transaction.
	MaxBridgeRetries int `mapstructure:"max-bridge-retries"`

	// ConversionRate is the BCASH value of one satoshi, used to translate
	// zap amounts.
	ConversionRate float64 `mapstructure:"conversion-rate"`

	// SponsorNewUsers makes the bridge pay transaction fees for new users.
	SponsorNewUsers bool `mapstructure:"sponsor"`

	// MaxSponsoredPerDay caps sponsored transactions per day. Zero means
	// unlimited.
	MaxSponsoredPerDay int `mapstructure:"max-sponsored"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Moniker defines the friendly name of this relay.
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		BindAddr:           DefaultBindAddr,
		ServiceAddr:        DefaultServiceAddr,
		RPCURL:             DefaultRPCURL,
		AllowedKinds:       nostr.DefaultAllowedKinds(),
		RateLimit:          DefaultRateLimit,
		MaxReplay:          DefaultMaxReplay,
		PollInterval:       DefaultPollInterval,
		FeedLimit:          DefaultFeedLimit,
		MaxBridgeRetries:   DefaultMaxBridgeRetries,
		ConversionRate:     DefaultConversionRate,
		SponsorNewUsers:    DefaultSponsorNewUsers,
		MaxSponsoredPerDay: DefaultMaxSponsoredPerDay,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
		Moniker:            DefaultMoniker,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	config.logger.Level = level
	return config
}

// SetDataDir sets the top-level bridge directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "botcash-nostr".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, level := range logrus.AllLevels {
				if level <= c.logger.Level {
					pathMap[level] = c.LogFile
				}
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				new(logrus.JSONFormatter),
			))
		}
	}
	return c.logger.WithField("prefix", "botcash-nostr")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level bridge config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".BotcashNostr")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "BotcashNostr")
		} else {
			return filepath.Join(home, ".botcash-nostr")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
