package commands

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/botcash/nostr-bridge/src/botcash"
	"github.com/botcash/nostr-bridge/src/crypto"
	"github.com/botcash/nostr-bridge/src/identity"
	"github.com/botcash/nostr-bridge/src/mapper"
	"github.com/botcash/nostr-bridge/src/nostr"
	"github.com/botcash/nostr-bridge/src/relay"
	"github.com/botcash/nostr-bridge/src/service"
	"github.com/botcash/nostr-bridge/src/store"
)

// NewRunCmd returns the command that starts the bridge
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run bridge",
		PreRunE: loadConfig,
		RunE:    runBridge,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runBridge(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	key, err := crypto.ReadOrGenerateKey(_config.Keyfile())
	if err != nil {
		logger.Error("Cannot read relay key:", err)
		return err
	}
	relayPub := crypto.PublicKeyHex(key.PubKey())
	if npub, err := nostr.HexToNpub(relayPub); err == nil {
		logger.WithField("npub", npub).Info("Relay identity")
	}

	var eventStore store.Store
	if _config.Store {
		eventStore, err = store.NewBadgerStore(_config.DatabaseDir)
		if err != nil {
			logger.Error("Cannot open database:", err)
			return err
		}
	} else {
		eventStore = store.NewInmemStore()
	}
	defer eventStore.Close()

	client := botcash.NewRPCClient(_config.RPCURL, _config.RPCUser, _config.RPCPassword, logger)
	if info, err := client.GetBlockchainInfo(); err == nil {
		logger.WithFields(logrus.Fields{
			"chain":  info.Chain,
			"blocks": info.Blocks,
		}).Info("Connected to Botcash node")
	} else {
		logger.WithError(err).Warn("Botcash node unreachable, bridging will fail until it comes back")
	}

	identityService := identity.NewService(eventStore, client, logger)
	protocolMapper := mapper.NewMapper(_config.ConversionRate, logger)

	engine := relay.NewRelay(
		relay.Config{
			AllowedKinds:       _config.AllowedKinds,
			RateLimitPerMinute: _config.RateLimit,
			MaxReplay:          _config.MaxReplay,
			PollInterval:       _config.PollInterval,
			FeedLimit:          _config.FeedLimit,
			MaxBridgeRetries:   _config.MaxBridgeRetries,
		},
		eventStore,
		identityService,
		protocolMapper,
		client,
		logger,
	)
	engine.Start()
	defer engine.Shutdown()

	if !_config.NoService {
		apiServer := service.NewService(_config.ServiceAddr, engine, identityService, logger)
		go apiServer.Serve()
	}

	wsServer := &http.Server{Addr: _config.BindAddr, Handler: engine}
	go func() {
		logger.WithField("bind_address", _config.BindAddr).Info("Serving relay websocket")
		if err := wsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error(err)
		}
	}()

	// Run until interrupted.
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh

	logger.Info("Shutting down")
	wsServer.Close()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Duplicate log output to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Relay
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the websocket relay")
	cmd.Flags().IntSlice("kinds", _config.AllowedKinds, "Accepted event kinds")
	cmd.Flags().Int("rate-limit", _config.RateLimit, "Max events per pubkey per minute")
	cmd.Flags().Int("max-replay", _config.MaxReplay, "Max stored events replayed per subscription")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP API service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Botcash node
	cmd.Flags().String("rpc-url", _config.RPCURL, "Botcash node JSON-RPC URL")
	cmd.Flags().String("rpc-user", _config.RPCUser, "Botcash RPC username")
	cmd.Flags().String("rpc-password", _config.RPCPassword, "Botcash RPC password")
	cmd.Flags().String("bridge-address", _config.BridgeAddress, "Botcash address for sponsored transactions")

	// Bridging
	cmd.Flags().Duration("poll-interval", _config.PollInterval, "Botcash feed poll period")
	cmd.Flags().Int("feed-limit", _config.FeedLimit, "Posts fetched per feed poll")
	cmd.Flags().Int("max-bridge-retries", _config.MaxBridgeRetries, "Max cross-post attempts per transaction")
	cmd.Flags().Float64("conversion-rate", _config.ConversionRate, "BCASH value of one satoshi")
	cmd.Flags().Bool("sponsor", _config.SponsorNewUsers, "Sponsor transaction fees for new users")
	cmd.Flags().Int("max-sponsored", _config.MaxSponsoredPerDay, "Max sponsored transactions per day")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":          _config.DataDir,
		"BindAddr":         _config.BindAddr,
		"ServiceAddr":      _config.ServiceAddr,
		"RPCURL":           _config.RPCURL,
		"AllowedKinds":     _config.AllowedKinds,
		"RateLimit":        _config.RateLimit,
		"MaxReplay":        _config.MaxReplay,
		"PollInterval":     _config.PollInterval,
		"FeedLimit":        _config.FeedLimit,
		"MaxBridgeRetries": _config.MaxBridgeRetries,
		"ConversionRate":   _config.ConversionRate,
		"Store":            _config.Store,
		"LogLevel":         _config.LogLevel,
		"Moniker":          _config.Moniker,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/botcash-nostr.toml (.json, .yaml also work)
	viper.SetConfigName("botcash-nostr")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
