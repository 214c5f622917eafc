package commands

import (
	"github.com/spf13/cobra"

	"github.com/botcash/nostr-bridge/src/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for the bridge
var RootCmd = &cobra.Command{
	Use:              "botcash-nostr",
	Short:            "Botcash Nostr bridge relay",
	TraverseChildren: true,
}
