package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botcash/nostr-bridge/src/version"
)

// VersionCmd displays the version of the botcash-nostr binary
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}
