// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the version of figma-mcp, stamped at build time.
var Version = "unset"

func version() string {
	return Version
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of figma-mcp",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("figma-mcp version %s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
