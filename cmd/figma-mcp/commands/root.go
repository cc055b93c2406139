// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"path"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgDir string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "figma-mcp",
	Short: "MCP bridge to Figma",
	Long: `figma-mcp bridges an MCP client to a Figma plugin.

It runs the websocket relay that the plugin connects to, and the MCP stdio
server that issues commands to the plugin through that relay.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default is $HOME/.config/figma-mcp)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgDir == "" {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search for config in $HOME/.config/figma-mcp
		cfgDir = path.Join(home, ".config", "figma-mcp")
	}

	viper.AddConfigPath(cfgDir)
	viper.SetConfigName("figma-mcp")
	viper.SetEnvPrefix("figma_mcp")
	viper.AutomaticEnv()

	// A config file is optional; flags and env cover everything.
	viper.ReadInConfig()
}
