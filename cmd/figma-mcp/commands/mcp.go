// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"context"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/client"
	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/figma"
)

var noAutoConnect bool

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Starts the MCP stdio server",
	Long: `mcp runs the MCP server on stdin/stdout and connects it to a relay.

Tool calls are forwarded over the relay to whichever Figma plugin shares the
joined channel. By default the client joins the only available channel on
its own; pass --no-auto-connect to require an explicit join_channel call.`,
	RunE: runMCP,
}

func init() {
	RootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringP("server", "s", "ws://localhost:3055", "Websocket URL of the relay server")
	viper.BindPFlag("client.server", mcpCmd.Flags().Lookup("server"))
	mcpCmd.Flags().BoolVar(&noAutoConnect, "no-auto-connect", false, "Do not join the sole available channel automatically")
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the MCP transport; everything else goes to stderr.
	log := newLogger()

	c := client.New(log, viper.GetString("client.server"), !noAutoConnect)
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		// Not fatal; the client retries with backoff, and commands issued
		// meanwhile fail fast with a not-connected error.
		log.WithField("error", err).Warn("Relay not reachable yet")
	}

	s := mcpserver.NewMCPServer(
		"ClaudeTalkToFigma",
		version(),
		mcpserver.WithToolCapabilities(true),
	)
	figma.Register(s, c)

	log.Info("Starting MCP stdio server")
	return mcpserver.ServeStdio(s)
}
