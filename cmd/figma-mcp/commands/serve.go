// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/relay"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the websocket relay server",
	Long: `serve runs the relay the Figma plugin connects to.

Plugins and command clients join named channels on the relay; messages sent
on a channel are broadcast to its members.`,
	Run: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("bind", "b", ":3055", "Bind the relay to host:port. Leave host empty to bind to all interfaces.")
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	serveCmd.Flags().IntP("ping-interval", "t", 30, "How often idle connections are pinged in seconds (0 disables)")
	viper.BindPFlag("server.pingInterval", serveCmd.Flags().Lookup("ping-interval"))

	viper.SetDefault("server.statsPassword", "")
	viper.SetDefault("log.level", "info")
}

func runServe(cmd *cobra.Command, args []string) {
	log := newLogger()

	r := relay.New(log)
	r.PingInterval = viper.GetDuration("server.pingInterval") * time.Second
	r.StatsPassword = viper.GetString("server.statsPassword")

	log.WithFields(logrus.Fields{
		"ping_interval": r.PingInterval,
	}).Info("Starting relay")
	log.Fatal(r.ListenAndServe(viper.GetString("server.bind")))
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = new(logrus.TextFormatter)
	if level, err := logrus.ParseLevel(viper.GetString("log.level")); err == nil {
		log.Level = level
	}
	return log
}
