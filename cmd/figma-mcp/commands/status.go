// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/relay"
)

var (
	statusPort        string
	statusPassword    string
	promptForPassword bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [host]",
	Short: "Print status of a relay server",
	Long: `status queries a relay server's introspection endpoint.

If the host is omitted, the local relay is queried using the options from
its configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := "127.0.0.1"
		if len(args) > 0 {
			host = args[0]
		} else {
			// Use the options from the local server's configuration.
			if _, port, err := net.SplitHostPort(viper.GetString("server.bind")); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: cannot determine local relay port from config; using %q\n", statusPort)
			} else if port != "" {
				statusPort = port
			}
			statusPassword = viper.GetString("server.statsPassword")
		}
		return getStatus(host)
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusPort, "port", "P", "3055", "port of the relay to query")
	statusCmd.Flags().BoolVarP(&promptForPassword, "prompt-for-password", "p", false, "prompt for the relay's stats password\n    If unset, the password is the same as the local relay's.")

	viper.SetDefault("server.statsPassword", "")
}

func getStatus(host string) error {
	if promptForPassword {
		fmt.Printf("Password: ")
		pass, err := gopass.GetPasswd()
		if err != nil {
			return err
		}
		statusPassword = string(pass)
	}

	if statusPassword == "" {
		statusPassword = os.Getenv("FIGMA_MCP_STATS_PASSWORD")
	}

	statusAddr := net.JoinHostPort(host, statusPort)
	req, err := http.NewRequest(http.MethodGet, "http://"+statusAddr+"/status", nil)
	if err != nil {
		return errors.Wrap(err, "Build status request")
	}
	if statusPassword != "" {
		req.Header.Set("X-Stats-Password", statusPassword)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "Connect to relay")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errors.New("A stats password is required; pass --prompt-for-password")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Relay returned %s", resp.Status)
	}

	var status relay.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return errors.Wrap(err, "Decode status response")
	}

	channels := "none"
	if len(status.Channels) > 0 {
		channels = strings.Join(status.Channels, ", ")
	}
	fmt.Printf(`Status of relay at %s:
Status: %s
Uptime: %s
Channels: %s

Connections: %d active, %d total (peak %d on %s)
Messages: %d sent, %d received
Errors: %d
`, statusAddr, status.Status, status.Uptime, channels,
		status.Stats.ActiveConnections, status.Stats.TotalConnections,
		status.Stats.MaxConnections, status.Stats.MaxConnectionsAt,
		status.Stats.MessagesSent, status.Stats.MessagesReceived,
		status.Stats.Errors)
	return nil
}
