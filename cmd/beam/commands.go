// commands.go contains the cobra command definitions and their flag
// configuration. Each builder wires a command to its handler.
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at release build time.
var version = "dev"

// connectOverrides are identity fields settable from the command line,
// taking precedence over the config file.
type connectOverrides struct {
	room     string
	userID   string
	username string
	url      string
}

func buildConnectCmd() *cobra.Command {
	var (
		configPath string
		overrides  connectOverrides
		debugLog   bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a room and start an interactive session",
		Long: `Connect to a chat room over the configured socket and start an
interactive terminal session.

The client keeps one websocket connection for the whole session, joins the
room channel, and then renders messages, the online roster, and typing
activity as they arrive. Reconnects are automatic; the room is rejoined
and its history reloaded after each reconnect.`,
		Example: `  # Join with identity from the config file
  beam connect

  # Join a specific room under a different name
  beam connect --room lobby --name alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), configPath, overrides, debugLog)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().StringVar(&overrides.room, "room", "", "Room to join (overrides config)")
	cmd.Flags().StringVar(&overrides.userID, "user", "", "User ID (overrides config)")
	cmd.Flags().StringVar(&overrides.username, "name", "", "Display name (overrides config)")
	cmd.Flags().StringVar(&overrides.url, "url", "", "Socket URL (overrides config)")
	cmd.Flags().BoolVarP(&debugLog, "debug", "d", false, "Enable debug logging")

	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			v := version
			if v == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
					v = info.Main.Version
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "beam", v)
		},
	}
}
