// Package main provides the CLI entry point for the beam-messenger
// terminal client.
//
// # Basic Usage
//
// Join a room:
//
//	beam connect --config beam.yaml --room lobby --name alice
//
// Inside a session:
//
//	/who          list who is online
//	/status away  set your presence status
//	/retry        resend the last failed message
//	/quit         leave the room and exit
//
// # Environment Variables
//
//   - BEAM_CONFIG: path to the configuration file (default: beam.yaml)
//   - BEAM_TOKEN:  auth token, referenced as ${BEAM_TOKEN} in the config
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "beam",
		Short:         "Terminal client for the Beam group messenger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildConnectCmd(), buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("BEAM_CONFIG"); path != "" {
		return path
	}
	return "beam.yaml"
}
