// Hubsetup puts a home-automation hub on a Wi-Fi network over Bluetooth LE.
//
// It discovers hubs advertising the provisioning service, lets the user
// pick a network from the list the hub sees, sends the credentials and
// waits until the hub answers on the home network. Onboarded hubs are
// remembered in a small YAML registry so they can be found again later.
//
// Usage:
//
//	hubsetup [command] [flags]
//
// Running without arguments starts setup with the first hub found.
// See 'hubsetup --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hubonboard/hubsetup/internal/config"
	"github.com/hubonboard/hubsetup/internal/logging"
	"github.com/hubonboard/hubsetup/internal/version"
)

var logLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hubsetup",
	Short: "Hub Wi-Fi Setup Utility",
	Long: `A utility for putting home-automation hubs on a Wi-Fi network.

The hub is reached over Bluetooth LE while it is in setup mode. hubsetup
lists the networks the hub can see, sends the chosen credentials and then
finds the hub again on the home network.

If no command is specified, setup runs with the first hub found.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		fmt.Sprintf("Log level: debug, info, warn, error (default: $%s, silent when unset)", logging.LogLevelEnvVar))

	rootCmd.AddCommand(versionCmd)
}

// initLogging picks the level from the flag, the environment and the
// registry preferences, in that order
func initLogging() error {
	level := logLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		if reg, err := config.LoadRegistry(); err == nil {
			level = reg.Preferences.LogLevel
		}
	}
	return logging.Initialize(level)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hubsetup %s\n", version.Full())
	},
}
