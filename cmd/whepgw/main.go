// whepgw - WHEP gateway for upstream camera devices
//
// This is the main entry point for the gateway. It serves the WHEP-shaped
// HTTP API (POST offer -> 201 answer, DELETE session -> 204) in front of a
// device-control service, keeps the device list fresh in the background,
// and shuts everything down deterministically on SIGINT/SIGTERM or an
// admin request.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/whep-gateway/internal/infrastructure/config"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// envConfigPath names the environment variable holding the config file path.
const envConfigPath = "WHEPGW_CONFIG"

// options holds command-line settings shared by the commands.
type options struct {
	configPath string
	address    string
	port       int
	tokenFile  string
	verbose    int
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. Running the root command without
// a subcommand serves the gateway, like "whepgw serve".
func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "whepgw",
		Short:         "WHEP gateway for upstream camera devices",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv(envConfigPath),
		"path to the YAML configuration file (env "+envConfigPath+")")
	root.PersistentFlags().CountVarP(&opts.verbose, "verbose", "v",
		"increase log verbosity (-v info, -vv debug)")
	bindServeFlags(root, opts)

	serve := &cobra.Command{
		Use:           "serve",
		Short:         "Run the gateway",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	bindServeFlags(serve, opts)

	root.AddCommand(serve, newTokenCommand(opts))
	return root
}

// bindServeFlags registers the listener and credential flags on cmd.
func bindServeFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.address, "address", "a", "0.0.0.0", "address to listen on")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVarP(&opts.tokenFile, "token-file", "f", "", "upstream OAuth token file")
}

// loadConfig loads the configuration file and applies the flags the user
// set explicitly on cmd. Unset flags leave file and environment values alone.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.API.Host = opts.address
	}
	if flags.Changed("port") {
		cfg.API.Port = opts.port
	}
	if flags.Changed("token-file") {
		cfg.Upstream.TokenStore = "file"
		cfg.Upstream.TokenFile = opts.tokenFile
	}
	if opts.verbose > 0 {
		cfg.Logging.Level = logging.LevelForVerbosity(opts.verbose)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}
