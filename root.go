package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/peer"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagDataDir    string
	flagPeerID     string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
)

// skipConfigAnnotation marks a command that opts out of the config loading
// done in PersistentPreRunE, and so gets no CLIContext. No command in this
// tree sets it; a missing config file is handled by LoadOrDefault.
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles everything a command's RunE needs: the resolved
// config, its paths, a logger, and the process-wide peer/folder-status
// state (spec §9 Design Notes: "owned application state container passed
// by reference", here threaded through cobra's context instead of
// globals).
type CLIContext struct {
	Holder   *config.Holder
	Paths    config.AppPaths
	Logger   *slog.Logger
	AppState *peer.AppState
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from cmd's context, or nil if
// PersistentPreRunE skipped config loading for this command.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message — a programmer error, since the command tree guarantees
// PersistentPreRunE populates it before any non-skipConfig RunE runs.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure the command " +
			"does not skip config loading (no skipConfigAnnotation)")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "foldersync",
		Short:   "Peer-to-peer folder synchronization engine",
		Long:    "A content-addressed, causally-ordered peer-to-peer folder sync engine.",
		Version: version,
		// Silence Cobra's default error/usage printing — exitOnError handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: "+config.DefaultConfigPath()+")")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "application data directory (default: "+config.DefaultDataDir()+")")
	cmd.PersistentFlags().StringVar(&flagPeerID, "peer", "", "peer ID to operate against")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newFolderCmd())
	cmd.AddCommand(newPeerCmd())

	return cmd
}

// configPath resolves the effective config file path: --config, else the
// platform default.
func configPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	return config.DefaultConfigPath()
}

// dataDir resolves the effective application data directory: --data-dir,
// else the platform default.
func dataDir() string {
	if flagDataDir != "" {
		return flagDataDir
	}

	return config.DefaultDataDir()
}

// loadConfig loads the config file (or defaults, if absent) and stores a
// CLIContext in the command's context for RunE to consume.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger()

	cfg, err := config.LoadOrDefault(configPath(), logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Holder:   config.NewHolder(cfg, configPath()),
		Paths:    config.NewAppPaths(dataDir()),
		Logger:   logger,
		AppState: peer.NewAppState(nil),
	}

	for _, p := range cfg.Peers {
		cc.AppState.Peers().SetOnline(p.ID, false)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by CLI flags. --debug and
// --verbose raise verbosity; --quiet lowers it; flags are mutually
// exclusive (enforced by Cobra) so exactly one (or neither) applies.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
