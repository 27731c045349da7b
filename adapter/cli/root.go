package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/pkg/config"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

// SkipAppAnnotation marks commands that run without opening the store.
const SkipAppAnnotation = "schedcache/skip-app"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "schedcache",
	Short: "schedcache - read-through cache of scheduled events",
	Long: `schedcache keeps day-bucketed projections of appointments and tasks in
memory, answers event, free-slot and overlap queries from them, and stays
coherent with the backing store as activities are written.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(cfgFile)
		if err != nil {
			return err
		}
		if logger == nil {
			level := cfg.LogLevel
			if verbose {
				level = string(observability.LogLevelDebug)
			}
			logCfg := observability.LogConfigFor(cfg.AppEnv, level, cfg.LogFormat, Version)
			// stdout is reserved for command output
			logCfg.Output = os.Stderr
			logger = observability.NewLogger(logCfg)
		}

		info := commandContext{
			correlationID: uuid.New(),
			startedAt:     time.Now(),
		}
		ctx := observability.WithCorrelationID(cmd.Context(), info.correlationID.String())
		ctx = context.WithValue(ctx, commandContextKey{}, info)
		cmd.SetContext(ctx)
		logger.DebugContext(ctx, "command start", "command", cmd.CommandPath())

		if cmd.Annotations[SkipAppAnnotation] != "" || GetApp() != nil {
			return nil
		}
		return initApp(ctx, cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.DebugContext(cmd.Context(), "command end",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	closeApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Run executes the root command with args, writing command output to out.
// The application set with SetApp, if any, is left open.
func Run(ctx context.Context, out io.Writer, args ...string) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	defer rootCmd.SetOut(nil)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file overlaid on the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// AddCommand adds a command to the root command.
func AddCommand(cmds ...*cobra.Command) {
	rootCmd.AddCommand(cmds...)
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Logger returns the CLI logger.
func Logger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
