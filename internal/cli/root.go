package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/arc/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// defaultDBPath returns the journal path, checking ARC_DB env var first.
func defaultDBPath() string {
	if p := os.Getenv("ARC_DB"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "arc.db"
	}
	return filepath.Join(home, ".arc", "arc.db")
}

// NewRootCmd creates the root cobra command for the arc CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arc",
		Short: "ARC iterative targeted assembly pipeline",
		Long:  "arc maps reads to reference targets and assembles each target on a pool of workers.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newHistoryCmd(),
		newResultsCmd(),
	)

	return root
}
