package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/autograde/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagUser      string
	flagRole      string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking AUTOGRADE_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("AUTOGRADE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the agctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agctl",
		Short: "agctl: autograde submission client",
		Long:  "agctl submits solutions, follows automatic grading and records teacher grades on an autograde server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, resolveIdentity(flagUser, flagRole), logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "autograde server URL (or AUTOGRADE_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "Caller user id (defaults to the saved login)")
	root.PersistentFlags().StringVar(&flagRole, "role", "", "Caller role: student, teacher or admin")

	root.AddCommand(
		newLoginCmd(),
		newExerciseCmd(),
		newSubmitCmd(),
		newLatestCmd(),
		newListCmd(),
		newShowCmd(),
		newRetryCmd(),
		newGradeCmd(),
		newFeedbackCmd(),
		newActivitiesCmd(),
		newTryCmd(),
		newExecutorsCmd(),
	)

	return root
}
