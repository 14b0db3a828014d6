package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/dramatis/internal/config"
)

// errNotFound makes Execute exit with code 2 (find --fail-not-found)
var errNotFound = errors.New("character not found")

var (
	configFile string
	logLevel   string

	cfg      *config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "dramatis",
	Short: "Dramatis - Character lookup over a story collection",
	Long: `Dramatis indexes a collection of stories and answers questions about
their characters.

It chunks and embeds every story into a vector index, retrieves the stories
most likely to mention a character, asks a language model to confirm the
character is present and extracts a structured profile from the first
confirmed story.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded
		var closeFile func() error
		logger, closeFile = config.SetupLogger(cfg.Log)
		closeLog = sync.OnceValue(closeFile)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./dramatis.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the root command. The log file is closed here because
// persistent post-run hooks are skipped when a command fails.
func Execute() {
	err := rootCmd.Execute()
	if closeErr := closeLog(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close log file: %w", closeErr)
	}

	switch {
	case err == nil:
	case errors.Is(err, errNotFound):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
