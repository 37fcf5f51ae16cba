package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"treeguardian/adapters/jsonfile"
	"treeguardian/classifier"
	"treeguardian/core"
	"treeguardian/engine"
	"treeguardian/guardian"
)

type options struct {
	player   string
	dataPath string
	apiURL   string
	timeout  time.Duration
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "guardian-identify",
		Short:        "Identify trees from photos and track your Tree Guardian progress",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.player, "player", "p", envOr("GUARDIAN_PLAYER", "guardian"), "player id the progress is recorded for")
	flags.StringVar(&opts.dataPath, "data", envOr("GUARDIAN_DATA", "./data/treeguardian.json"), "local progress file")
	flags.StringVar(&opts.apiURL, "api-url", envOr("GUARDIAN_CLASSIFIER_URL", classifier.DefaultBaseURL), "identification service base URL")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout for the identification service")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	root.AddCommand(
		newIdentifyCmd(opts),
		newDiagnoseCmd(opts),
		newProfileCmd(opts),
		newLeaderboardCmd(opts),
		newPingCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (o *options) logger(errOut io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
}

func (o *options) classifier(logger *slog.Logger) (*classifier.Client, error) {
	return classifier.New(o.apiURL, classifier.WithTimeout(o.timeout), classifier.WithLogger(logger))
}

// service opens the local progress file with synchronous dispatch so every
// event is handled before the command exits.
func (o *options) service(logger *slog.Logger) (*engine.ProgressionService, error) {
	store, err := jsonfile.New(o.dataPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.dataPath, err)
	}
	return guardian.New(
		guardian.WithStorage(store),
		guardian.WithDispatchMode(engine.DispatchSync),
		guardian.WithLogger(logger),
	)
}

func (o *options) playerID() (core.PlayerID, error) {
	return core.NormalizePlayerID(core.PlayerID(o.player))
}
