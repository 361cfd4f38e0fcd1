// Package commands defines all Cobra CLI commands for the paperqa binary.
package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/paperqa-go/internal/audit"
	"github.com/54b3r/paperqa-go/internal/config"
	"github.com/54b3r/paperqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// started is when the running command passed PersistentPreRunE.
var started time.Time

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paperqa",
		Short: "Question answering over a corpus of research papers",
		Long: `paperqa builds a vector index of a directory of research papers and
answers natural-language questions about them with an LLM, citing the papers
it drew on.

  paperqa titles   resolve paper titles into paper_titles.json
  paperqa index    chunk, embed and store the corpus
  paperqa serve    start the HTTP API and web UI
  paperqa ask      answer one question from the terminal

Settings come from the environment, a .env file and a YAML config file
(~/.paperqa/config.yaml or ./paperqa.yaml); the environment wins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(log); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			// YAML may have set LOG_LEVEL / LOG_FORMAT.
			log = logging.New()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logging.WithLogger(ctx, log))

			started = time.Now()
			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.paperqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIndexCmd(),
		NewAskCmd(),
		NewTitlesCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return root
}

// Execute runs the CLI and records the audit end line for the command that ran.
func Execute() error {
	cmd, err := NewRootCmd().ExecuteC()
	if !started.IsZero() {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		audit.LogCommandEnd(ctx, logging.FromContext(ctx), cmd.Name(), started, err)
	}
	return err
}
