package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/paperqa-go/internal/config"
	"github.com/54b3r/paperqa-go/internal/logging"
)

// NewAskCmd constructs the `paperqa ask` command, which answers one question
// and prints the answer followed by the papers it drew on.
func NewAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the indexed papers",
		Long: `Answer a natural-language question using the indexed corpus.

Examples:
  paperqa ask "What problem does the Transformer's self-attention solve?"
  paperqa ask --sources=false "How does BERT differ from GPT?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			q, err := buildQueryStack(ctx, s, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer q.Close()

			ans, err := q.service.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Answer)
			if showSources && len(ans.Sources) > 0 {
				fmt.Fprintf(out, "\nSources (%d chunks used):\n", ans.ChunksUsed)
				for _, src := range ans.Sources {
					fmt.Fprintf(out, "  - %s [%s] %.3f\n", src.Title, src.DocID, src.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", true, "Print the papers the answer drew on")

	return cmd
}
