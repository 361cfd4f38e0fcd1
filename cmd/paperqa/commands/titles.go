package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/paperqa-go/internal/config"
	"github.com/54b3r/paperqa-go/internal/loader"
	"github.com/54b3r/paperqa-go/internal/logging"
	"github.com/54b3r/paperqa-go/internal/titles"
)

// NewTitlesCmd constructs the `paperqa titles` command, which writes the
// title map used by the indexer and by answer citations.
func NewTitlesCmd() *cobra.Command {
	var corpus, out string
	var offline, verbose bool

	cmd := &cobra.Command{
		Use:   "titles",
		Short: "Extract paper titles into the title map",
		Long: `Resolve a human-readable title for every paper in the corpus.

Strategies are tried in order: the arXiv API (for arXiv-style file names),
PDF metadata, the largest-font line on the first page, a Semantic Scholar
search, and finally the file name. Entries whose source is "manual" are kept
unchanged, so hand edits survive re-runs.

Examples:
  paperqa titles
  paperqa titles --offline --out paper_titles.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if corpus != "" {
				s.CorpusDir = corpus
			}
			if out != "" {
				s.TitlesFile = out
			}

			existing, err := loader.LoadTitles(s.TitlesFile)
			if err != nil {
				return err
			}
			log.Info("extracting titles",
				slog.String("corpus", s.CorpusDir),
				slog.Int("existing", len(existing)),
				slog.Bool("offline", offline),
			)

			stderr := cmd.ErrOrStderr()
			progress := func(id string, e loader.TitleEntry) {
				if verbose {
					fmt.Fprintf(stderr, "%-40s %-17s %s\n", id, e.Source, e.Title)
				}
			}
			m, sum, err := titles.New(&titles.Config{Offline: offline}).ExtractAll(ctx, s.CorpusDir, existing, progress)
			if err != nil {
				return fmt.Errorf("titles: %w", err)
			}
			if err := loader.SaveTitles(s.TitlesFile, m); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "wrote %d titles to %s\n", sum.Total, s.TitlesFile)
			for _, src := range titles.Sources {
				if n := sum.Counts[src]; n > 0 {
					fmt.Fprintf(w, "  %-17s %4d (%.1f%%)\n", src, n, sum.Percent(src))
				}
			}
			if sum.Kept > 0 {
				fmt.Fprintf(w, "  %-17s %4d\n", titles.SourceManual, sum.Kept)
			}
			if sum.NeedsReview > 0 {
				fmt.Fprintf(w, "%d titles need manual review (set \"source\": \"manual\" after editing)\n", sum.NeedsReview)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&corpus, "corpus", "", "Corpus directory (overrides CORPUS_DIR)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Title map to write (overrides TITLES_FILE)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the arXiv and Semantic Scholar lookups")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every resolved title")

	return cmd
}
