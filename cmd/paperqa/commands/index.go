package commands

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/paperqa-go/internal/chunker"
	"github.com/54b3r/paperqa-go/internal/config"
	"github.com/54b3r/paperqa-go/internal/ingestion"
	"github.com/54b3r/paperqa-go/internal/loader"
	"github.com/54b3r/paperqa-go/internal/logging"
)

// NewIndexCmd constructs the `paperqa index` command, which chunks, embeds
// and stores every paper in the corpus directory.
func NewIndexCmd() *cobra.Command {
	var corpus, titlesFile string
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the vector index from the corpus",
		Long: `Index every .pdf, .md and .txt file in the corpus directory.

Each document is split into overlapping chunks, prefixed with its title from
the title map (see 'paperqa titles'), embedded and upserted into the vector
store. Re-running on an unchanged corpus leaves the index unchanged. Changing
the embedding model or the chunk size/overlap requires --rebuild.

Examples:
  paperqa index
  paperqa index --corpus ./Papers --titles paper_titles.json
  CHUNK_SIZE=2000 paperqa index --rebuild`,
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
			if titlesFile != "" {
				s.TitlesFile = titlesFile
			}

			policy, err := chunker.New(s.ChunkSize, s.ChunkOverlap)
			if err != nil {
				return err
			}
			titles, err := loader.LoadTitles(s.TitlesFile)
			if err != nil {
				return err
			}

			emb, embCfg, err := buildEmbedder(s, log)
			if err != nil {
				return err
			}
			manifest, err := openManifest(s)
			if err != nil {
				return err
			}
			defer manifest.Close()
			vs, _, err := openVectorStore(ctx, s, embCfg.Dimensions)
			if err != nil {
				return err
			}
			defer vs.Close()

			pipeline, err := ingestion.NewPipeline(emb, vs, manifest, &ingestion.Config{
				CorpusDir:        s.CorpusDir,
				IndexDir:         s.IndexDir,
				Titles:           titles,
				Policy:           policy,
				Identity:         embCfg.Identity(),
				Collection:       s.Collection,
				VectorStore:      s.VectorStore,
				EmbedBatchSize:   s.EmbedBatchSize,
				EmbedConcurrency: s.EmbedConcurrency,
				UpsertBatchSize:  s.UpsertBatchSize,
				Rebuild:          rebuild,
			})
			if err != nil {
				return err
			}

			out := cmd.ErrOrStderr()
			report, err := pipeline.Run(ctx, func(msg string) { fmt.Fprintln(out, msg) })
			if errors.Is(err, ingestion.ErrIndexLocked) {
				return fmt.Errorf("index: another `paperqa index` is running against %s", s.IndexDir)
			}
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents into %d chunks (%d stale removed, %d skipped) in %s\n",
				report.Documents, report.Chunks, report.Deleted, len(report.Skipped), report.Elapsed.Round(time.Millisecond))
			for _, id := range report.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&corpus, "corpus", "", "Corpus directory (overrides CORPUS_DIR)")
	cmd.Flags().StringVar(&titlesFile, "titles", "", "Title map JSON file (overrides TITLES_FILE)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Drop the existing index before indexing")

	return cmd
}
