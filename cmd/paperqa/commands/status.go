package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/paperqa-go/internal/config"
	"github.com/54b3r/paperqa-go/internal/store"
)

// NewStatusCmd constructs the `paperqa status` command, which reports how
// the index was built and what it holds.
func NewStatusCmd() *cobra.Command {
	var listDocs bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the index manifest, document count and last run",
		Long: `Report the embedding identity, chunking policy and contents of the index.

Examples:
  paperqa status
  paperqa status --docs`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			manifest, err := openManifest(s)
			if err != nil {
				return err
			}
			defer manifest.Close()

			w := cmd.OutOrStdout()
			m, ok, err := manifest.Manifest(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(w, "index at %s has not been built; run `paperqa index`\n", s.IndexDir)
				return nil
			}

			fmt.Fprintf(w, "index:      %s\n", s.IndexDir)
			fmt.Fprintf(w, "store:      %s (collection %s)\n", m.VectorStore, m.Collection)
			fmt.Fprintf(w, "embedder:   %s\n", m.Identity())
			fmt.Fprintf(w, "chunking:   size %d, overlap %d\n", m.ChunkSize, m.ChunkOverlap)
			fmt.Fprintf(w, "updated:    %s\n", m.UpdatedAt.Format(time.RFC3339))

			docs, err := manifest.Documents(ctx)
			if err != nil {
				return err
			}
			chunks := 0
			for _, d := range docs {
				chunks += d.Chunks
			}
			fmt.Fprintf(w, "documents:  %d (%d chunks)\n", len(docs), chunks)

			vs, _, err := openVectorStore(ctx, s, m.Dimensions)
			if err != nil {
				fmt.Fprintf(w, "vectors:    unavailable: %v\n", err)
			} else {
				defer vs.Close()
				if n, err := vs.Count(ctx); err != nil {
					fmt.Fprintf(w, "vectors:    unreadable: %v\n", err)
				} else {
					fmt.Fprintf(w, "vectors:    %d\n", n)
				}
			}

			if r, ok, err := manifest.LastRun(ctx); err != nil {
				return err
			} else if ok {
				printRun(w, r)
			}

			if listDocs {
				fmt.Fprintln(w)
				for _, d := range docs {
					fmt.Fprintf(w, "  %-40s %4d chunks  %s\n", d.DocID, d.Chunks, d.Title)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&listDocs, "docs", false, "List every indexed document")

	return cmd
}

func printRun(w io.Writer, r *store.Run) {
	fmt.Fprintf(w, "last run:   #%d %s at %s", r.ID, r.Status, r.StartedAt.Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, " (%s, %d documents, %d chunks)", r.FinishedAt.Sub(r.StartedAt).Round(time.Second), r.Documents, r.Chunks)
	}
	fmt.Fprintln(w)
	if r.Error != "" {
		fmt.Fprintf(w, "            error: %s\n", r.Error)
	}
}
