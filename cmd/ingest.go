package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/dramatis/internal/orchestrator"
)

var rebuild bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [source]",
	Short: "Load stories and build the vector index",
	Long: `Load every .txt story from a source, save the collection to the story
store and embed it into the vector index.

The index is built once: if it already holds records, embedding is skipped
unless --rebuild is given, which clears the index first.

Sources:
  ./data                                 a local directory (default stories.source)
  /path/to/repo                          a local git working copy (HEAD)
  git+https://github.com/user/stories    a remote git repository
  github:user/stories[/dir][@ref]        the GitHub contents API (GITHUB_TOKEN optional)
  s3://bucket[/prefix]                   an S3 bucket (stories.s3_endpoint for MinIO)

Examples:
  dramatis ingest
  dramatis ingest ./data --rebuild
  dramatis ingest github:user/stories/books@main`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&rebuild, "rebuild", false, "Clear the index and embed every story again")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var arg string
	if len(args) == 1 {
		arg = args[0]
	}
	src, err := orchestrator.NewSource(ctx, cfg, arg)
	if err != nil {
		return err
	}

	ingester, err := orchestrator.BuildIngester(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create ingester: %w", err)
	}
	defer ingester.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, mutedStyle.Render("→ Ingesting "+src.Name()))

	result, err := ingester.Ingest(ctx, src, rebuild)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Saved %d stories to %s", result.Stories, result.StorePath)))
	if result.Skipped {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Index already holds %d records, skipped embedding (use --rebuild to re-embed)", result.Existing)))
		return nil
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Indexed %d chunks from %d stories in %d batches (%s)",
		result.Index.Chunks, result.Index.Stories, result.Index.Batches, result.Duration.Round(time.Millisecond))))
	return nil
}
