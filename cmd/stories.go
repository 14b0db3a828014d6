package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/dramatis/internal/orchestrator"
	"github.com/Yates-Labs/dramatis/internal/story"
)

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "List the stories in the story store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stories, err := story.NewStore(cfg.Stories.Path).Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(stories) == 0 {
			fmt.Fprintln(out, warnStyle.Render("No stories stored yet, run `dramatis ingest` first"))
			return nil
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Stories (%s):", cfg.Stories.Path)))
		for _, s := range stories {
			fmt.Fprintln(out, "  "+nameStyle.Render(s.Title)+" "+mutedStyle.Render(fmt.Sprintf("%d characters", len([]rune(s.Content)))))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of records in the vector index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		index, err := orchestrator.NewIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer index.Close()

		count, err := index.Count(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, labelStyle.Render("Backend")+textStyle.Render(cfg.Index.Backend))
		fmt.Fprintln(out, labelStyle.Render("Embedding")+textStyle.Render(fmt.Sprintf("%s/%s (%d dims)", cfg.Embed.Provider, cfg.Embed.Model, cfg.Embed.Dimension)))
		fmt.Fprintln(out, labelStyle.Render("Records")+textStyle.Render(fmt.Sprintf("%d", count)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(statsCmd)
}
