package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/dramatis/internal/character"
	"github.com/Yates-Labs/dramatis/internal/orchestrator"
)

var (
	findTopK     int
	saveProfile  bool
	saveDir      string
	jsonOutput   bool
	exportFile   string
	exportFormat string
	failNotFound bool
)

var findCmd = &cobra.Command{
	Use:   "find [character name]",
	Short: "Find a character and print their profile",
	Long: `Find a character in the indexed stories and extract their profile.

This command:
1. Embeds the character name and searches the vector index
2. Ranks candidate stories by how many matching chunks they contain
3. Asks the language model to confirm the character in each candidate, in order
4. Extracts a structured profile from the first confirmed story

A character that appears in no story is reported as not found (exit code 0,
or 2 with --fail-not-found). Errors reaching the index or the model exit 1.

Examples:
  dramatis find "Arya Stark"
  dramatis find Paul Atreides --topk 10 --save
  dramatis find "Frodo Baggins" --json
  dramatis find "Arya Stark" --export arya.md --format markdown`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)
	findCmd.Flags().IntVar(&findTopK, "topk", 0, "Number of nearest chunks to retrieve (default from pipeline.top_k)")
	findCmd.Flags().BoolVar(&saveProfile, "save", false, "Write the profile to <name>_info.json")
	findCmd.Flags().StringVar(&saveDir, "save-dir", ".", "Directory for --save")
	findCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	findCmd.Flags().StringVar(&exportFile, "export", "", "Export the result to a file: --export <filename>")
	findCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or markdown")
	findCmd.Flags().BoolVar(&failNotFound, "fail-not-found", false, "Exit with code 2 when the character is not found")
}

func runFind(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))
	ctx := context.Background()

	if findTopK > 0 {
		cfg.Pipeline.TopK = findTopK
	}

	pipeline, err := orchestrator.BuildPipeline(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Close()

	result, err := pipeline.FindCharacter(ctx, name)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := orchestrator.ExportResult(result, "json", out); err != nil {
			return err
		}
	} else {
		printResult(out, result)
	}

	if exportFile != "" {
		if err := handleExport(result, exportFile, exportFormat); err != nil {
			return err
		}
	}

	if saveProfile && result.Profile != nil {
		path, err := character.SaveProfile(result.Profile, name, saveDir)
		if err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		if !jsonOutput {
			fmt.Fprintln(out, successStyle.Render("✓ Saved profile to "+path))
		}
	}

	if result.Status == orchestrator.StatusNotFound && failNotFound {
		return errNotFound
	}
	return nil
}

func handleExport(result orchestrator.Result, filename, format string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := orchestrator.ExportResult(result, format, file); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Fprintln(os.Stderr, successStyle.Render("✓ Exported result to "+filename))
	return nil
}

func printResult(w io.Writer, result orchestrator.Result) {
	fmt.Fprintln(w)

	switch result.Status {
	case orchestrator.StatusFound:
		p := result.Profile
		fmt.Fprintln(w, headerStyle.Render("Character:")+" "+nameStyle.Render(p.Name))
		fmt.Fprintln(w, borderStyle.Render(strings.Repeat("─", 48)))
		fmt.Fprintln(w, labelStyle.Render("Story")+textStyle.Render(p.StoryTitle))
		fmt.Fprintln(w, labelStyle.Render("Type")+textStyle.Render(p.CharacterType))
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Summary:"))
		fmt.Fprintln(w, textStyle.Width(80).Render(p.Summary))

		if len(p.Relations) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, headerStyle.Render("Relations:"))
			nameWidth := 0
			for _, r := range p.Relations {
				nameWidth = max(nameWidth, lipgloss.Width(r.Name))
			}
			for _, r := range p.Relations {
				fmt.Fprintln(w, "  "+nameStyle.Width(nameWidth+2).Render(r.Name)+mutedStyle.Render(r.Relation))
			}
		}

	case orchestrator.StatusNoProfile:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%q appears in %q, but no profile could be extracted.",
			result.Character, result.StoryTitle)))
		if result.ExtractError != "" {
			fmt.Fprintln(w, mutedStyle.Render(result.ExtractError))
		}

	default:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("The character %q was not found in any story.", result.Character)))
	}

	if len(result.VerifyFailures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Verification failed for %d candidate(s):", len(result.VerifyFailures))))
		for _, f := range result.VerifyFailures {
			fmt.Fprintln(w, mutedStyle.Render("  "+f.StoryTitle+": "+f.Error))
		}
	}
	fmt.Fprintln(w)
}
