package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

// ExportResult writes a lookup result as JSON or Markdown
func ExportResult(result Result, format string, writer io.Writer) error {
	switch ExportFormat(strings.ToLower(format)) {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		return encoder.Encode(result)
	case FormatMarkdown, "md":
		return exportMarkdown(result, writer)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, markdown)", format)
	}
}

func exportMarkdown(result Result, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", result.Character)
	switch result.Status {
	case StatusFound:
		p := result.Profile
		fmt.Fprintf(&b, "- **Full name:** %s\n", p.Name)
		fmt.Fprintf(&b, "- **Story:** %s\n", p.StoryTitle)
		fmt.Fprintf(&b, "- **Type:** %s\n\n", p.CharacterType)
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", p.Summary)
		if len(p.Relations) > 0 {
			b.WriteString("## Relations\n\n| Name | Relation |\n|---|---|\n")
			for _, r := range p.Relations {
				fmt.Fprintf(&b, "| %s | %s |\n", r.Name, r.Relation)
			}
			b.WriteString("\n")
		}
	case StatusNoProfile:
		fmt.Fprintf(&b, "Found in *%s*, but no profile could be extracted.\n\n", result.StoryTitle)
	default:
		b.WriteString("Not found in any story.\n\n")
	}

	if len(result.VerifyFailures) > 0 {
		b.WriteString("## Verification failures\n\n")
		for _, f := range result.VerifyFailures {
			fmt.Fprintf(&b, "- %s: %s\n", f.StoryTitle, f.Error)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "_run %s_\n", result.RunID)

	_, err := io.WriteString(w, b.String())
	return err
}
