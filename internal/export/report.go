package export

import (
	"bytes"
	"fmt"
	"html"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/yuin/goldmark"
)

// Markdown renders the session as a Markdown document.
func Markdown(st models.WorkflowState) string {
	var b strings.Builder

	title := "Untitled paper"
	if st.Analysis != nil && st.Analysis.Title != "" {
		title = st.Analysis.Title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Venue:** %s  \n**Stage:** %s\n\n", st.Conference, st.Stage)

	if st.Analysis != nil {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", st.Analysis.Summary)
		fmt.Fprintf(&b, "## Layout\n\n%s\n\n", st.Analysis.LayoutStrategy)
		if len(st.Analysis.KeyComponents) > 0 {
			b.WriteString("## Key components\n\n")
			for _, c := range st.Analysis.KeyComponents {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			b.WriteString("\n")
		}
		fence := codeFence(st.Analysis.ArchitectureBlueprint)
		fmt.Fprintf(&b, "## Blueprint\n\n%s\n%s\n%s\n\n", fence, st.Analysis.ArchitectureBlueprint, fence)
	}

	if !st.CurrentImage.IsZero() {
		b.WriteString("## Diagram\n\n")
		fmt.Fprintf(&b, "![diagram](%s)\n\n", st.CurrentImage)
		if w, h, err := imageDimensions(st.CurrentImage); err == nil {
			fmt.Fprintf(&b, "%d x %d px\n\n", w, h)
		}
	}

	if len(st.History) > 0 {
		b.WriteString("## History\n\n| # | Instruction | Created |\n|---|---|---|\n")
		for i, item := range st.History {
			prompt := strings.ReplaceAll(item.Prompt, "|", `\|`)
			prompt = strings.ReplaceAll(prompt, "\n", " ")
			fmt.Fprintf(&b, "| %d | %s | %s |\n", len(st.History)-i, prompt, item.Timestamp.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	if st.LastError != "" {
		fmt.Fprintf(&b, "> Last error: %s\n", st.LastError)
	}
	return b.String()
}

// WriteHTML renders the Markdown report to a standalone HTML page.
func WriteHTML(w io.Writer, st models.WorkflowState) error {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(st)), &body); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	title := "figurebench report"
	if st.Analysis != nil && st.Analysis.Title != "" {
		title = st.Analysis.Title
	}
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{font-family:sans-serif;max-width:60rem;margin:2rem auto}img{max-width:100%%}pre{background:#f4f4f4;padding:1rem;white-space:pre-wrap}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25rem .5rem}</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body.String())
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// SaveHTML writes the HTML report to path.
func SaveHTML(path string, st models.WorkflowState) error {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, st); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

func imageDimensions(ref models.ImageRef) (int, int, error) {
	_, data, err := ref.Decode()
	if err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// codeFence returns a backtick fence longer than any backtick run in text.
func codeFence(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r != '`' {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return strings.Repeat("`", max(3, longest+1))
}
