package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalyard/metaengine/internal/analysis"
	"github.com/signalyard/metaengine/internal/models"
)

// Writer persists run artifacts under the output directory.
type Writer struct {
	outputDir string
}

// NewWriter creates a writer rooted at outputDir, creating it if needed.
func NewWriter(outputDir string) (*Writer, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Writer{outputDir: outputDir}, nil
}

// Markdown renders the full run report.
func Markdown(summary *RunSummary, scored []models.ScoredPick, fiveX []analysis.FiveXCandidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Meta Engine Report — %s %s\n\n", summary.ScanDate, summary.Session)
	fmt.Fprintf(&b, "**Market direction:** %s (confidence %.0f%%, breadth %+.2f)\n\n",
		summary.Direction.Label, summary.Direction.Confidence*100, summary.Direction.Breadth)

	if summary.Minimal {
		b.WriteString("_No picks scored this run._\n")
		return b.String()
	}

	writeTable := func(title string, engine models.Engine) {
		fmt.Fprintf(&b, "## %s\n\n", title)
		b.WriteString("| Symbol | Blended | ORM | Grade | Opp. Verdict | Gates |\n")
		b.WriteString("|--------|---------|-----|-------|--------------|-------|\n")
		for _, sp := range scored {
			if sp.Pick.Engine != engine {
				continue
			}
			verdict := "-"
			if sp.Cross != nil {
				verdict = string(sp.Cross.Verdict)
			}
			gates := "PASS"
			if !sp.Passed {
				gates = strings.Join(sp.RejectReasons, "; ")
			}
			fmt.Fprintf(&b, "| %s | %.2f | %.2f (%s) | %s | %s | %s |\n",
				sp.Pick.Symbol, sp.BlendedScore, sp.ORMScore, sp.ORMStatus, sp.Grade, verdict, gates)
		}
		b.WriteString("\n")
	}
	writeTable("PutsEngine (bearish)", models.EnginePuts)
	writeTable("Moonshot (bullish)", models.EngineMoonshot)

	if len(summary.Conflicts) > 0 {
		b.WriteString("## Conflicts\n\n")
		for _, c := range summary.Conflicts {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if len(summary.Gaps) > 0 {
		b.WriteString("## Overnight Gaps\n\n")
		for _, g := range summary.Gaps {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}

	if len(fiveX) > 0 {
		b.WriteString("## 5x Potential\n\n")
		b.WriteString("| Symbol | Engine | Exp. Move | Potential |\n")
		b.WriteString("|--------|--------|-----------|----------|\n")
		n := len(fiveX)
		if n > 10 {
			n = 10
		}
		for _, c := range fiveX[:n] {
			fmt.Fprintf(&b, "| %s | %s | %.1f%% | %.2f |\n",
				c.Symbol, c.SourceEngine, c.ExpectedMove, c.MovePotential)
		}
		b.WriteString("\n")
	}

	theta := collectThetaFlags(scored)
	if len(theta) > 0 {
		b.WriteString("## Theta Warnings\n\n")
		for _, f := range theta {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

func collectThetaFlags(scored []models.ScoredPick) []string {
	seen := map[string]bool{}
	var out []string
	for _, sp := range scored {
		for _, f := range sp.ThetaFlags {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// WriteMarkdown writes the report both as a timestamped file and as
// the rolling report_latest.md.
func (w *Writer) WriteMarkdown(now time.Time, content string) (string, error) {
	name := fmt.Sprintf("meta_engine_report_%s.md", now.Format("20060102_1504"))
	path := filepath.Join(w.outputDir, name)
	if err := w.atomicWrite(path, []byte(content)); err != nil {
		return "", err
	}
	if err := w.atomicWrite(filepath.Join(w.outputDir, "report_latest.md"), []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}

// WriteJSON writes v both as the timestamped run file and as
// <prefix>_latest.json.
func (w *Writer) WriteJSON(prefix string, now time.Time, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling %s results: %w", prefix, err)
	}

	name := fmt.Sprintf("%s_%s.json", prefix, now.Format("20060102_1504"))
	path := filepath.Join(w.outputDir, name)
	if err := w.atomicWrite(path, data); err != nil {
		return "", err
	}
	if err := w.atomicWrite(filepath.Join(w.outputDir, prefix+"_latest.json"), data); err != nil {
		return "", err
	}
	return path, nil
}

// atomicWrite writes through a temp file and renames so readers never
// see a partial file.
func (w *Writer) atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}
	return nil
}
