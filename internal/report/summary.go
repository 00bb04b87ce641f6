// Package report renders run summaries and the markdown report, and
// owns the atomic result-file writes under the output directory.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalyard/metaengine/internal/analysis"
	"github.com/signalyard/metaengine/internal/models"
)

// RunSummary is the digest rendered into notifications and the report.
type RunSummary struct {
	ScanDate  string                   `json:"scan_date"`
	Session   models.Session           `json:"session"`
	Direction analysis.MarketDirection `json:"direction"`
	Puts      EngineDigest             `json:"puts"`
	Moonshot  EngineDigest             `json:"moonshot"`
	Conflicts []string                 `json:"conflicts"`
	Gaps      []string                 `json:"gaps"`
	Minimal   bool                     `json:"minimal,omitempty"`
}

// EngineDigest summarizes one engine's side of the run.
type EngineDigest struct {
	Engine   models.Engine `json:"engine"`
	Picks    int           `json:"picks"`
	Passed   int           `json:"passed"`
	TopPicks []PickLine    `json:"top_picks"`
}

// PickLine is one row of the digest.
type PickLine struct {
	Symbol  string  `json:"symbol"`
	Score   float64 `json:"score"`
	Grade   string  `json:"grade"`
	Verdict string  `json:"verdict"`
	Passed  bool    `json:"passed"`
}

// topPicksPerEngine bounds the digest rows per side.
const topPicksPerEngine = 5

// BuildSummary assembles the run digest from the scored picks. Never
// fails: when inputs are empty it produces the minimal summary so
// notifications still go out.
func BuildSummary(now time.Time, scored []models.ScoredPick, dir analysis.MarketDirection) *RunSummary {
	s := &RunSummary{
		ScanDate:  now.Format("2006-01-02"),
		Session:   models.SessionFor(now),
		Direction: dir,
		Puts:      EngineDigest{Engine: models.EnginePuts},
		Moonshot:  EngineDigest{Engine: models.EngineMoonshot},
	}

	if len(scored) == 0 {
		s.Minimal = true
		return s
	}

	for _, sp := range scored {
		digest := &s.Puts
		if sp.Pick.Engine == models.EngineMoonshot {
			digest = &s.Moonshot
		}
		digest.Picks++
		if sp.Passed {
			digest.Passed++
		}
		if len(digest.TopPicks) < topPicksPerEngine {
			line := PickLine{
				Symbol: sp.Pick.Symbol,
				Score:  sp.BlendedScore,
				Grade:  sp.Grade,
				Passed: sp.Passed,
			}
			if sp.Cross != nil {
				line.Verdict = string(sp.Cross.Verdict)
			}
			digest.TopPicks = append(digest.TopPicks, line)
		}

		if sp.Cross != nil {
			if sp.Cross.Conflict == models.ConflictHard {
				s.Conflicts = append(s.Conflicts,
					fmt.Sprintf("%s: both engines hold it with conviction", sp.Pick.Symbol))
			}
			if sp.Cross.Gap != nil && sp.Cross.Gap.Flagged {
				severity := "gap"
				if sp.Cross.Gap.Critical {
					severity = "CRITICAL gap"
				}
				s.Gaps = append(s.Gaps,
					fmt.Sprintf("%s: %s %+.1f%% overnight", sp.Pick.Symbol, severity, sp.Cross.Gap.GapPct))
			}
		}
	}
	return s
}

// Text renders the summary as plain text for Telegram and X.
func (s *RunSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meta Engine %s %s run\n", s.ScanDate, s.Session)
	fmt.Fprintf(&b, "Market: %s (confidence %.0f%%)\n", s.Direction.Label, s.Direction.Confidence*100)

	if s.Minimal {
		b.WriteString("No picks scored this run.\n")
		return b.String()
	}

	writeDigest := func(name string, d EngineDigest) {
		fmt.Fprintf(&b, "\n%s: %d picks, %d passed gates\n", name, d.Picks, d.Passed)
		for _, p := range d.TopPicks {
			mark := " "
			if p.Passed {
				mark = "*"
			}
			fmt.Fprintf(&b, "%s %s %.2f [%s]", mark, p.Symbol, p.Score, p.Grade)
			if p.Verdict != "" {
				fmt.Fprintf(&b, " opp=%s", p.Verdict)
			}
			b.WriteString("\n")
		}
	}
	writeDigest("PutsEngine", s.Puts)
	writeDigest("Moonshot", s.Moonshot)

	if len(s.Conflicts) > 0 {
		b.WriteString("\nConflicts:\n")
		for _, c := range s.Conflicts {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(s.Gaps) > 0 {
		b.WriteString("\nGaps:\n")
		for _, g := range s.Gaps {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}
	return b.String()
}
