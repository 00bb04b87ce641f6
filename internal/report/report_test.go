package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalyard/metaengine/internal/analysis"
	"github.com/signalyard/metaengine/internal/models"
)

var runTime = time.Date(2026, 2, 13, 9, 35, 0, 0, time.UTC)

func scoredFixture() []models.ScoredPick {
	return []models.ScoredPick{
		{
			Pick:         models.Pick{Symbol: "ABC", Engine: models.EnginePuts, Score: 0.80},
			ORMScore:     0.62,
			ORMStatus:    "computed",
			BlendedScore: 0.76,
			Grade:        "A",
			Passed:       true,
			Cross: &models.CrossAnalysis{
				Symbol:  "ABC",
				Verdict: models.VerdictLow,
			},
		},
		{
			Pick:          models.Pick{Symbol: "XYZ", Engine: models.EngineMoonshot, Score: 0.70},
			ORMStatus:     "missing",
			BlendedScore:  0.48,
			Grade:         "C",
			Passed:        false,
			RejectReasons: []string{"blended_score_below_gate: 0.48 < 0.55"},
			ThetaFlags:    []string{"friday_entry_theta_decay"},
			Cross: &models.CrossAnalysis{
				Symbol:   "XYZ",
				Verdict:  models.VerdictHigh,
				Conflict: models.ConflictHard,
				Gap:      &models.GapInfo{GapPct: -12.0, Flagged: true, Critical: true},
			},
		},
	}
}

func TestBuildSummary(t *testing.T) {
	dir := analysis.MarketDirection{Label: "BEARISH", Confidence: 0.8}
	s := BuildSummary(runTime, scoredFixture(), dir)

	assert.Equal(t, "2026-02-13", s.ScanDate)
	assert.Equal(t, models.SessionAM, s.Session)
	assert.False(t, s.Minimal)

	assert.Equal(t, 1, s.Puts.Picks)
	assert.Equal(t, 1, s.Puts.Passed)
	assert.Equal(t, 1, s.Moonshot.Picks)
	assert.Equal(t, 0, s.Moonshot.Passed)

	require.Len(t, s.Conflicts, 1)
	assert.Contains(t, s.Conflicts[0], "XYZ")
	require.Len(t, s.Gaps, 1)
	assert.Contains(t, s.Gaps[0], "CRITICAL gap")
}

func TestBuildSummaryMinimalFallback(t *testing.T) {
	s := BuildSummary(runTime, nil, analysis.MarketDirection{Label: "NEUTRAL"})
	assert.True(t, s.Minimal)

	text := s.Text()
	assert.Contains(t, text, "No picks scored this run")
	assert.Contains(t, text, "2026-02-13")
}

func TestSummaryText(t *testing.T) {
	s := BuildSummary(runTime, scoredFixture(), analysis.MarketDirection{Label: "BEARISH", Confidence: 0.8})
	text := s.Text()

	assert.Contains(t, text, "Meta Engine 2026-02-13 AM run")
	assert.Contains(t, text, "Market: BEARISH")
	assert.Contains(t, text, "* ABC 0.76 [A]")
	assert.Contains(t, text, "  XYZ 0.48 [C]")
	assert.Contains(t, text, "Conflicts:")
}

func TestMarkdownReport(t *testing.T) {
	s := BuildSummary(runTime, scoredFixture(), analysis.MarketDirection{Label: "BEARISH", Confidence: 0.8})
	fiveX := []analysis.FiveXCandidate{
		{Symbol: "WILD", SourceEngine: "moonshot", ExpectedMove: 15.0, MovePotential: 2.6},
	}

	md := Markdown(s, scoredFixture(), fiveX)

	assert.Contains(t, md, "# Meta Engine Report — 2026-02-13 AM")
	assert.Contains(t, md, "## PutsEngine (bearish)")
	assert.Contains(t, md, "| ABC | 0.76 | 0.62 (computed) | A | LOW | PASS |")
	assert.Contains(t, md, "blended_score_below_gate")
	assert.Contains(t, md, "## 5x Potential")
	assert.Contains(t, md, "| WILD | moonshot | 15.0% | 2.60 |")
	assert.Contains(t, md, "## Theta Warnings")
	assert.Contains(t, md, "friday_entry_theta_decay")
}

func TestWriteMarkdownAndLatest(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	path, err := w.WriteMarkdown(runTime, "# hello\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meta_engine_report_20260213_0935.md"), path)

	latest, err := os.ReadFile(filepath.Join(dir, "report_latest.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hello\n", string(latest))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	payload := map[string]any{"session": "AM", "picks": 7}
	path, err := w.WriteJSON("meta_engine_run", runTime, payload)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meta_engine_run_20260213_0935.json"), path)

	var decoded map[string]any
	data, err := os.ReadFile(filepath.Join(dir, "meta_engine_run_latest.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "AM", decoded["session"])
}
