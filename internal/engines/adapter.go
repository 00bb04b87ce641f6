// Package engines loads the Top-10 pick lists published by the
// upstream PutsEngine and Moonshot scanners and applies the
// smartmoney boost-only enrichment.
package engines

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/models"
)

// Latest-result filenames each engine writes into its cache dir.
const (
	putsLatestFile     = "puts_latest.json"
	moonshotLatestFile = "moonshot_latest.json"
)

// resultFile is the on-disk shape both engines publish.
type resultFile struct {
	GeneratedAt time.Time `json:"generated_at"`
	Picks       []struct {
		Symbol  string   `json:"symbol"`
		Rank    int      `json:"rank"`
		Score   float64  `json:"score"`
		Price   float64  `json:"price"`
		Signals []string `json:"signals"`
	} `json:"picks"`
}

// Adapter reads one engine's published results.
type Adapter struct {
	engine   models.Engine
	cacheDir string
	topN     int
	logger   *logrus.Logger
}

// NewPutsAdapter reads the PutsEngine cache.
func NewPutsAdapter(cacheDir string, topN int, logger *logrus.Logger) *Adapter {
	return &Adapter{engine: models.EnginePuts, cacheDir: cacheDir, topN: topN, logger: logger}
}

// NewMoonshotAdapter reads the Moonshot cache.
func NewMoonshotAdapter(cacheDir string, topN int, logger *logrus.Logger) *Adapter {
	return &Adapter{engine: models.EngineMoonshot, cacheDir: cacheDir, topN: topN, logger: logger}
}

// Engine returns which upstream engine this adapter reads.
func (a *Adapter) Engine() models.Engine { return a.engine }

func (a *Adapter) latestPath() string {
	name := putsLatestFile
	if a.engine == models.EngineMoonshot {
		name = moonshotLatestFile
	}
	return filepath.Join(a.cacheDir, name)
}

// CacheAge returns how old the engine's latest publication is.
func (a *Adapter) CacheAge(now time.Time) (time.Duration, error) {
	info, err := os.Stat(a.latestPath())
	if err != nil {
		return 0, fmt.Errorf("stat %s cache: %w", a.engine, err)
	}
	return now.Sub(info.ModTime()), nil
}

// TopPicks loads, normalizes, and ranks the engine's current picks,
// truncated to the configured Top-N.
func (a *Adapter) TopPicks() ([]models.Pick, error) {
	path := a.latestPath()
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("reading %s results: %w", a.engine, err)
	}

	var file resultFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s results: %w", a.engine, err)
	}

	picks := make([]models.Pick, 0, len(file.Picks))
	for _, raw := range file.Picks {
		if raw.Symbol == "" {
			a.logger.WithField("engine", a.engine).Warn("Skipping pick with empty symbol")
			continue
		}
		picks = append(picks, models.Pick{
			Symbol:      raw.Symbol,
			Engine:      a.engine,
			Rank:        raw.Rank,
			Score:       raw.Score,
			Price:       raw.Price,
			Signals:     raw.Signals,
			GeneratedAt: file.GeneratedAt,
		})
	}

	// Engines publish ranked lists, but re-sort by score as a guard
	// against stale rank fields.
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].Score > picks[j].Score })
	for i := range picks {
		picks[i].Rank = i + 1
	}

	if len(picks) > a.topN {
		picks = picks[:a.topN]
	}

	a.logger.WithFields(logrus.Fields{
		"engine": a.engine,
		"picks":  len(picks),
	}).Info("Pulled engine picks")
	return picks, nil
}

// ValidateCoverage logs symbols missing price or signals. Coverage
// problems never block the run.
func ValidateCoverage(picks []models.Pick, logger *logrus.Logger) {
	for _, p := range picks {
		if p.Price <= 0 {
			logger.WithFields(logrus.Fields{
				"engine": p.Engine,
				"symbol": p.Symbol,
			}).Warn("Pick missing price, cross-analysis will backfill")
		}
		if len(p.Signals) == 0 {
			logger.WithFields(logrus.Fields{
				"engine": p.Engine,
				"symbol": p.Symbol,
			}).Warn("Pick has no supporting signals")
		}
	}
}
