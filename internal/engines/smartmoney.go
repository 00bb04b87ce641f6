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

const smartMoneyLatestFile = "smart_money_latest.json"

// minConviction gates which smart-money candidates may fill open slots.
const minConviction = 0.50

// smartMoneyFile is the scanner's published shape.
type smartMoneyFile struct {
	GeneratedAt time.Time `json:"generated_at"`
	Candidates  []struct {
		Symbol     string   `json:"symbol"`
		Engine     string   `json:"engine"` // puts | moonshot
		Conviction float64  `json:"conviction"`
		Price      float64  `json:"price"`
		Signals    []string `json:"signals"`
	} `json:"candidates"`
}

// SmartMoneyScanner reads institutional-flow candidates from its cache.
type SmartMoneyScanner struct {
	cacheDir string
	logger   *logrus.Logger
}

// NewSmartMoneyScanner creates a scanner reading from cacheDir.
func NewSmartMoneyScanner(cacheDir string, logger *logrus.Logger) *SmartMoneyScanner {
	return &SmartMoneyScanner{cacheDir: cacheDir, logger: logger}
}

// Enrich fills empty Top-N slots with high-conviction smart-money
// candidates for the given engine. Boost-only: direct engine picks are
// never displaced, and symbols already picked are never duplicated.
// A missing cache file is not an error; the pick list passes through.
func (s *SmartMoneyScanner) Enrich(picks []models.Pick, engine models.Engine, topN int) []models.Pick {
	if len(picks) >= topN {
		return picks
	}

	path := filepath.Join(s.cacheDir, smartMoneyLatestFile)
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Smart money cache unreadable, skipping enrichment")
		}
		return picks
	}

	var file smartMoneyFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.WithError(err).Warn("Smart money cache malformed, skipping enrichment")
		return picks
	}

	held := make(map[string]bool, len(picks))
	for _, p := range picks {
		held[p.Symbol] = true
	}

	type candidate struct {
		pick       models.Pick
		conviction float64
	}
	var eligible []candidate
	for _, c := range file.Candidates {
		if models.Engine(c.Engine) != engine {
			continue
		}
		if c.Conviction < minConviction || held[c.Symbol] {
			continue
		}
		eligible = append(eligible, candidate{
			pick: models.Pick{
				Symbol:      c.Symbol,
				Engine:      engine,
				Score:       c.Conviction,
				Price:       c.Price,
				Signals:     c.Signals,
				SmartMoney:  true,
				Conviction:  c.Conviction,
				GeneratedAt: file.GeneratedAt,
			},
			conviction: c.Conviction,
		})
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].conviction > eligible[j].conviction })

	added := 0
	for _, c := range eligible {
		if len(picks) >= topN {
			break
		}
		c.pick.Rank = len(picks) + 1
		picks = append(picks, c.pick)
		held[c.pick.Symbol] = true
		added++
	}

	if added > 0 {
		s.logger.WithFields(logrus.Fields{
			"engine": engine,
			"added":  added,
		}).Info(fmt.Sprintf("Smart money enrichment filled %d open slot(s)", added))
	}
	return picks
}
