package engines

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/scoring"
)

const flowLatestFile = "options_flow_latest.json"

// flowRecord is one symbol's normalized options-flow factors as
// published by the unusual-whales collector.
type flowRecord struct {
	Symbol         string    `json:"symbol"`
	GammaLeverage  float64   `json:"gamma_leverage"`
	IVExpansion    float64   `json:"iv_expansion"`
	OIPositioning  float64   `json:"oi_positioning"`
	DeltaSweet     float64   `json:"delta_sweet"`
	ShortDTE       float64   `json:"short_dte"`
	VolRegime      float64   `json:"vol_regime"`
	DealerPosition float64   `json:"dealer_position"`
	Liquidity      float64   `json:"liquidity"`
	AsOf           time.Time `json:"as_of"`
}

type flowFile struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Records     []flowRecord `json:"records"`
}

// FlowReader loads per-symbol options-flow factors from the collector's
// cache. A missing cache is normal: every symbol then scores with the
// neutral default.
type FlowReader struct {
	cacheDir string
	logger   *logrus.Logger
}

// NewFlowReader creates a flow reader over the shared cache directory.
func NewFlowReader(cacheDir string, logger *logrus.Logger) *FlowReader {
	return &FlowReader{cacheDir: cacheDir, logger: logger}
}

// Load returns ORM inputs keyed by symbol. Missing or malformed caches
// return an empty map, never an error: flow data is an enhancement.
func (f *FlowReader) Load() map[string]*scoring.ORMInputs {
	out := make(map[string]*scoring.ORMInputs)
	path := filepath.Join(f.cacheDir, flowLatestFile)
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.WithError(err).Warn("Options flow cache unreadable")
		}
		return out
	}

	var file flowFile
	if err := json.Unmarshal(data, &file); err != nil {
		f.logger.WithError(err).Warn("Options flow cache malformed")
		return out
	}

	for _, r := range file.Records {
		if r.Symbol == "" {
			continue
		}
		asOf := r.AsOf
		if asOf.IsZero() {
			asOf = file.GeneratedAt
		}
		out[r.Symbol] = &scoring.ORMInputs{
			GammaLeverage:  r.GammaLeverage,
			IVExpansion:    r.IVExpansion,
			OIPositioning:  r.OIPositioning,
			DeltaSweet:     r.DeltaSweet,
			ShortDTE:       r.ShortDTE,
			VolRegime:      r.VolRegime,
			DealerPosition: r.DealerPosition,
			Liquidity:      r.Liquidity,
			HasRealData:    true,
			AsOf:           asOf,
		}
	}
	f.logger.WithField("symbols", len(out)).Debug("Options flow cache loaded")
	return out
}

// Lookup resolves the flow factors for a symbol. With no collector
// output at all it returns nil, which scores as missing. When the
// collector ran but skipped the symbol it returns a no-data input,
// which scores the neutral default.
func Lookup(flow map[string]*scoring.ORMInputs, symbol string) *scoring.ORMInputs {
	if len(flow) == 0 {
		return nil
	}
	if in, ok := flow[symbol]; ok {
		return in
	}
	return &scoring.ORMInputs{HasRealData: false}
}
