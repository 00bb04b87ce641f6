// Package safeguards runs pre-flight checks before a pipeline run so a
// broken environment degrades loudly instead of producing a silent bad
// report.
package safeguards

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/signalyard/metaengine/internal/broker"
	"github.com/signalyard/metaengine/internal/engines"
	"github.com/signalyard/metaengine/internal/marketdata"
	"github.com/signalyard/metaengine/internal/storage"
)

const (
	// minFreeDiskBytes is the floor below which report and database
	// writes are considered at risk.
	minFreeDiskBytes = 100 * 1024 * 1024
	// defaultMaxCacheAge flags engine result files older than one day
	// of runs when the config does not say otherwise.
	defaultMaxCacheAge = 24 * time.Hour
)

// CheckResult is one pre-flight check outcome.
type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Fatal   bool   `json:"fatal"`
	Message string `json:"message"`
}

// Report is the set of pre-flight check results.
type Report struct {
	Results []CheckResult `json:"results"`
}

// Passed reports whether no fatal check failed. Non-fatal failures are
// warnings: the run proceeds in degraded mode.
func (r *Report) Passed() bool {
	for _, c := range r.Results {
		if !c.OK && c.Fatal {
			return false
		}
	}
	return true
}

// Warnings returns the messages of non-fatal failed checks.
func (r *Report) Warnings() []string {
	var out []string
	for _, c := range r.Results {
		if !c.OK && !c.Fatal {
			out = append(out, fmt.Sprintf("%s: %s", c.Name, c.Message))
		}
	}
	return out
}

// Checker wires the dependencies the pre-flight pass probes.
type Checker struct {
	OutputDir   string
	DBPath      string
	Adapters    []*engines.Adapter
	Bars        marketdata.BarProvider
	Broker      broker.Broker
	Store       storage.TradeStore
	MaxCacheAge time.Duration
	Logger      *logrus.Logger

	now func() time.Time
}

// NewChecker creates a pre-flight checker. A non-positive maxCacheAge
// falls back to the one-day default.
func NewChecker(outputDir, dbPath string, adapters []*engines.Adapter,
	bars marketdata.BarProvider, b broker.Broker, store storage.TradeStore,
	maxCacheAge time.Duration, logger *logrus.Logger) *Checker {
	if maxCacheAge <= 0 {
		maxCacheAge = defaultMaxCacheAge
	}
	return &Checker{
		OutputDir:   outputDir,
		DBPath:      dbPath,
		Adapters:    adapters,
		Bars:        bars,
		Broker:      b,
		Store:       store,
		MaxCacheAge: maxCacheAge,
		Logger:      logger,
		now:         time.Now,
	}
}

// Run executes every check and logs each outcome. Only the database
// check is fatal.
func (c *Checker) Run(ctx context.Context) *Report {
	report := &Report{}
	add := func(res CheckResult) {
		report.Results = append(report.Results, res)
		entry := c.Logger.WithFields(logrus.Fields{"check": res.Name, "ok": res.OK})
		switch {
		case res.OK:
			entry.Debug("Pre-flight check passed")
		case res.Fatal:
			entry.Error(res.Message)
		default:
			entry.Warn(res.Message)
		}
	}

	add(c.checkDiskSpace())
	for _, a := range c.Adapters {
		add(c.checkEngineCache(a))
	}
	add(c.checkMarketData(ctx))
	add(c.checkBrokerAccount(ctx))
	add(c.checkDatabase())
	return report
}

func (c *Checker) checkDiskSpace() CheckResult {
	res := CheckResult{Name: "disk_space", OK: true}
	dir := c.OutputDir
	if dir == "" {
		dir = "."
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		res.OK = false
		res.Message = fmt.Sprintf("cannot stat %s: %v", dir, err)
		return res
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < minFreeDiskBytes {
		res.OK = false
		res.Message = fmt.Sprintf("only %d MB free under %s", free/(1024*1024), dir)
	}
	return res
}

func (c *Checker) checkEngineCache(a *engines.Adapter) CheckResult {
	res := CheckResult{Name: fmt.Sprintf("%s_cache", a.Engine()), OK: true}
	age, err := a.CacheAge(c.now())
	if err != nil {
		res.OK = false
		res.Message = fmt.Sprintf("cache unreadable: %v", err)
		return res
	}
	if age > c.MaxCacheAge {
		res.OK = false
		res.Message = fmt.Sprintf("cache is %s old, engine may not have run", age.Round(time.Minute))
	}
	return res
}

func (c *Checker) checkMarketData(ctx context.Context) CheckResult {
	res := CheckResult{Name: "market_data", OK: true}
	if c.Bars == nil {
		res.OK = false
		res.Message = "market data client not configured"
		return res
	}
	if _, err := c.Bars.GetPrevClose(ctx, "SPY"); err != nil {
		res.OK = false
		res.Message = fmt.Sprintf("SPY probe failed: %v", err)
	}
	return res
}

func (c *Checker) checkBrokerAccount(ctx context.Context) CheckResult {
	res := CheckResult{Name: "broker_account", OK: true}
	if c.Broker == nil {
		res.OK = false
		res.Message = "broker not configured, trading disabled"
		return res
	}
	acct, err := c.Broker.GetAccount(ctx)
	if err != nil {
		res.OK = false
		res.Message = fmt.Sprintf("account fetch failed: %v", err)
		return res
	}
	if acct.Status != "ACTIVE" {
		res.OK = false
		res.Message = fmt.Sprintf("account status is %s", acct.Status)
	}
	return res
}

// checkDatabase verifies the trade ledger is writable. This is the only
// fatal check: every other failure degrades a feature, a dead database
// corrupts the trade lifecycle.
func (c *Checker) checkDatabase() CheckResult {
	res := CheckResult{Name: "database", OK: true, Fatal: true}
	if c.Store == nil {
		res.OK = false
		res.Message = "trade store not configured"
		return res
	}
	if _, err := c.Store.GetOpenTrades(); err != nil {
		res.OK = false
		res.Message = fmt.Sprintf("trade store unreadable: %v", err)
		return res
	}
	if c.DBPath != "" {
		probe := filepath.Join(filepath.Dir(c.DBPath), ".write_probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			res.OK = false
			res.Message = fmt.Sprintf("database directory not writable: %v", err)
			return res
		}
		os.Remove(probe)
	}
	return res
}
