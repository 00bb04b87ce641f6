// Package pipeline orchestrates one Meta Engine run end to end: pull
// both engines, cross-analyze, score, gate, report, notify, and trade.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/analysis"
	"github.com/signalyard/metaengine/internal/calendar"
	"github.com/signalyard/metaengine/internal/engines"
	"github.com/signalyard/metaengine/internal/models"
	"github.com/signalyard/metaengine/internal/report"
	"github.com/signalyard/metaengine/internal/safeguards"
	"github.com/signalyard/metaengine/internal/scoring"
	"github.com/signalyard/metaengine/internal/storage"
	"github.com/signalyard/metaengine/internal/util"
)

// maxFlowAge marks options-flow data stale once it is older than one
// trading session.
const maxFlowAge = 12 * time.Hour

// Notifier interfaces keep the orchestrator testable and every channel
// optional.
type (
	EmailNotifier interface {
		Send(subject, body string) error
	}
	MessageNotifier interface {
		SendMessage(text string) error
	}
	SocialPoster interface {
		PostTopPicks(scanDate string, session models.Session, scored []models.ScoredPick) error
	}
)

// TradeExecutor places entries for gated picks.
type TradeExecutor interface {
	ExecuteTopPicks(ctx context.Context, session models.Session, scored []models.ScoredPick) []models.Trade
}

// PositionManager reconciles and manages live positions.
type PositionManager interface {
	ManagePositions(ctx context.Context) error
}

// PreflightChecker runs the pre-run environment checks.
type PreflightChecker interface {
	Run(ctx context.Context) *safeguards.Report
}

// Options control a single run.
type Options struct {
	// Force runs even on a non-trading day.
	Force bool
	// ScanOnly skips notifications and trade execution.
	ScanOnly bool
	// Session overrides the wall-clock session label when set.
	Session models.Session
}

// Deps wires everything one run touches. Notifiers, executor, and
// manager may be nil; the corresponding step is skipped.
type Deps struct {
	Puts       *engines.Adapter
	Moonshot   *engines.Adapter
	SmartMoney *engines.SmartMoneyScanner
	Flow       *engines.FlowReader
	Analyzer   *analysis.CrossAnalyzer
	Writer     *report.Writer
	Preflight  PreflightChecker
	Email      EmailNotifier
	Telegram   MessageNotifier
	X          SocialPoster
	Executor   TradeExecutor
	Manager    PositionManager
	Store      storage.TradeStore
	TopN       int
	OutputDir  string
	Location   *time.Location
	Logger     *logrus.Logger
}

// Result is the persisted outcome of one run.
type Result struct {
	RunID       string                   `json:"run_id"`
	Session     models.Session           `json:"session"`
	ScanDate    string                   `json:"scan_date"`
	StartedAt   time.Time                `json:"started_at"`
	DurationSec float64                  `json:"duration_sec"`
	Warnings    []string                 `json:"warnings,omitempty"`
	Direction   analysis.MarketDirection `json:"direction"`
	Scored      []models.ScoredPick      `json:"scored"`
	FiveX       []analysis.FiveXCandidate `json:"five_x,omitempty"`
	Trades      []models.Trade           `json:"trades,omitempty"`
	ReportPath  string                   `json:"report_path,omitempty"`
}

// Pipeline runs the Meta Engine flow.
type Pipeline struct {
	deps Deps
	now  func() time.Time
}

// New creates a pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps, now: time.Now}
}

// Run executes one full pass. Degradable steps log and continue; only a
// missing lock, a failed fatal pre-flight check, or a cancelled context
// abort the run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	log := p.deps.Logger
	start := p.now().In(p.deps.Location)

	if !opts.Force && !calendar.IsTradingDay(start) {
		log.WithField("date", start.Format("2006-01-02")).Info("Not a trading day, skipping run")
		return nil, nil
	}

	lock := newRunLock(p.deps.OutputDir, log)
	if err := lock.acquire(start); err != nil {
		return nil, fmt.Errorf("run lock: %w", err)
	}
	defer lock.release()

	session := opts.Session
	if session == "" {
		session = models.SessionFor(start)
	}
	res := &Result{
		RunID:     util.ShortID(uuid.New().String()),
		Session:   session,
		ScanDate:  start.Format("2006-01-02"),
		StartedAt: start,
	}
	runLog := log.WithFields(logrus.Fields{"run_id": res.RunID, "session": session})
	runLog.Info("Run started")

	if p.deps.Preflight != nil {
		pre := p.deps.Preflight.Run(ctx)
		res.Warnings = append(res.Warnings, pre.Warnings()...)
		if !pre.Passed() {
			return nil, fmt.Errorf("pre-flight checks failed")
		}
	}

	putsPicks := p.pull(p.deps.Puts, res)
	moonPicks := p.pull(p.deps.Moonshot, res)
	if p.deps.SmartMoney != nil {
		putsPicks = p.deps.SmartMoney.Enrich(putsPicks, models.EnginePuts, p.deps.TopN)
		moonPicks = p.deps.SmartMoney.Enrich(moonPicks, models.EngineMoonshot, p.deps.TopN)
	}
	engines.ValidateCoverage(append(append([]models.Pick{}, putsPicks...), moonPicks...), log)
	p.persistPull("puts_pull", start, putsPicks)
	p.persistPull("moonshot_pull", start, moonPicks)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := p.deps.Analyzer.Analyze(ctx, putsPicks, moonPicks)
	analysis.BackfillPrices(putsPicks, results)
	analysis.BackfillPrices(moonPicks, results)

	res.FiveX = analysis.FiveXScan(results)
	res.Direction = analysis.PredictDirection(ctx, p.deps.Analyzer.Bars(), results, log)
	res.Scored = p.score(start, putsPicks, moonPicks, results)

	summary := report.BuildSummary(start, res.Scored, res.Direction)
	if p.deps.Writer != nil {
		path, err := p.deps.Writer.WriteMarkdown(start, report.Markdown(summary, res.Scored, res.FiveX))
		if err != nil {
			runLog.WithError(err).Error("Report write failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("report: %v", err))
		} else {
			res.ReportPath = path
		}
	}

	if !opts.ScanOnly {
		p.notify(summary, res)
		p.trade(ctx, res)
	} else {
		runLog.Info("Scan-only mode, skipping notifications and trading")
	}

	p.recordSummary(res)

	res.DurationSec = p.now().Sub(start).Seconds()
	if p.deps.Writer != nil {
		if _, err := p.deps.Writer.WriteJSON("meta_engine_run", start, res); err != nil {
			runLog.WithError(err).Error("Results write failed")
		}
	}
	runLog.WithFields(logrus.Fields{
		"picks":    len(res.Scored),
		"trades":   len(res.Trades),
		"duration": res.DurationSec,
	}).Info("Run complete")
	return res, nil
}

func (p *Pipeline) pull(a *engines.Adapter, res *Result) []models.Pick {
	if a == nil {
		return nil
	}
	picks, err := a.TopPicks()
	if err != nil {
		p.deps.Logger.WithField("engine", a.Engine()).WithError(err).Error("Engine pull failed")
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s pull: %v", a.Engine(), err))
		return nil
	}
	return picks
}

// recordSummary writes the run's ledger row.
func (p *Pipeline) recordSummary(res *Result) {
	if p.deps.Store == nil {
		return
	}
	passed := 0
	for _, sp := range res.Scored {
		if sp.Passed {
			passed++
		}
	}
	summary := &storage.DailySummary{
		ScanDate:     res.ScanDate,
		Session:      string(res.Session),
		PicksPulled:  len(res.Scored),
		PicksPassed:  passed,
		TradesPlaced: len(res.Trades),
		Notes:        strings.Join(res.Warnings, "; "),
	}
	if err := p.deps.Store.SaveDailySummary(summary); err != nil {
		p.deps.Logger.WithError(err).Warn("Daily summary save failed")
	}
}

// persistPull archives what each engine actually published this run.
func (p *Pipeline) persistPull(prefix string, now time.Time, picks []models.Pick) {
	if p.deps.Writer == nil || len(picks) == 0 {
		return
	}
	if _, err := p.deps.Writer.WriteJSON(prefix, now, picks); err != nil {
		p.deps.Logger.WithField("prefix", prefix).WithError(err).Warn("Raw pull archive failed")
	}
}

// score folds ORM and the gate policy over the combined ranking.
func (p *Pipeline) score(now time.Time, putsPicks, moonPicks []models.Pick, results []models.CrossAnalysis) []models.ScoredPick {
	var flow map[string]*scoring.ORMInputs
	if p.deps.Flow != nil {
		flow = p.deps.Flow.Load()
	}

	bySymbol := make(map[string]models.Pick, len(putsPicks)+len(moonPicks))
	for _, pk := range putsPicks {
		bySymbol[key(pk.Engine, pk.Symbol)] = pk
	}
	for _, pk := range moonPicks {
		bySymbol[key(pk.Engine, pk.Symbol)] = pk
	}

	scored := make([]models.ScoredPick, 0, len(results))
	for i := range results {
		r := results[i]
		pick, ok := bySymbol[key(r.SourceEngine, r.Symbol)]
		if !ok {
			continue
		}

		orm := scoring.ComputeORM(engines.Lookup(flow, r.Symbol), now, maxFlowAge)
		_, movePotential := analysis.MovePotentialFor(r)
		gates := scoring.EvaluateGates(scoring.GateInput{
			BaseScore:     pick.Score,
			SignalCount:   len(pick.Signals),
			ORM:           orm,
			MovePotential: movePotential,
			Now:           now,
		})

		scored = append(scored, models.ScoredPick{
			Pick:          pick,
			Cross:         &r,
			ORMScore:      orm.Score,
			ORMStatus:     string(orm.Status),
			BlendedScore:  gates.BlendedScore,
			MovePotential: movePotential,
			Grade:         gates.Grade,
			Passed:        gates.Passed,
			RejectReasons: gates.RejectReasons,
			ThetaFlags:    gates.ThetaFlags,
		})
	}
	return scored
}

func (p *Pipeline) notify(summary *report.RunSummary, res *Result) {
	log := p.deps.Logger
	if p.deps.Email != nil {
		subject := fmt.Sprintf("Meta Engine %s %s", res.ScanDate, res.Session)
		if err := p.deps.Email.Send(subject, summary.Text()); err != nil {
			log.WithError(err).Error("Email notification failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("email: %v", err))
		}
	}
	if p.deps.Telegram != nil {
		if err := p.deps.Telegram.SendMessage(summary.Text()); err != nil {
			log.WithError(err).Error("Telegram notification failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("telegram: %v", err))
		}
	}
	if p.deps.X != nil {
		if err := p.deps.X.PostTopPicks(res.ScanDate, res.Session, res.Scored); err != nil {
			log.WithError(err).Error("X post failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("x: %v", err))
		}
	}
}

func (p *Pipeline) trade(ctx context.Context, res *Result) {
	if p.deps.Executor != nil {
		res.Trades = p.deps.Executor.ExecuteTopPicks(ctx, res.Session, res.Scored)
	}
	if p.deps.Manager != nil {
		if err := p.deps.Manager.ManagePositions(ctx); err != nil {
			p.deps.Logger.WithError(err).Error("Position management failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("positions: %v", err))
		}
	}
}

func key(engine models.Engine, symbol string) string {
	return string(engine) + ":" + symbol
}
