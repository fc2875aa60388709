package jobs

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/models"
	"go_signal_engine/services/analysis"
	"go_signal_engine/services/apperror"
	"go_signal_engine/services/bars"
	"go_signal_engine/services/datafetcher"
	"go_signal_engine/services/realtime"
	"go_signal_engine/services/rules"
)

// Options tunes the job bodies.
type Options struct {
	ImportTailDays   int // provider fetch window for the EOD scan
	SignalWindowBars int // trailing bar window for rule evaluation
	RetentionDays    int // TTL for batch-run records and derived rows
	MoversLimit      int // gainers/losers kept per day
}

func (o *Options) applyDefaults() {
	if o.ImportTailDays <= 0 {
		o.ImportTailDays = 10
	}
	if o.SignalWindowBars <= 0 {
		o.SignalWindowBars = 60
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 14
	}
	if o.MoversLimit <= 0 {
		o.MoversLimit = 20
	}
}

// Bodies builds the business logic for every job kind. Each body re-reads
// whatever it needs from storage; nothing is passed between chained jobs.
type Bodies struct {
	db        *gorm.DB
	store     *bars.Store
	fetcher   *datafetcher.Client
	snapshots *realtime.Store
	logger    *zap.Logger
	opts      Options
}

// NewBodies creates the job bodies. snapshots may be nil when the realtime
// store is disabled.
func NewBodies(db *gorm.DB, store *bars.Store, fetcher *datafetcher.Client, snapshots *realtime.Store, opts Options, logger *zap.Logger) *Bodies {
	opts.applyDefaults()
	return &Bodies{
		db:        db,
		store:     store,
		fetcher:   fetcher,
		snapshots: snapshots,
		logger:    logger,
		opts:      opts,
	}
}

// RegisterAll binds every job body to the runner.
func (b *Bodies) RegisterAll(r *Runner) {
	r.Register(EodScan, b.RunEodScan)
	r.Register(TechnicalCompute, b.RunTechnicalCompute)
	r.Register(DailyMovers, b.RunDailyMovers)
	r.Register(DailySignals, b.RunDailySignals)
	r.Register(UniverseRefresh, b.RunUniverseRefresh)
	r.Register(HistoryCleanup, b.RunHistoryCleanup)
}

// WatchlistSymbols returns the active computation universe, read once per
// refresh cycle.
func (b *Bodies) WatchlistSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := b.db.WithContext(ctx).Model(&models.Watchlist{}).
		Where("active = ?", true).
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, apperror.Persistence("load watchlist", err)
	}
	return symbols, nil
}

// RunEodScan imports the fresh daily-price tail for every watchlist symbol.
// Provider failures are recorded per symbol and retried on the next tick;
// storage failures abort the run.
func (b *Bodies) RunEodScan(ctx context.Context) (Outcome, error) {
	symbols, err := b.WatchlistSymbols(ctx)
	if err != nil {
		return Outcome{}, err
	}

	scan := models.EodScan{StartedAt: time.Now(), TotalSymbols: len(symbols)}
	if err := b.db.Create(&scan).Error; err != nil {
		return Outcome{}, apperror.Persistence("create eod scan", err)
	}

	end := time.Now()
	start := end.AddDate(0, 0, -b.opts.ImportTailDays)
	results := b.fetcher.FetchAll(ctx, symbols, start, end)

	var total bars.UpsertStats
	for _, res := range results {
		if res.Err != nil {
			b.logger.Warn("eod fetch failed",
				zap.String("symbol", res.Symbol),
				zap.Error(res.Err))
			b.recordScanError(scan.ID, res.Symbol, res.Err.Error())
			continue
		}

		stats, err := b.store.Upsert(bars.TableImportedPrices, res.Symbol, res.Bars, true)
		if err != nil {
			b.recordScanError(scan.ID, res.Symbol, err.Error())
			return Outcome{}, err
		}
		total.Inserted += stats.Inserted
		total.Updated += stats.Updated
		total.Skipped += stats.Skipped

		b.db.Create(&models.EodScanSuccess{
			EodScanID:  scan.ID,
			Symbol:     res.Symbol,
			Bars:       stats.Total(),
			OccurredAt: time.Now(),
		})
	}

	now := time.Now()
	b.db.Model(&scan).Updates(map[string]interface{}{
		"completed_at": &now,
		"inserted":     total.Inserted,
		"updated":      total.Updated,
		"skipped":      total.Skipped,
	})
	return Outcome{Records: total.Total()}, nil
}

func (b *Bodies) recordScanError(scanID uint, symbol, message string) {
	b.db.Create(&models.EodScanError{
		EodScanID:  scanID,
		Symbol:     symbol,
		Message:    message,
		OccurredAt: time.Now(),
	})
}

// RunTechnicalCompute recomputes indicator rows for every watchlist symbol
// from its merged price series.
func (b *Bodies) RunTechnicalCompute(ctx context.Context) (Outcome, error) {
	symbols, err := b.WatchlistSymbols(ctx)
	if err != nil {
		return Outcome{}, err
	}

	job := models.TechJob{StartedAt: time.Now(), TotalSymbols: len(symbols)}
	if err := b.db.Create(&job).Error; err != nil {
		return Outcome{}, apperror.Persistence("create tech job", err)
	}

	cutoff := time.Now()
	computed, skipped := 0, 0
	records := 0
	for _, symbol := range symbols {
		series, err := b.store.MergedSeries(symbol, cutoff)
		if err != nil {
			return Outcome{}, err
		}
		if len(series) < analysis.DonchianPeriod {
			skipped++
			b.db.Create(&models.TechJobSkip{
				TechJobID:  job.ID,
				Symbol:     symbol,
				Reason:     "insufficient data",
				OccurredAt: time.Now(),
			})
			continue
		}

		rows := analysis.Compute(series)
		n, err := b.storeIndicators(symbol, rows)
		if err != nil {
			b.db.Create(&models.TechJobError{
				TechJobID:  job.ID,
				Symbol:     symbol,
				Message:    err.Error(),
				OccurredAt: time.Now(),
			})
			b.db.Model(&job).Update("failed", gorm.Expr("failed + 1"))
			return Outcome{}, err
		}

		computed++
		records += n
		b.db.Create(&models.TechJobSuccess{
			TechJobID:  job.ID,
			Symbol:     symbol,
			Rows:       n,
			OccurredAt: time.Now(),
		})
	}

	now := time.Now()
	b.db.Model(&job).Updates(map[string]interface{}{
		"completed_at": &now,
		"computed":     computed,
		"skipped":      skipped,
	})
	return Outcome{Records: records}, nil
}

// storeIndicators writes the latest row (one per symbol, updated in place)
// and appends new history rows. History is insert-only so reprocessing never
// rewrites it.
func (b *Bodies) storeIndicators(symbol string, rows []analysis.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	last := rows[len(rows)-1]

	row := indicatorLatestRow(symbol, last)
	var existing models.IndicatorLatest
	err := b.db.Where("symbol = ?", symbol).First(&existing).Error
	switch {
	case err == nil:
		row.ID = existing.ID
		if err := b.db.Save(&row).Error; err != nil {
			return 0, apperror.Persistence("update latest indicators "+symbol, err)
		}
	case err == gorm.ErrRecordNotFound:
		if err := b.db.Create(&row).Error; err != nil {
			return 0, apperror.Persistence("insert latest indicators "+symbol, err)
		}
	default:
		return 0, apperror.Persistence("load latest indicators "+symbol, err)
	}

	var newest models.IndicatorHistory
	var newestDate time.Time
	err = b.db.Where("symbol = ?", symbol).Order("date DESC").First(&newest).Error
	if err == nil {
		newestDate = newest.Date
	} else if err != gorm.ErrRecordNotFound {
		return 0, apperror.Persistence("load indicator history "+symbol, err)
	}

	inserted := 0
	for _, row := range rows {
		// History starts once the Donchian window is full.
		if !analysis.Defined(row.Donch20High) {
			continue
		}
		if !row.Date.After(newestDate) {
			continue
		}
		hist := indicatorHistoryRow(symbol, row)
		if err := b.db.Create(&hist).Error; err != nil {
			return inserted, apperror.Persistence("insert indicator history "+symbol, err)
		}
		inserted++
	}
	// The latest-row write counts as one processed record.
	return inserted + 1, nil
}

// orZero maps an undefined series value to zero for storage, the same
// convention the indicator columns use for not-yet-full windows.
func orZero(v float64) float64 {
	if analysis.Defined(v) {
		return v
	}
	return 0
}

func indicatorLatestRow(symbol string, r analysis.Row) models.IndicatorLatest {
	return models.IndicatorLatest{
		Symbol:            symbol,
		Date:              r.Date,
		Close:             r.Close,
		SMA20:             orZero(r.SMA20),
		SMA50:             orZero(r.SMA50),
		SMA200:            orZero(r.SMA200),
		EMA20:             orZero(r.EMA20),
		EMA50:             orZero(r.EMA50),
		RSI14:             orZero(r.RSI14),
		ADX14:             orZero(r.ADX14),
		Donch20High:       orZero(r.Donch20High),
		Donch20Low:        orZero(r.Donch20Low),
		High252:           orZero(r.High252),
		Low252:            orZero(r.Low252),
		DistanceTo52wHigh: orZero(r.DistanceTo52wHigh),
		MACD:              orZero(r.MACD),
		MACDSignal:        orZero(r.MACDSignal),
		TrendScore:        r.TrendScore,
		CombinedScore:     r.CombinedScore,
	}
}

func indicatorHistoryRow(symbol string, r analysis.Row) models.IndicatorHistory {
	return models.IndicatorHistory{
		Symbol:            symbol,
		Date:              r.Date,
		Close:             r.Close,
		SMA20:             orZero(r.SMA20),
		SMA50:             orZero(r.SMA50),
		SMA200:            orZero(r.SMA200),
		EMA20:             orZero(r.EMA20),
		EMA50:             orZero(r.EMA50),
		RSI14:             orZero(r.RSI14),
		ADX14:             orZero(r.ADX14),
		Donch20High:       orZero(r.Donch20High),
		Donch20Low:        orZero(r.Donch20Low),
		High252:           orZero(r.High252),
		Low252:            orZero(r.Low252),
		DistanceTo52wHigh: orZero(r.DistanceTo52wHigh),
		MACD:              orZero(r.MACD),
		MACDSignal:        orZero(r.MACDSignal),
		TrendScore:        r.TrendScore,
		CombinedScore:     r.CombinedScore,
	}
}

// RunDailyMovers ranks 1-day percent moves across the universe and rewrites
// the movers table for the current day.
func (b *Bodies) RunDailyMovers(ctx context.Context) (Outcome, error) {
	symbols, err := b.WatchlistSymbols(ctx)
	if err != nil {
		return Outcome{}, err
	}

	type move struct {
		symbol string
		close  float64
		pct    float64
	}
	moves := make([]move, 0, len(symbols))
	cutoff := time.Now()
	for _, symbol := range symbols {
		series, err := b.store.MergedSeries(symbol, cutoff)
		if err != nil {
			return Outcome{}, err
		}
		if len(series) < 2 {
			continue
		}
		prev := series[len(series)-2].Close
		cur := series[len(series)-1].Close
		if prev == 0 {
			continue
		}
		pct := math.Round((cur-prev)/prev*100*100) / 100
		moves = append(moves, move{symbol: symbol, close: cur, pct: pct})
	}

	sort.Slice(moves, func(i, j int) bool { return moves[i].pct > moves[j].pct })

	day := bars.Day(time.Now())
	inserted := 0
	err = b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ?", day).Delete(&models.DailyMover{}).Error; err != nil {
			return err
		}
		for i := 0; i < len(moves) && i < b.opts.MoversLimit; i++ {
			if moves[i].pct <= 0 {
				break
			}
			if err := tx.Create(&models.DailyMover{
				Symbol:        moves[i].symbol,
				Date:          day,
				Close:         moves[i].close,
				ChangePercent: moves[i].pct,
				Rank:          i + 1,
				Direction:     "gainer",
			}).Error; err != nil {
				return err
			}
			inserted++
		}
		for i := 0; i < len(moves) && i < b.opts.MoversLimit; i++ {
			m := moves[len(moves)-1-i]
			if m.pct >= 0 {
				break
			}
			if err := tx.Create(&models.DailyMover{
				Symbol:        m.symbol,
				Date:          day,
				Close:         m.close,
				ChangePercent: m.pct,
				Rank:          i + 1,
				Direction:     "loser",
			}).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return Outcome{}, apperror.Persistence("rewrite daily movers", err)
	}
	return Outcome{Records: inserted}, nil
}

// RunDailySignals evaluates every enabled rule against each symbol's
// trailing bar window and records the matches. Rules that no longer parse
// are skipped with a warning; evaluation itself never errors.
func (b *Bodies) RunDailySignals(ctx context.Context) (Outcome, error) {
	var ruleRows []models.SignalRule
	if err := b.db.Where("enabled = ?", true).Find(&ruleRows).Error; err != nil {
		return Outcome{}, apperror.Persistence("load signal rules", err)
	}

	type compiled struct {
		model models.SignalRule
		rule  *rules.Rule
	}
	active := make([]compiled, 0, len(ruleRows))
	for _, row := range ruleRows {
		rule, err := rules.Parse(row.Expression)
		if err != nil {
			b.logger.Warn("skipping unparseable rule",
				zap.String("rule", row.Name),
				zap.String("expression", row.Expression),
				zap.Error(err))
			continue
		}
		active = append(active, compiled{model: row, rule: rule})
	}
	if len(active) == 0 {
		return Outcome{}, nil
	}

	symbols, err := b.WatchlistSymbols(ctx)
	if err != nil {
		return Outcome{}, err
	}

	cutoff := time.Now()
	created := 0
	for _, symbol := range symbols {
		series, err := b.store.MergedSeries(symbol, cutoff)
		if err != nil {
			return Outcome{}, err
		}
		if len(series) > b.opts.SignalWindowBars {
			series = series[len(series)-b.opts.SignalWindowBars:]
		}
		if len(series) == 0 {
			continue
		}
		sigDate := series[len(series)-1].Date

		for _, c := range active {
			if !rules.Evaluate(c.rule, series) {
				continue
			}

			var existing models.Signal
			err := b.db.Where("rule_id = ? AND symbol = ? AND date = ?", c.model.ID, symbol, sigDate).
				First(&existing).Error
			if err == nil {
				continue
			}
			if err != gorm.ErrRecordNotFound {
				return Outcome{}, apperror.Persistence("load signal", err)
			}

			if err := b.db.Create(&models.Signal{
				RuleID:      c.model.ID,
				Symbol:      symbol,
				Date:        sigDate,
				Expression:  c.model.Expression,
				TriggeredAt: time.Now(),
			}).Error; err != nil {
				return Outcome{}, apperror.Persistence("insert signal", err)
			}
			created++
		}
	}
	return Outcome{Records: created}, nil
}

// RunUniverseRefresh snapshots the latest quote for every symbol into the
// realtime store. A disabled store makes this a cheap no-op.
func (b *Bodies) RunUniverseRefresh(ctx context.Context) (Outcome, error) {
	symbols, err := b.WatchlistSymbols(ctx)
	if err != nil {
		return Outcome{}, err
	}

	end := time.Now()
	start := end.AddDate(0, 0, -7)
	results := b.fetcher.FetchAll(ctx, symbols, start, end)

	quotes := make([]realtime.Quote, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			b.logger.Warn("quote fetch failed",
				zap.String("symbol", res.Symbol),
				zap.Error(res.Err))
			continue
		}
		n := len(res.Bars)
		if n == 0 {
			continue
		}
		last := res.Bars[n-1]
		pct := 0.0
		if n > 1 && res.Bars[n-2].Close != 0 {
			prev := res.Bars[n-2].Close
			pct = math.Round((last.Close-prev)/prev*100*100) / 100
		}
		quotes = append(quotes, realtime.Quote{
			Symbol:        res.Symbol,
			Close:         last.Close,
			Volume:        last.Volume,
			Date:          last.Date,
			ChangePercent: pct,
		})
	}

	written, err := b.snapshots.UpsertQuotes(ctx, quotes)
	if err != nil {
		return Outcome{}, apperror.Persistence("upsert quote snapshots", err)
	}
	return Outcome{Records: written}, nil
}
