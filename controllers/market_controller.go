package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/models"
	"go_signal_engine/services/bars"
	"go_signal_engine/services/realtime"
	"go_signal_engine/services/rules"
)

// MarketController serves the computed read models: movers, signals, latest
// indicators and realtime quote snapshots.
type MarketController struct {
	db        *gorm.DB
	snapshots *realtime.Store
	logger    *zap.Logger
}

// NewMarketController creates a new market data controller
func NewMarketController(db *gorm.DB, snapshots *realtime.Store, logger *zap.Logger) *MarketController {
	return &MarketController{db: db, snapshots: snapshots, logger: logger}
}

// GetMovers returns the ranked gainers and losers for a day. Defaults to the
// most recent day that has rows.
func (mc *MarketController) GetMovers(c *gin.Context) {
	var day time.Time
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		day = bars.Day(parsed)
	} else {
		var latest models.DailyMover
		err := mc.db.Order("date DESC").First(&latest).Error
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusOK, gin.H{"gainers": []models.DailyMover{}, "losers": []models.DailyMover{}})
			return
		}
		if err != nil {
			mc.fail(c, "failed to load movers", err)
			return
		}
		day = latest.Date
	}

	var movers []models.DailyMover
	err := mc.db.Where("date = ?", day).Order("direction ASC, rank ASC").Find(&movers).Error
	if err != nil {
		mc.fail(c, "failed to load movers", err)
		return
	}

	gainers := make([]models.DailyMover, 0, len(movers))
	losers := make([]models.DailyMover, 0, len(movers))
	for _, m := range movers {
		if m.Direction == "gainer" {
			gainers = append(gainers, m)
		} else {
			losers = append(losers, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format("2006-01-02"), "gainers": gainers, "losers": losers})
}

// GetSignals returns recent rule matches, newest first. Filterable by symbol.
func (mc *MarketController) GetSignals(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	query := mc.db.Preload("Rule").Order("triggered_at DESC").Limit(limit)
	if symbol := c.Query("symbol"); symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var signals []models.Signal
	if err := query.Find(&signals).Error; err != nil {
		mc.fail(c, "failed to load signals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(signals), "signals": signals})
}

// GetIndicators returns the latest indicator row for one symbol.
func (mc *MarketController) GetIndicators(c *gin.Context) {
	symbol := c.Param("symbol")
	var row models.IndicatorLatest
	err := mc.db.Where("symbol = ?", symbol).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no indicators for " + symbol})
		return
	}
	if err != nil {
		mc.fail(c, "failed to load indicators", err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// GetQuotes returns the latest quote snapshots. Empty when the snapshot
// store is disabled.
func (mc *MarketController) GetQuotes(c *gin.Context) {
	quotes, err := mc.snapshots.LatestQuotes(c.Request.Context())
	if err != nil {
		mc.fail(c, "failed to load quotes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(quotes), "quotes": quotes})
}

// ValidateRule parses a rule expression without storing it.
func (mc *MarketController) ValidateRule(c *gin.Context) {
	var req struct {
		Expression string `json:"expression" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expression is required"})
		return
	}

	rule, err := rules.Parse(req.Expression)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"left":     rule.Left,
		"operator": rule.Operator,
		"right":    rule.Right,
	})
}

// CreateRule stores a new signal rule after validating its expression.
func (mc *MarketController) CreateRule(c *gin.Context) {
	var req struct {
		Name       string `json:"name" binding:"required"`
		Expression string `json:"expression" binding:"required"`
		Enabled    *bool  `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and expression are required"})
		return
	}
	if _, err := rules.Parse(req.Expression); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := models.SignalRule{Name: req.Name, Expression: req.Expression, Enabled: true}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if err := mc.db.Create(&rule).Error; err != nil {
		mc.fail(c, "failed to create rule", err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// GetRules lists all stored signal rules.
func (mc *MarketController) GetRules(c *gin.Context) {
	var ruleRows []models.SignalRule
	if err := mc.db.Order("name ASC").Find(&ruleRows).Error; err != nil {
		mc.fail(c, "failed to load rules", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(ruleRows), "rules": ruleRows})
}

// GetWatchlist lists the tracked universe.
func (mc *MarketController) GetWatchlist(c *gin.Context) {
	var symbols []models.Watchlist
	if err := mc.db.Order("symbol ASC").Find(&symbols).Error; err != nil {
		mc.fail(c, "failed to load watchlist", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(symbols), "watchlist": symbols})
}

// AddWatchlistSymbol adds one symbol to the universe.
func (mc *MarketController) AddWatchlistSymbol(c *gin.Context) {
	var req struct {
		Symbol   string `json:"symbol" binding:"required"`
		Name     string `json:"name"`
		Exchange string `json:"exchange"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	entry := models.Watchlist{Symbol: req.Symbol, Name: req.Name, Exchange: req.Exchange, Active: true}
	if err := mc.db.Create(&entry).Error; err != nil {
		mc.fail(c, "failed to add symbol", err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (mc *MarketController) fail(c *gin.Context, msg string, err error) {
	mc.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
