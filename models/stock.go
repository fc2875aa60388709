package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Watchlist is one tracked symbol in the computation universe
type Watchlist struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArchivePrice is the long-history daily OHLCV table. Rows sort before the
// import tail when both tables hold the same (symbol, date).
type ArchivePrice struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"uniqueIndex:idx_archive_symbol_date" json:"symbol"`
	Date      time.Time       `gorm:"uniqueIndex:idx_archive_symbol_date" json:"date"`
	Open      decimal.Decimal `gorm:"type:decimal(15,2)" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(15,2)" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(15,2)" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(15,2)" json:"close"`
	Volume    int64           `json:"volume"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

// ImportedPrice is the short-tail table written by the EOD scan. On date
// conflicts these rows win over the archive.
type ImportedPrice struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"uniqueIndex:idx_imported_symbol_date" json:"symbol"`
	Date      time.Time       `gorm:"uniqueIndex:idx_imported_symbol_date" json:"date"`
	Open      decimal.Decimal `gorm:"type:decimal(15,2)" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(15,2)" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(15,2)" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(15,2)" json:"close"`
	Volume    int64           `json:"volume"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

// IndicatorLatest holds exactly one indicator row per symbol, the most recent
// computed date. Updated in place by the technical compute job.
type IndicatorLatest struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Symbol            string    `gorm:"uniqueIndex" json:"symbol"`
	Date              time.Time `json:"date"`
	Close             float64   `json:"close"`
	SMA20             float64   `json:"sma20"`
	SMA50             float64   `json:"sma50"`
	SMA200            float64   `json:"sma200"`
	EMA20             float64   `json:"ema20"`
	EMA50             float64   `json:"ema50"`
	RSI14             float64   `json:"rsi14"`
	ADX14             float64   `json:"adx14"`
	Donch20High       float64   `json:"donch20_high"`
	Donch20Low        float64   `json:"donch20_low"`
	High252           float64   `json:"high_252"`
	Low252            float64   `json:"low_252"`
	DistanceTo52wHigh float64   `json:"distance_to_52w_high"`
	MACD              float64   `json:"macd"`
	MACDSignal        float64   `json:"macd_signal"`
	TrendScore        float64   `json:"trend_score"`
	CombinedScore     float64   `json:"combined_score"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IndicatorHistory keeps one indicator row per (symbol, date) ever computed.
// Insert-only: reprocessing never overwrites history.
type IndicatorHistory struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Symbol            string    `gorm:"uniqueIndex:idx_indicator_hist_symbol_date" json:"symbol"`
	Date              time.Time `gorm:"uniqueIndex:idx_indicator_hist_symbol_date" json:"date"`
	Close             float64   `json:"close"`
	SMA20             float64   `json:"sma20"`
	SMA50             float64   `json:"sma50"`
	SMA200            float64   `json:"sma200"`
	EMA20             float64   `json:"ema20"`
	EMA50             float64   `json:"ema50"`
	RSI14             float64   `json:"rsi14"`
	ADX14             float64   `json:"adx14"`
	Donch20High       float64   `json:"donch20_high"`
	Donch20Low        float64   `json:"donch20_low"`
	High252           float64   `json:"high_252"`
	Low252            float64   `json:"low_252"`
	DistanceTo52wHigh float64   `json:"distance_to_52w_high"`
	MACD              float64   `json:"macd"`
	MACDSignal        float64   `json:"macd_signal"`
	TrendScore        float64   `json:"trend_score"`
	CombinedScore     float64   `json:"combined_score"`
	CreatedAt         time.Time `json:"created_at"`
}

// MigrateStockModels runs database migrations for price and indicator models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Watchlist{},
		&ArchivePrice{},
		&ImportedPrice{},
		&IndicatorLatest{},
		&IndicatorHistory{},
	)
}
