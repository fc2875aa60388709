package bars

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/services/apperror"
)

// Backing price tables the upsert engine can target. Both share the same
// column set; one parameterized engine serves them.
const (
	TableArchivePrices  = "archive_prices"
	TableImportedPrices = "imported_prices"
)

// UpsertStats is the three-way insert/update/skip accounting returned to the
// caller and aggregated into the job's records_processed.
type UpsertStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Total returns the number of bars the engine looked at.
func (s UpsertStats) Total() int {
	return s.Inserted + s.Updated + s.Skipped
}

// priceRow mirrors the shared column set of the two price tables.
type priceRow struct {
	ID        uint `gorm:"primaryKey"`
	Symbol    string
	Date      time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Source    string
	CreatedAt time.Time
}

// Upsert reconciles bars into the given table inside one transaction. With
// updateIfChanged false, rows that already exist are always skipped
// (insert-only mode, protecting computed history from reprocessing). With it
// true, an existing row is updated only when at least one field differs. A
// mid-batch failure rolls back the whole batch and returns an error tagged
// with the symbol.
func (s *Store) Upsert(table, symbol string, series []Bar, updateIfChanged bool) (UpsertStats, error) {
	var stats UpsertStats

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, b := range series {
			row := priceRow{
				Symbol: symbol,
				Date:   Day(b.Date),
				Open:   decimal.NewFromFloat(b.Open),
				High:   decimal.NewFromFloat(b.High),
				Low:    decimal.NewFromFloat(b.Low),
				Close:  decimal.NewFromFloat(b.Close),
				Volume: b.Volume,
				Source: b.Source,
			}

			var existing priceRow
			err := tx.Table(table).
				Where("symbol = ? AND date = ?", symbol, row.Date).
				First(&existing).Error

			if errors.Is(err, gorm.ErrRecordNotFound) {
				row.CreatedAt = time.Now()
				if err := tx.Table(table).Create(&row).Error; err != nil {
					return err
				}
				stats.Inserted++
				continue
			}
			if err != nil {
				return err
			}

			if !updateIfChanged || samePrice(existing, row) {
				stats.Skipped++
				continue
			}

			updates := map[string]interface{}{
				"open":   row.Open,
				"high":   row.High,
				"low":    row.Low,
				"close":  row.Close,
				"volume": row.Volume,
				"source": row.Source,
			}
			if err := tx.Table(table).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
			stats.Updated++
		}
		return nil
	})

	if err != nil {
		s.logger.Error("upsert batch rolled back",
			zap.String("table", table),
			zap.String("symbol", symbol),
			zap.Error(err))
		return UpsertStats{}, apperror.Persistence(fmt.Sprintf("upsert %s into %s", symbol, table), err)
	}
	return stats, nil
}

// samePrice compares every persisted field.
func samePrice(a, b priceRow) bool {
	return a.Open.Equal(b.Open) &&
		a.High.Equal(b.High) &&
		a.Low.Equal(b.Low) &&
		a.Close.Equal(b.Close) &&
		a.Volume == b.Volume &&
		a.Source == b.Source
}
