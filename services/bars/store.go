package bars

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/models"
	"go_signal_engine/services/apperror"
)

// Store loads and reconciles daily bars across the two backing price tables:
// the long-history archive and the short tail written by the EOD scan.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a new bar store
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// MergedSeries returns the deduplicated, date-ascending bar sequence for one
// symbol up to and including the cutoff day. When both sources are empty the
// result is an empty, non-nil slice.
func (s *Store) MergedSeries(symbol string, cutoff time.Time) ([]Bar, error) {
	cutoff = Day(cutoff)

	var archiveRows []models.ArchivePrice
	if err := s.db.Where("symbol = ? AND date <= ?", symbol, cutoff).
		Order("date ASC").
		Find(&archiveRows).Error; err != nil {
		return nil, apperror.Persistence("load archive prices "+symbol, err)
	}

	var importedRows []models.ImportedPrice
	if err := s.db.Where("symbol = ? AND date <= ?", symbol, cutoff).
		Order("date ASC").
		Find(&importedRows).Error; err != nil {
		return nil, apperror.Persistence("load imported prices "+symbol, err)
	}

	archive := make([]Bar, 0, len(archiveRows))
	for _, r := range archiveRows {
		archive = append(archive, Bar{
			Symbol: r.Symbol,
			Date:   Day(r.Date),
			Open:   r.Open.InexactFloat64(),
			High:   r.High.InexactFloat64(),
			Low:    r.Low.InexactFloat64(),
			Close:  r.Close.InexactFloat64(),
			Volume: r.Volume,
			Source: SourceArchive,
		})
	}

	imported := make([]Bar, 0, len(importedRows))
	for _, r := range importedRows {
		imported = append(imported, Bar{
			Symbol: r.Symbol,
			Date:   Day(r.Date),
			Open:   r.Open.InexactFloat64(),
			High:   r.High.InexactFloat64(),
			Low:    r.Low.InexactFloat64(),
			Close:  r.Close.InexactFloat64(),
			Volume: r.Volume,
			Source: SourceImport,
		})
	}

	return Merge(archive, imported), nil
}

// Merge concatenates the two provenance-tagged sequences, sorts by date with
// archive rows first on ties, and removes same-date duplicates keeping the
// last row after that sort, so the import tail wins conflicts.
func Merge(archive, imported []Bar) []Bar {
	merged := make([]Bar, 0, len(archive)+len(imported))
	merged = append(merged, archive...)
	merged = append(merged, imported...)

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Date.Equal(merged[j].Date) {
			return merged[i].Date.Before(merged[j].Date)
		}
		return sourceRank(merged[i].Source) < sourceRank(merged[j].Source)
	})

	out := make([]Bar, 0, len(merged))
	for _, b := range merged {
		if len(out) > 0 && out[len(out)-1].Date.Equal(b.Date) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
