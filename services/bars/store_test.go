package bars

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"go_signal_engine/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateStockModels(db))
	return NewStore(db, zap.NewNop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testBar(date time.Time, close float64, source string) Bar {
	return Bar{
		Symbol: "VNM",
		Date:   date,
		Open:   close - 1,
		High:   close + 1,
		Low:    close - 2,
		Close:  close,
		Volume: 1000,
		Source: source,
	}
}

func TestMergeImportWinsOnDateConflict(t *testing.T) {
	d := day(2026, time.March, 2)
	archive := []Bar{testBar(d, 50.0, SourceArchive)}
	imported := []Bar{testBar(d, 51.5, SourceImport)}

	merged := Merge(archive, imported)

	require.Len(t, merged, 1)
	assert.Equal(t, 51.5, merged[0].Close)
	assert.Equal(t, SourceImport, merged[0].Source)
}

func TestMergeSortsAscendingByDate(t *testing.T) {
	archive := []Bar{
		testBar(day(2026, time.March, 3), 52, SourceArchive),
		testBar(day(2026, time.March, 1), 50, SourceArchive),
	}
	imported := []Bar{
		testBar(day(2026, time.March, 2), 51, SourceImport),
	}

	merged := Merge(archive, imported)

	require.Len(t, merged, 3)
	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i-1].Date.Before(merged[i].Date))
	}
}

func TestMergeEmptyInputsGiveEmptyNonNil(t *testing.T) {
	merged := Merge(nil, nil)
	require.NotNil(t, merged)
	assert.Empty(t, merged)
}

func TestMergeDisjointDatesKeepsAll(t *testing.T) {
	archive := []Bar{
		testBar(day(2026, time.March, 1), 50, SourceArchive),
		testBar(day(2026, time.March, 2), 51, SourceArchive),
	}
	imported := []Bar{
		testBar(day(2026, time.March, 3), 52, SourceImport),
	}

	merged := Merge(archive, imported)

	require.Len(t, merged, 3)
	assert.Equal(t, SourceArchive, merged[0].Source)
	assert.Equal(t, SourceImport, merged[2].Source)
}

func TestMergedSeriesAcrossTables(t *testing.T) {
	store := newTestStore(t)

	archiveRows := []models.ArchivePrice{
		{Symbol: "VNM", Date: day(2026, time.March, 1), Close: decimal.NewFromFloat(50), Volume: 100},
		{Symbol: "VNM", Date: day(2026, time.March, 2), Close: decimal.NewFromFloat(51), Volume: 100},
	}
	require.NoError(t, store.db.Create(&archiveRows).Error)

	importedRows := []models.ImportedPrice{
		// Same date as archive, revised close. Must win.
		{Symbol: "VNM", Date: day(2026, time.March, 2), Close: decimal.NewFromFloat(99), Volume: 200},
		{Symbol: "VNM", Date: day(2026, time.March, 3), Close: decimal.NewFromFloat(52), Volume: 200},
	}
	require.NoError(t, store.db.Create(&importedRows).Error)

	series, err := store.MergedSeries("VNM", day(2026, time.March, 10))
	require.NoError(t, err)

	require.Len(t, series, 3)
	assert.Equal(t, 50.0, series[0].Close)
	assert.Equal(t, 99.0, series[1].Close)
	assert.Equal(t, SourceImport, series[1].Source)
	assert.Equal(t, 52.0, series[2].Close)
}

func TestMergedSeriesRespectsCutoff(t *testing.T) {
	store := newTestStore(t)

	rows := []models.ArchivePrice{
		{Symbol: "VNM", Date: day(2026, time.March, 1), Close: decimal.NewFromFloat(50)},
		{Symbol: "VNM", Date: day(2026, time.March, 5), Close: decimal.NewFromFloat(55)},
	}
	require.NoError(t, store.db.Create(&rows).Error)

	series, err := store.MergedSeries("VNM", day(2026, time.March, 3))
	require.NoError(t, err)

	require.Len(t, series, 1)
	assert.Equal(t, 50.0, series[0].Close)
}

func TestMergedSeriesUnknownSymbolIsEmptyNonNil(t *testing.T) {
	store := newTestStore(t)

	series, err := store.MergedSeries("NOPE", day(2026, time.March, 3))
	require.NoError(t, err)
	require.NotNil(t, series)
	assert.Empty(t, series)
}
