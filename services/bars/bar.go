package bars

import "time"

// Provenance tags. Archive rows sort before import rows so that the freshly
// imported tail wins same-date conflicts during the merge.
const (
	SourceArchive = "archive"
	SourceImport  = "import"
)

// Bar is one OHLCV observation for a symbol on a calendar day. Immutable
// value once computed; keyed by (symbol, date).
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Source string
}

// Day normalizes a timestamp to its calendar day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sourceRank(source string) int {
	if source == SourceArchive {
		return 0
	}
	return 1
}
