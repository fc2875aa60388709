package jobs

import "errors"

// Kind identifies one of the fixed, statically known batch jobs. The set is
// closed: there is no runtime job registration.
type Kind string

const (
	EodScan          Kind = "eod_scan"
	TechnicalCompute Kind = "technical_compute"
	DailyMovers      Kind = "daily_movers"
	DailySignals     Kind = "daily_signals"
	UniverseRefresh  Kind = "universe_refresh"
	HistoryCleanup   Kind = "history_cleanup"
)

// AllKinds lists every job kind.
var AllKinds = []Kind{
	EodScan,
	TechnicalCompute,
	DailyMovers,
	DailySignals,
	UniverseRefresh,
	HistoryCleanup,
}

// successors is the fixed dependency chain. A job completing successfully
// triggers its successor synchronously; a kind with no entry is terminal.
var successors = map[Kind]Kind{
	EodScan:          TechnicalCompute,
	TechnicalCompute: DailyMovers,
	DailyMovers:      DailySignals,
}

// lockKeys reserves one advisory lock key per job kind. Keys are assigned,
// not hashed, so unrelated kinds can never collide.
var lockKeys = map[Kind]int64{
	EodScan:          7_432_001,
	TechnicalCompute: 7_432_002,
	DailyMovers:      7_432_003,
	DailySignals:     7_432_004,
	UniverseRefresh:  7_432_005,
	HistoryCleanup:   7_432_006,
}

// ErrUnknownJob is returned for a Kind outside the closed set.
var ErrUnknownJob = errors.New("unknown job kind")

// Valid reports whether k is one of the known job kinds.
func Valid(k Kind) bool {
	_, ok := lockKeys[k]
	return ok
}

// Successor returns the next job in the chain, if any.
func Successor(k Kind) (Kind, bool) {
	next, ok := successors[k]
	return next, ok
}
