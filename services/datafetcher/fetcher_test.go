package datafetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go_signal_engine/services/bars"
)

const samplePayload = `{
	"data": [
		{"code": "VNM", "date": "2026-03-02", "open": 50.1, "high": 51.0, "low": 49.5, "close": 50.8, "nmVolume": 120000},
		{"code": "VNM", "date": "2026-03-03", "open": 50.8, "high": 52.0, "low": 50.2, "close": 51.9, "nmVolume": 98000}
	],
	"totalElements": 2
}`

func TestFetchDailyHistoryParsesBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "code:VNM")
		w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, 2, zap.NewNop())
	series, err := client.FetchDailyHistory(context.Background(),
		"VNM",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, series, 2)
	assert.Equal(t, "VNM", series[0].Symbol)
	assert.Equal(t, bars.SourceImport, series[0].Source)
	assert.Equal(t, 50.8, series[0].Close)
	assert.EqualValues(t, 120000, series[0].Volume)
	assert.True(t, series[0].Date.Before(series[1].Date))
}

func TestFetchDailyHistoryNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, 2, zap.NewNop())
	_, err := client.FetchDailyHistory(context.Background(), "VNM", time.Now().AddDate(0, 0, -5), time.Now())

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusBadGateway, provErr.StatusCode)
	assert.Equal(t, "VNM", provErr.Symbol)
}

func TestFetchDailyHistorySkipsBadDates(t *testing.T) {
	payload := `{"data": [
		{"code": "VNM", "date": "not-a-date", "close": 50},
		{"code": "VNM", "date": "2026-03-03", "close": 51}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, 2, zap.NewNop())
	series, err := client.FetchDailyHistory(context.Background(), "VNM", time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 51.0, series[0].Close)
}

func TestFetchAllCollectsPerSymbolResults(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if strings.Contains(r.URL.RawQuery, "code:BAD") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, 2, zap.NewNop())
	results := client.FetchAll(context.Background(),
		[]string{"VNM", "BAD", "FPT"},
		time.Now().AddDate(0, 0, -5), time.Now())

	require.Len(t, results, 3)
	assert.EqualValues(t, 3, calls.Load())

	bySymbol := map[string]FetchResult{}
	for _, res := range results {
		bySymbol[res.Symbol] = res
	}
	assert.NoError(t, bySymbol["VNM"].Err)
	assert.Len(t, bySymbol["VNM"].Bars, 2)
	assert.Error(t, bySymbol["BAD"].Err)
	assert.NoError(t, bySymbol["FPT"].Err)
}

