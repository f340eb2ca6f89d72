package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guttosm/stockpulse/config"
)

const seriesBody = `{
	"Meta Data": {"2. Symbol": "AAPL"},
	"Time Series (Daily)": {
		"2024-01-02": {"1. open": "10.5", "2. high": "11.0", "3. low": "10.0", "4. close": "10.8", "6. volume": "1000"}
	}
}`

func newTestFetcher(t *testing.T, baseURL string, maxRetries int) *Fetcher {
	t.Helper()
	return NewFetcher(config.AlphaVantageConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Timeout:     2 * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
	})
}

func TestFetchDaily_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("function") != "TIME_SERIES_DAILY_ADJUSTED" || q.Get("symbol") != "AAPL" ||
			q.Get("outputsize") != "compact" || q.Get("apikey") != "test-key" {
			t.Errorf("unexpected query: %v", q)
		}
		_, _ = w.Write([]byte(seriesBody))
	}))
	defer srv.Close()

	payload, err := newTestFetcher(t, srv.URL, 5).FetchDaily(context.Background(), " AAPL ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if seriesKey(payload) != "Time Series (Daily)" {
		t.Fatalf("series key not found in payload")
	}
	if calls.Load() != 1 {
		t.Fatalf("want 1 call, got %d", calls.Load())
	}
}

func TestFetchDaily_RateLimitNote_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"Note": "Thank you for using our API, please slow down"}`))
			return
		}
		_, _ = w.Write([]byte(seriesBody))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, srv.URL, 5).FetchDaily(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("want 3 calls, got %d", calls.Load())
	}
}

func TestFetchDaily_RateLimitNote_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"Note": "rate limited"}`))
	}))
	defer srv.Close()

	payload, err := newTestFetcher(t, srv.URL, 3).FetchDaily(context.Background(), "AAPL")
	if err == nil || payload != nil {
		t.Fatalf("expected definitive failure, got payload=%v err=%v", payload, err)
	}
	// at least one retry happened, and no more than the configured maximum
	if got := calls.Load(); got != 3 {
		t.Fatalf("want exactly 3 attempts, got %d", got)
	}
}

func TestFetchDaily_ServerError_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(seriesBody))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, srv.URL, 5).FetchDaily(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("want 2 calls, got %d", calls.Load())
	}
}

func TestFetchDaily_APIError_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call for symbol NOPE"}`))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, srv.URL, 5).FetchDaily(context.Background(), "NOPE")
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent error must not retry: got %d calls", calls.Load())
	}
}

func TestFetchDaily_DecodeError_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, srv.URL, 5).FetchDaily(context.Background(), "AAPL")
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if calls.Load() != 1 {
		t.Fatalf("decode failure must not retry: got %d calls", calls.Load())
	}
}

func TestFetchDaily_UnexpectedStructure_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"Meta Data": {}}`))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, srv.URL, 2).FetchDaily(context.Background(), "AAPL")
	if err == nil {
		t.Fatalf("expected failure")
	}
	if calls.Load() != 2 {
		t.Fatalf("want 2 attempts, got %d", calls.Load())
	}
}

func TestFetchDaily_EmptySymbol(t *testing.T) {
	f := newTestFetcher(t, "http://localhost:0", 1)
	if _, err := f.FetchDaily(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
}

func TestFetchDaily_ZeroBackoffBase_Defaulted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(seriesBody))
	}))
	defer srv.Close()

	// an unset backoff base must be defaulted, not passed through to the
	// exponential backoff (which rejects non-positive bases)
	f := NewFetcher(config.AlphaVantageConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	})
	if f.backoffBase <= 0 {
		t.Fatalf("backoff base not defaulted: %v", f.backoffBase)
	}
	if _, err := f.FetchDaily(context.Background(), "AAPL"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestFetchDaily_MissingAPIKey(t *testing.T) {
	f := NewFetcher(config.AlphaVantageConfig{BaseURL: "http://localhost:0", MaxRetries: 1, BackoffBase: time.Millisecond})
	if _, err := f.FetchDaily(context.Background(), "AAPL"); err == nil {
		t.Fatalf("expected error without API key")
	}
}
