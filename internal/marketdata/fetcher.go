package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/logger"
)

// RawPayload is a decoded daily-series response body. Top-level values stay
// raw so marker keys can be inspected without committing to a shape upfront.
type RawPayload map[string]json.RawMessage

const (
	queryPath = "/query"

	// Response marker keys. The upstream signals throttling through "Note"
	// and invalid requests through "Error Message"; actual data lives under a
	// key prefixed with "Time Series".
	seriesKeyPrefix = "Time Series"
	noteKey         = "Note"
	errorMessageKey = "Error Message"
)

// Fetcher performs resilient single-symbol requests against the
// TIME_SERIES_DAILY_ADJUSTED endpoint.
//
// Retry policy: transient errors (transport failure, 5xx, rate-limit note,
// unexpected structure) are retried with exponential backoff from BackoffBase
// and ±20% jitter, up to MaxRetries attempts. Permanent errors (undecodable
// body, explicit API error) fail immediately.
//
// The Fetcher holds no per-call state beyond the shared HTTP client; the
// pipeline invokes it serially per credential, but it is safe to reuse.
type Fetcher struct {
	client      *resty.Client
	apiKey      string
	maxAttempts int
	backoffBase time.Duration
	log         zerolog.Logger
}

// NewFetcher builds a Fetcher with a reusable HTTP client so connection setup
// is amortized across the symbols of a run.
func NewFetcher(cfg config.AlphaVantageConfig) *Fetcher {
	maxAttempts := cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0) // retry discipline lives in FetchDaily, not the client

	return &Fetcher{
		client:      client,
		apiKey:      cfg.APIKey,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		log:         logger.Component("fetcher"),
	}
}

// FetchDaily fetches the compact daily-adjusted series for one symbol.
// It returns the decoded body on success, or an error once retries are
// exhausted or a permanent failure is detected. It never panics past this
// boundary; the caller treats any error as "no data for this symbol".
func (f *Fetcher) FetchDaily(ctx context.Context, symbol string) (RawPayload, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("fetch: empty symbol")
	}
	if f.apiKey == "" {
		return nil, fmt.Errorf("fetch %s: no API key configured", symbol)
	}

	backoff := retry.WithMaxRetries(uint64(f.maxAttempts-1),
		retry.WithJitterPercent(20, retry.NewExponential(f.backoffBase)))

	var payload RawPayload
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		f.log.Debug().Str("symbol", symbol).Int("attempt", attempt).Msg("fetching")
		p, err := f.fetchOnce(ctx, symbol, attempt)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		f.log.Error().Str("symbol", symbol).Int("attempts", attempt).Err(err).Msg("fetch failed")
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	return payload, nil
}

// fetchOnce performs a single attempt and classifies the outcome. Errors
// wrapped with retry.RetryableError are transient; everything else is
// permanent and stops the retry loop.
func (f *Fetcher) fetchOnce(ctx context.Context, symbol string, attempt int) (RawPayload, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function":   "TIME_SERIES_DAILY_ADJUSTED",
			"symbol":     symbol,
			"outputsize": "compact",
			"apikey":     f.apiKey,
		}).
		Get(queryPath)
	if err != nil {
		// timeout or connection failure, may self-resolve
		return nil, f.transient(symbol, attempt, fmt.Errorf("request: %w", err))
	}
	if code := resp.StatusCode(); code >= 500 {
		return nil, f.transient(symbol, attempt, fmt.Errorf("server error %d", code))
	}

	var payload RawPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		// malformed body will not improve on retry
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if raw, ok := payload[noteKey]; ok {
		return nil, f.transient(symbol, attempt, fmt.Errorf("rate limited: %s", rawString(raw)))
	}
	if raw, ok := payload[errorMessageKey]; ok {
		return nil, fmt.Errorf("api error: %s", rawString(raw))
	}
	if seriesKey(payload) == "" {
		return nil, f.transient(symbol, attempt, fmt.Errorf("unexpected response structure, keys: %v", payloadKeys(payload, 5)))
	}
	return payload, nil
}

// transient logs a retryable failure and marks it for the retry loop.
func (f *Fetcher) transient(symbol string, attempt int, err error) error {
	f.log.Warn().Str("symbol", symbol).Int("attempt", attempt).Err(err).Msg("transient fetch error")
	return retry.RetryableError(err)
}

// seriesKey returns the name of the time-series key in the payload, or ""
// when none is present.
func seriesKey(p RawPayload) string {
	for k := range p {
		if strings.HasPrefix(k, seriesKeyPrefix) {
			return k
		}
	}
	return ""
}

func payloadKeys(p RawPayload, limit int) []string {
	keys := make([]string, 0, limit)
	for k := range p {
		keys = append(keys, k)
		if len(keys) == limit {
			break
		}
	}
	return keys
}

// rawString unwraps a JSON string value for log/error messages, falling back
// to the raw bytes when it is not a string.
func rawString(r json.RawMessage) string {
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return string(r)
	}
	return s
}
