package models

import "encoding/json"

// PriceBar is one daily OHLCV observation for one symbol, produced by
// normalizing a single time-series entry from the market-data API.
//
// (Symbol, Timestamp) is the natural key: re-ingesting the same trading day
// overwrites the previous measurements (last-write-wins, no revision history).
// A bar is never mutated after construction.
type PriceBar struct {
	Symbol    string
	Timestamp string // trading day as provided upstream, e.g. "2024-01-02"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Raw       json.RawMessage // original per-date payload, kept for audit/debug
}
