package marketdata

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
)

// Measurement labels appear either numbered ("1. open") or plain ("open")
// depending on the series variant; the first label that parses wins.
var (
	openLabels   = []string{"1. open", "open"}
	highLabels   = []string{"2. high", "high"}
	lowLabels    = []string{"3. low", "low"}
	closeLabels  = []string{"4. close", "close"}
	volumeLabels = []string{"6. volume", "volume"}
)

// Normalize transforms a fetched payload into canonical PriceBars.
//
// Failure handling is layered so one bad piece never drops more than itself:
//   - missing time-series key: empty result, logged as a structural anomaly
//   - malformed per-date entry: that entry is skipped, the rest survive
//   - unparseable individual field: that field becomes its zero value
//
// Entries are emitted in ascending date order. The store does not depend on
// order; sorting only makes runs deterministic.
func Normalize(symbol string, payload RawPayload) []models.PriceBar {
	log := logger.Component("normalizer")
	symbol = strings.TrimSpace(symbol)

	key := seriesKey(payload)
	if key == "" {
		log.Warn().Str("symbol", symbol).Msg("no time series key in payload")
		return nil
	}

	var series map[string]json.RawMessage
	if err := json.Unmarshal(payload[key], &series); err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("time series is not an object")
		return nil
	}

	dates := make([]string, 0, len(series))
	for d := range series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	bars := make([]models.PriceBar, 0, len(series))
	for _, date := range dates {
		raw := series[date]

		var values map[string]string
		if err := json.Unmarshal(raw, &values); err != nil {
			// one bad day must not drop the symbol's remaining data
			log.Warn().Str("symbol", symbol).Str("ts", date).Err(err).Msg("skipping malformed entry")
			continue
		}

		bars = append(bars, models.PriceBar{
			Symbol:    symbol,
			Timestamp: date,
			Open:      floatField(values, openLabels),
			High:      floatField(values, highLabels),
			Low:       floatField(values, lowLabels),
			Close:     floatField(values, closeLabels),
			Volume:    intField(values, volumeLabels),
			Raw:       raw,
		})
	}
	return bars
}

// floatField returns the first labeled value that parses as a float, or 0.
// Field-level tolerance: a missing or malformed price never rejects the row.
func floatField(values map[string]string, labels []string) float64 {
	for _, l := range labels {
		s, ok := values[l]
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

// intField is floatField's integer counterpart, used for volume.
func intField(values map[string]string, labels []string) int64 {
	for _, l := range labels {
		s, ok := values[l]
		if !ok {
			continue
		}
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return v
		}
	}
	return 0
}
