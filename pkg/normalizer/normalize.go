// Package normalizer turns a raw ENTSO-E market document body into a
// sorted sequence of hourly Price records for one bidding zone, or returns
// a typed error describing why it couldn't.
package normalizer

import (
	"encoding/xml"
	"sort"
	"strings"
	"time"

	"github.com/entsoeprices/dayahead/pkg/types"
	"github.com/shopspring/decimal"
)

const bodyPrefixLen = 200

// thousand is used to convert EUR/MWh to EUR/kWh via decimal division,
// avoiding float accumulation on the persisted path.
var thousand = decimal.NewFromInt(1000)

// Normalize decodes body (the response of a single ENTSO-E GET) and returns
// hourly Price records for zoneCode, already converted to EUR/kWh and
// canonicalized to PT60M where aggregation applies. fetchedAt is stamped
// onto every returned record.
func Normalize(body []byte, zoneCode string, fetchedAt time.Time) ([]types.Price, error) {
	var pub publicationDocument
	if err := xml.Unmarshal(body, &pub); err == nil && len(pub.TimeSeries) > 0 {
		return normalizePublication(pub, zoneCode, fetchedAt)
	}

	var ack acknowledgementDocument
	if err := xml.Unmarshal(body, &ack); err == nil && len(ack.Reasons) > 0 {
		return normalizeAcknowledgement(ack)
	}

	// A Publication_MarketDocument with zero TimeSeries is syntactically
	// valid but empty and yields an empty result; an
	// Acknowledgement_MarketDocument with no reasons is an invalid
	// response. Any other body is neither shape we understand.
	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(body, &probe); err == nil {
		switch probe.XMLName.Local {
		case "Publication_MarketDocument":
			return nil, nil
		case "Acknowledgement_MarketDocument":
			return nil, &InvalidResponseError{Message: "acknowledgement with no reasons"}
		}
	}

	prefix := string(body)
	if len(prefix) > bodyPrefixLen {
		prefix = prefix[:bodyPrefixLen]
	}
	return nil, &XMLParseError{BodyPrefix: prefix}
}

func normalizeAcknowledgement(ack acknowledgementDocument) ([]types.Price, error) {
	for _, r := range ack.Reasons {
		if r.Code == reasonCodeNoData {
			return nil, nil
		}
	}
	msgs := make([]string, 0, len(ack.Reasons))
	for _, r := range ack.Reasons {
		msgs = append(msgs, r.Code+": "+r.Text)
	}
	return nil, &InvalidResponseError{Message: strings.Join(msgs, "; ")}
}

func normalizePublication(pub publicationDocument, zoneCode string, fetchedAt time.Time) ([]types.Price, error) {
	var all []types.Price

	for _, ts := range pub.TimeSeries {
		for _, p := range ts.Periods {
			prices, err := normalizePeriod(p, zoneCode, fetchedAt)
			if err != nil {
				return nil, err
			}
			all = append(all, prices...)
		}
	}

	all = aggregateHourly(all)

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	return all, nil
}

// normalizePeriod forward-fills one Period's points into one Price per
// expected position, in the period's native resolution (aggregation to
// hourly happens afterward, across all periods of the response).
func normalizePeriod(p period, zoneCode string, fetchedAt time.Time) ([]types.Price, error) {
	start, err := parseTimestamp(p.TimeInterval.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTimestamp(p.TimeInterval.End)
	if err != nil {
		return nil, err
	}

	resolution, err := parseResolution(p.Resolution)
	if err != nil {
		return nil, err
	}

	expected := expectedPointCount(start, end, resolution)
	if expected == 0 {
		return nil, nil
	}

	byPosition := make(map[int]decimal.Decimal, len(p.Points))
	maxPosition := 0
	for _, pt := range p.Points {
		byPosition[pt.Position] = parsePriceAmount(pt.PriceAmount)
		if pt.Position > maxPosition {
			maxPosition = pt.Position
		}
	}

	if _, ok := byPosition[1]; !ok {
		return nil, ErrMissingFirstPeriod
	}
	if maxPosition > expected {
		return nil, &PeriodCountMismatchError{Expected: expected, Got: maxPosition}
	}

	prices := make([]types.Price, 0, expected)
	var previous decimal.Decimal
	for pos := 1; pos <= expected; pos++ {
		if v, ok := byPosition[pos]; ok {
			previous = v
		}
		ts := start.Add(resolution * time.Duration(pos-1))
		prices = append(prices, types.Price{
			Timestamp:   ts,
			BiddingZone: zoneCode,
			PriceKWH:    previous.Div(thousand),
			Currency:    types.CurrencyEUR,
			Resolution:  canonicalResolution(p.Resolution),
			FetchedAt:   fetchedAt,
		})
	}

	return prices, nil
}

// canonicalResolution returns the ENTSO-E-literal spelling used internally
// before aggregation collapses sub-hourly resolutions to PT60M.
func canonicalResolution(raw string) string {
	if raw == "PT1H" {
		return types.ResolutionHourly
	}
	return raw
}

// parsePriceAmount constructs a decimal from the XML float's string form,
// defaulting to zero on parse failure (no floating-point accumulation on
// the persisted path).
func parsePriceAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseTimestamp accepts RFC-3339, plus the compressed form ENTSO-E often
// emits without seconds ("2025-12-31T23:00Z").
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04Z", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &TimestampParseError{Value: s}
}

// aggregateHourly groups PT15M/PT30M prices by their UTC hour and emits one
// record per hour whose price is the arithmetic mean of the group. Hourly
// (or coarser) prices pass through unchanged.
func aggregateHourly(prices []types.Price) []types.Price {
	var passthrough []types.Price
	type bucket struct {
		sum       decimal.Decimal
		count     int
		currency  string
		fetchedAt time.Time
	}
	buckets := make(map[time.Time]*bucket)
	var bucketOrder []time.Time

	for _, p := range prices {
		if !isSubHourly(p.Resolution) {
			passthrough = append(passthrough, p)
			continue
		}
		hour := p.Timestamp.Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{currency: p.Currency, fetchedAt: p.FetchedAt}
			buckets[hour] = b
			bucketOrder = append(bucketOrder, hour)
		}
		b.sum = b.sum.Add(p.PriceKWH)
		b.count++
	}

	result := make([]types.Price, 0, len(passthrough)+len(bucketOrder))
	result = append(result, passthrough...)
	for _, hour := range bucketOrder {
		b := buckets[hour]
		result = append(result, types.Price{
			Timestamp:   hour,
			BiddingZone: "", // filled in below
			PriceKWH:    b.sum.Div(decimal.NewFromInt(int64(b.count))),
			Currency:    b.currency,
			Resolution:  types.ResolutionHourly,
			FetchedAt:   b.fetchedAt,
		})
	}

	// bidding zone is identical across the whole response; copy it from any
	// passthrough or source price rather than threading it separately.
	if len(prices) > 0 {
		zone := prices[0].BiddingZone
		for i := len(passthrough); i < len(result); i++ {
			result[i].BiddingZone = zone
		}
	}

	return result
}
