// Package portfolio defines the engine's data model: price history,
// derived returns, holdings, and weight vectors. All inputs are
// caller-supplied and treated as read-only; derived values are fresh
// allocations.
package portfolio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/quantfolio/quantfolio/pkg/formulas"
)

var (
	// ErrEmptySeries indicates a price series with no observations.
	ErrEmptySeries = errors.New("empty price series")
	// ErrNonIncreasingDates indicates out-of-order or duplicate dates.
	ErrNonIncreasingDates = errors.New("price series dates must be strictly increasing")
	// ErrNoCommonDates indicates instruments whose calendars do not intersect.
	ErrNoCommonDates = errors.New("price series share no common dates")
	// ErrMisalignedSeries indicates return series of unequal length.
	ErrMisalignedSeries = errors.New("return series are misaligned")
	// ErrUnknownSymbol indicates a symbol missing from the aligned history.
	ErrUnknownSymbol = errors.New("symbol not present in history")
)

// PricePoint is a single (date, price) observation. Dates are ISO
// "2006-01-02" strings, which sort lexicographically in calendar order.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// PriceSeries is an ordered sequence of price observations for one instrument.
type PriceSeries []PricePoint

// Validate checks that the series is non-empty with strictly increasing dates.
func (s PriceSeries) Validate() error {
	if len(s) == 0 {
		return ErrEmptySeries
	}
	for i := 1; i < len(s); i++ {
		if s[i].Date <= s[i-1].Date {
			return fmt.Errorf("%w: %q followed by %q", ErrNonIncreasingDates, s[i-1].Date, s[i].Date)
		}
	}
	return nil
}

// Prices returns the raw price values in date order.
func (s PriceSeries) Prices() []float64 {
	prices := make([]float64, len(s))
	for i, p := range s {
		prices[i] = p.Price
	}
	return prices
}

// Returns derives fractional periodic returns; length is len(s)-1.
func (s PriceSeries) Returns() []float64 {
	return formulas.Returns(s.Prices())
}

// History holds multi-instrument price data aligned to a common calendar.
// Prices[symbol][i] corresponds to Dates[i] for every symbol.
type History struct {
	Dates  []string
	Prices map[string][]float64
}

// Align intersects per-instrument price series to their common calendar.
// Every instrument must validate individually, and the intersection must
// be non-empty; covariance estimation requires this alignment.
func Align(series map[string]PriceSeries) (History, error) {
	if len(series) == 0 {
		return History{}, ErrEmptySeries
	}

	// Count date occurrences across instruments; a date is common when
	// every instrument has it.
	counts := make(map[string]int)
	byDate := make(map[string]map[string]float64, len(series))

	for symbol, s := range series {
		if err := s.Validate(); err != nil {
			return History{}, fmt.Errorf("series %s: %w", symbol, err)
		}
		prices := make(map[string]float64, len(s))
		for _, p := range s {
			prices[p.Date] = p.Price
			counts[p.Date]++
		}
		byDate[symbol] = prices
	}

	dates := make([]string, 0, len(counts))
	for date, n := range counts {
		if n == len(series) {
			dates = append(dates, date)
		}
	}
	if len(dates) == 0 {
		return History{}, ErrNoCommonDates
	}
	sort.Strings(dates)

	aligned := History{
		Dates:  dates,
		Prices: make(map[string][]float64, len(series)),
	}
	for symbol, prices := range byDate {
		out := make([]float64, len(dates))
		for i, d := range dates {
			out[i] = prices[d]
		}
		aligned.Prices[symbol] = out
	}

	return aligned, nil
}

// Len returns the number of aligned observations.
func (h History) Len() int {
	return len(h.Dates)
}

// Symbols returns the instrument symbols in deterministic order.
func (h History) Symbols() []string {
	symbols := make([]string, 0, len(h.Prices))
	for s := range h.Prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Returns derives per-instrument periodic returns from the aligned prices.
// Each series has length Len()-1.
func (h History) Returns() map[string][]float64 {
	returns := make(map[string][]float64, len(h.Prices))
	for symbol, prices := range h.Prices {
		returns[symbol] = formulas.Returns(prices)
	}
	return returns
}

// SliceIndex returns the sub-history for observation indices [from, to).
// Bounds are clamped to the valid range.
func (h History) SliceIndex(from, to int) History {
	if from < 0 {
		from = 0
	}
	if to > len(h.Dates) {
		to = len(h.Dates)
	}
	if from > to {
		from = to
	}

	out := History{
		Dates:  h.Dates[from:to],
		Prices: make(map[string][]float64, len(h.Prices)),
	}
	for symbol, prices := range h.Prices {
		out.Prices[symbol] = prices[from:to]
	}
	return out
}

// SliceDates returns the sub-history covering the inclusive date range
// [start, end]. Fails when no observations fall inside the range.
func (h History) SliceDates(start, end string) (History, error) {
	from := sort.SearchStrings(h.Dates, start)
	to := sort.Search(len(h.Dates), func(i int) bool { return h.Dates[i] > end })
	if from >= to {
		return History{}, fmt.Errorf("%w: no observations in [%s, %s]", ErrEmptySeries, start, end)
	}
	return h.SliceIndex(from, to), nil
}
