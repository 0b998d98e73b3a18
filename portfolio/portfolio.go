package portfolio

import (
	"errors"
	"fmt"
)

// ErrZeroValue indicates a portfolio whose total value is not positive.
var ErrZeroValue = errors.New("portfolio value is zero")

// Holding is a single position in a portfolio snapshot.
type Holding struct {
	Symbol       string  `json:"symbol"`
	Shares       float64 `json:"shares"`
	Sector       string  `json:"sector"`
	AssetClass   string  `json:"asset_class"`
	AverageCost  float64 `json:"average_cost"`
	CurrentPrice float64 `json:"current_price"`
	Currency     string  `json:"currency"`
}

// Portfolio is an ordered snapshot of holdings plus cash.
// Invariant: TotalValue() = sum(shares x price) + cash.
type Portfolio struct {
	Holdings []Holding `json:"holdings"`
	Cash     float64   `json:"cash"`
	Currency string    `json:"currency"`
}

// TotalValue returns the portfolio's market value including cash.
func (p Portfolio) TotalValue() float64 {
	total := p.Cash
	for _, h := range p.Holdings {
		total += h.Shares * h.CurrentPrice
	}
	return total
}

// Weights derives the current weight vector from position values.
// Cash is excluded from the vector; weights are relative to invested value.
func (p Portfolio) Weights() (WeightVector, error) {
	invested := 0.0
	for _, h := range p.Holdings {
		invested += h.Shares * h.CurrentPrice
	}
	if invested <= 0 {
		return nil, ErrZeroValue
	}

	weights := make(WeightVector, len(p.Holdings))
	for _, h := range p.Holdings {
		weights[h.Symbol] += h.Shares * h.CurrentPrice / invested
	}
	return weights, nil
}

// Sectors returns the symbol -> sector mapping for the holdings.
func (p Portfolio) Sectors() map[string]string {
	sectors := make(map[string]string, len(p.Holdings))
	for _, h := range p.Holdings {
		if h.Sector != "" {
			sectors[h.Symbol] = h.Sector
		}
	}
	return sectors
}

// ValueSeries replays the portfolio's holdings over an aligned history and
// returns the daily total value path (including cash). Every holding must
// be present in the history.
func (p Portfolio) ValueSeries(h History) ([]float64, error) {
	if h.Len() == 0 {
		return nil, ErrEmptySeries
	}
	for _, holding := range p.Holdings {
		if _, ok := h.Prices[holding.Symbol]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, holding.Symbol)
		}
	}

	values := make([]float64, h.Len())
	for i := range values {
		total := p.Cash
		for _, holding := range p.Holdings {
			total += holding.Shares * h.Prices[holding.Symbol][i]
		}
		values[i] = total
	}
	return values, nil
}
