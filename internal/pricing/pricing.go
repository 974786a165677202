package pricing

import (
	"context"
	"math"
)

const (
	// BlockInterval is the number of tickets per pricing block: every 21
	// tickets sold of a tiered type, the unit price steps up.
	BlockInterval = 21

	// blockIncrement is the currency amount added per completed block.
	blockIncrement = 10
)

// Price is the outcome of a quote: the per-unit fiat price after tiering,
// the rounded fiat total after discount, and its satoshi equivalents.
type Price struct {
	UnitPrice      float64
	TotalCurrency  float64
	TotalSats      int64
	TotalMilliSats int64
}

type Calculator struct {
	Rates RateSource
	Codes CodeResolver
}

func NewCalculator(rates RateSource, codes CodeResolver) *Calculator {
	return &Calculator{Rates: rates, Codes: codes}
}

// BlockIndex returns how many complete pricing blocks have been sold.
func BlockIndex(soldCount int) int {
	if soldCount < 0 {
		return 0
	}
	return soldCount / BlockInterval
}

// UnitPrice computes the per-ticket fiat price for a type given how many
// tickets of that type already exist. "general" is flat; every other type
// steps up by blockIncrement per completed block.
func UnitPrice(ticketType string, baseValue float64, soldCount int) float64 {
	if ticketType == "general" {
		return baseValue
	}
	return baseValue + float64(BlockIndex(soldCount)*blockIncrement)
}

// ComputePrice quotes an order: tiered unit price, quantity, discount, then
// conversion to sats. An unknown or empty code means no discount, never an
// error. A rate lookup failure propagates so the caller can retry.
func (c *Calculator) ComputePrice(ctx context.Context, ticketType string, baseValue float64, currency string, quantity int, code string, soldCount int) (Price, error) {
	unit := UnitPrice(ticketType, baseValue, soldCount)

	multiple := 1.0
	if code != "" {
		multiple = DiscountMultiple(c.Codes.Discount(code))
	}

	total := math.Round(unit * float64(quantity) * multiple)

	sats, err := ConvertCurrencyToSats(ctx, c.Rates, total, currency)
	if err != nil {
		return Price{}, err
	}

	return Price{
		UnitPrice:      unit,
		TotalCurrency:  total,
		TotalSats:      sats,
		TotalMilliSats: sats * 1000,
	}, nil
}
