package pricing

import "strings"

// CodeResolver maps a discount code to its percentage. Unknown codes resolve
// to 0 percent, never an error.
type CodeResolver interface {
	Discount(code string) int
}

// StaticCodes resolves codes from the configured map. Lookup is
// case-insensitive; the map keys are expected lowercase.
type StaticCodes map[string]int

func (c StaticCodes) Discount(code string) int {
	return c[strings.ToLower(code)]
}

// DiscountMultiple converts a percentage into the price multiplier:
// 20 percent off yields 0.80, unknown (0 percent) yields 1.
func DiscountMultiple(percent int) float64 {
	if percent <= 0 || percent > 100 {
		return 1
	}
	return float64(100-percent) / 100
}
