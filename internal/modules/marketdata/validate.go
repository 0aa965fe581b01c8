package marketdata

import (
	"fmt"
	"math"
)

// ValidateBars checks that a fetched batch is usable: non-empty, no NaN or
// non-positive prices, and high >= low on every row. A batch failing
// validation counts as a backend failure, not a fatal error.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("empty result")
	}

	for i, b := range bars {
		if b.Date == "" {
			return fmt.Errorf("bar %d: missing date", i)
		}
		prices := [4]float64{b.Open, b.High, b.Low, b.Close}
		for _, p := range prices {
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return fmt.Errorf("bar %d (%s): non-finite price", i, b.Date)
			}
			if p <= 0 {
				return fmt.Errorf("bar %d (%s): non-positive price %.4f", i, b.Date, p)
			}
		}
		if b.High < b.Low {
			return fmt.Errorf("bar %d (%s): high %.4f below low %.4f", i, b.Date, b.High, b.Low)
		}
	}

	return nil
}
