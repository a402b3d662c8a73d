package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RollingStdDev calculates the population standard deviation over a sliding window.
//
// Uses go-talib StdDev. The result has len(data)-window+1 entries: element i
// covers data[i : i+window]. Returns nil if there is insufficient data.
func RollingStdDev(data []float64, window int) []float64 {
	if window < 2 || len(data) < window {
		return nil
	}

	std := talib.StdDev(data, window, 1.0)
	out := make([]float64, 0, len(data)-window+1)
	for _, v := range std[window-1:] {
		if isNaN(v) {
			v = 0
		}
		out = append(out, v)
	}
	return out
}

func isNaN(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
