package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// PopStdDev calculates the population standard deviation (divides by N, not N-1)
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(data, nil)
	return math.Sqrt(variance)
}

// CalculateReturns converts prices to simple period returns
// Returns[i] = Price[i+1] / Price[i] - 1
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = prices[i]/prices[i-1] - 1
		}
	}

	return returns
}

// CalculateRatios converts a value series to one-period growth ratios
// Ratios[i] = Value[i+1] / Value[i]
func CalculateRatios(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	ratios := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			ratios[i-1] = values[i] / values[i-1]
		}
	}

	return ratios
}

// AnnualizedGrowth annualizes a cumulative growth factor observed over n periods.
//
// Formula: (growth^(periodsPerYear/n) - 1) * 100
//
// Returns the result in percent. A non-positive growth factor or n yields 0.
func AnnualizedGrowth(growth float64, n int, periodsPerYear float64) float64 {
	if n <= 0 || growth <= 0 {
		return 0
	}
	return (math.Pow(growth, periodsPerYear/float64(n)) - 1) * 100
}

// AnnualizedVolatility scales the population standard deviation of period
// ratios or returns to a year, in percent.
//
// Formula: popstd(x) * sqrt(periodsPerYear) * 100
func AnnualizedVolatility(periodReturns []float64, periodsPerYear float64) float64 {
	if len(periodReturns) == 0 {
		return 0
	}
	return PopStdDev(periodReturns) * math.Sqrt(periodsPerYear) * 100
}

// MinMax returns the smallest and largest values of data.
func MinMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
