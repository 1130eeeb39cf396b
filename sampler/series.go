// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package sampler

// Series is a slice of floats. It provides methods for taking averages or sums
// of segments.
type Series []float64

// Length returns the length of data.
func (data Series) Length() int {
	return len(data)
}

// Snip returns a subset of length max if the data is longer than max.
func (data Series) Snip(max int) Series {
	if len(data) < max {
		max = len(data)
	}
	return data[:max]
}

// Avg is the average value of a segment of the dataset.
func (data Series) Avg(s, e int) float64 {
	if e <= s {
		return 0
	}
	return data.Sum(s, e) / float64(e-s)
}

// Sum is the accumulation of a segment of the dataset.
func (data Series) Sum(s, e int) (sum float64) {
	if e <= s {
		return 0
	}
	for _, v := range data[s:e] {
		sum += v
	}
	return
}

// Last is the final value, or zero for an empty series.
func (data Series) Last() float64 {
	if len(data) == 0 {
		return 0
	}
	return data[len(data)-1]
}
