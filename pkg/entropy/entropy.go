// Compute Shannon Entropy of a byte sequence
// H = - Σ P(x) * log2 P(x)

package entropy

import (
	"math"
)

// MaxEntropy is the upper bound for byte valued data, reached when all
// 256 values occur with equal frequency.
const MaxEntropy = 8.0

// FrequencyTable counts occurrences of each byte value.
type FrequencyTable [256]int

// Count builds a fresh table for data.
func Count(data []byte) FrequencyTable {
	var ft FrequencyTable
	for _, b := range data {
		ft[b]++
	}
	return ft
}

func (ft *FrequencyTable) Total() int {
	var total int
	for _, c := range ft {
		total += c
	}
	return total
}

// Distinct returns how many byte values occur at least once.
func (ft *FrequencyTable) Distinct() int {
	var n int
	for _, c := range ft {
		if c > 0 {
			n++
		}
	}
	return n
}

// Entropy returns the entropy in bits per byte of the distribution held in
// the table. An empty table has entropy 0.
func (ft *FrequencyTable) Entropy() float64 {
	total := ft.Total()
	if total == 0 {
		return 0
	}

	var entropy float64
	for _, count := range ft {
		if count > 0 {
			freq := float64(count) / float64(total)
			entropy += freq * math.Log2(freq)
		}
	}

	// avoid returning -0 for single valued input
	if entropy == 0 {
		return 0
	}

	return -entropy
}

// Shannon returns the entropy of data in bits per byte, in the range [0, 8].
func Shannon(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	ft := Count(data)
	return ft.Entropy()
}
