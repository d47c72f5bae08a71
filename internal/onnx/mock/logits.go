// Package mock builds synthetic classifier outputs for tests.
package mock

import "strconv"

// PeakedLogits returns logits over n classes where every class scores low
// except the given peaks.
func PeakedLogits(n int, low float32, peaks map[int]float32) []float32 {
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = low
	}
	for idx, v := range peaks {
		if idx >= 0 && idx < n {
			out[idx] = v
		}
	}
	return out
}

// Labels returns n placeholder labels, overriding selected indices.
func Labels(n int, named map[int]string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "class " + strconv.Itoa(i)
	}
	for idx, name := range named {
		if idx >= 0 && idx < n {
			out[idx] = name
		}
	}
	return out
}
