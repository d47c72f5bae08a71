package onnx

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Tensor is a float32 tensor prepared for ONNX input, NCHW for images.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor builds a single-image tensor with shape [1, C, H, W].
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if expected := c * h * w; len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// Softmax converts logits to probabilities.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxV := float64(logits[0])
	for _, v := range logits[1:] {
		maxV = math.Max(maxV, float64(v))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// LooksLikeProbabilities reports whether v already sums to ~1 with no
// negative entries, as models with a softmax head produce.
func LooksLikeProbabilities(v []float32) bool {
	var sum float64
	for _, x := range v {
		if x < 0 {
			return false
		}
		sum += float64(x)
	}
	return math.Abs(sum-1) < 1e-3
}

// Ranked is one index/probability pair.
type Ranked struct {
	Index int
	Prob  float64
}

// TopK returns the k highest probabilities in descending order. Ties keep
// the lower index first.
func TopK(probs []float64, k int) []Ranked {
	if k <= 0 || len(probs) == 0 {
		return nil
	}
	ranked := make([]Ranked, len(probs))
	for i, p := range probs {
		ranked[i] = Ranked{Index: i, Prob: p}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Prob > ranked[b].Prob })
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}
