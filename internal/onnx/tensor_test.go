package onnx

import (
	"testing"

	"github.com/MeKo-Tech/leafcheck/internal/onnx/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	tensor, err := NewImageTensor(make([]float32, 3*4*5), 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	require.NoError(t, ValidateNCHW(tensor.Shape))

	_, err = NewImageTensor(nil, 3, 4, 5)
	assert.Error(t, err)
	_, err = NewImageTensor(make([]float32, 10), 3, 4, 5)
	assert.Error(t, err)
}

func TestValidateNCHW(t *testing.T) {
	assert.Error(t, ValidateNCHW([]int64{1, 3, 224}))
	assert.Error(t, ValidateNCHW([]int64{1, 3, 0, 224}))
	assert.NoError(t, ValidateNCHW([]int64{1, 3, 224, 224}))
}

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float32{1, 2, 3})
	require.Len(t, probs, 3)
	var sum float64
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, probs[2], probs[1])

	// Large logits must not overflow.
	big := Softmax([]float32{1000, 1001})
	assert.InDelta(t, 0.731, big[1], 1e-3)

	assert.Nil(t, Softmax(nil))
}

func TestLooksLikeProbabilities(t *testing.T) {
	assert.True(t, LooksLikeProbabilities([]float32{0.2, 0.3, 0.5}))
	assert.False(t, LooksLikeProbabilities([]float32{2, -1, 0}))
	assert.False(t, LooksLikeProbabilities([]float32{0.2, 0.2}))
}

func TestTopK(t *testing.T) {
	logits := mock.PeakedLogits(1000, -2, map[int]float32{948: 9, 1: 6, 500: 6})
	top := TopK(Softmax(logits), 5)
	require.Len(t, top, 5)
	assert.Equal(t, 948, top[0].Index)
	assert.Equal(t, 1, top[1].Index, "ties keep lower index first")
	assert.Equal(t, 500, top[2].Index)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Prob, top[i].Prob)
	}

	assert.Len(t, TopK([]float64{0.5, 0.5}, 10), 2)
	assert.Nil(t, TopK([]float64{1}, 0))
}

func TestMockLabels(t *testing.T) {
	labels := mock.Labels(3, map[int]string{1: "leaf"})
	assert.Equal(t, []string{"class 0", "leaf", "class 2"}, labels)
}
