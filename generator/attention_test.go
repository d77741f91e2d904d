// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"math"
	"testing"

	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordAttentionUniformOverUnmasked(t *testing.T) {
	// a zero projection makes every score zero, so each spatial location
	// must attend uniformly over the unmasked words
	att, err := NewWordAttention[float32](2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, att.Channels())
	assert.Equal(t, 3, att.EmbDim())

	images := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 4)), H: 2, W: 2}
	words := mat.NewDense[float32](mat.WithShape(3, 4))
	mask := Mask{true, true, false, false}

	context, attention, err := att.Forward(images, words, mask)
	require.NoError(t, err)

	assert.Equal(t, 2, context.Channels())
	assert.Equal(t, 2, context.H)
	assert.Equal(t, 2, context.W)

	assert.Equal(t, 4, attention.Channels()) // one map per word
	assert.Equal(t, 2, attention.H)
	assert.Equal(t, 2, attention.W)

	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.InDelta(t, 0.5, attention.At(0, y, x), 1e-6)
			assert.InDelta(t, 0.5, attention.At(1, y, x), 1e-6)
			assert.InDelta(t, 0.0, attention.At(2, y, x), 1e-6)
			assert.InDelta(t, 0.0, attention.At(3, y, x), 1e-6)
		}
	}
}

func TestWordAttentionWeights(t *testing.T) {
	att := &WordAttention{
		Proj:   &Conv1x1{W: nn.NewParam(mat.NewDense[float32](mat.WithShape(1, 1), mat.WithBacking([]float32{1})))},
		Scaled: true, // 1/sqrt(1) leaves the scores unchanged
	}

	images := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(1, 1), mat.WithBacking([]float32{1})), H: 1, W: 1}
	ln3 := float32(math.Log(3))
	words := mat.NewDense[float32](mat.WithShape(1, 2), mat.WithBacking([]float32{0, ln3}))

	context, attention, err := att.Forward(images, words, Mask{true, true})
	require.NoError(t, err)

	// scores are [0, ln 3], so the softmax yields [1/4, 3/4]
	assert.InDelta(t, 0.25, attention.At(0, 0, 0), 1e-5)
	assert.InDelta(t, 0.75, attention.At(1, 0, 0), 1e-5)

	// context = 0.25*0 + 0.75*ln 3
	assert.InDelta(t, 0.75*math.Log(3), context.At(0, 0, 0), 1e-5)
}

func TestWordAttentionRowsSumToOne(t *testing.T) {
	att, err := NewWordAttention[float32](2, 3)
	require.NoError(t, err)

	images := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 6), mat.WithBacking([]float32{
		0.1, -0.2, 0.3, 0.4, -0.5, 0.6,
		0.7, 0.8, -0.9, 1.0, 1.1, -1.2,
	})), H: 2, W: 3}
	words := mat.NewDense[float32](mat.WithShape(3, 5))
	mask := Mask{true, true, true, true, false}

	_, attention, err := att.Forward(images, words, mask)
	require.NoError(t, err)

	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			sum := 0.0
			for w := 0; w < 5; w++ {
				sum += attention.At(w, y, x)
			}
			assert.InDelta(t, 1.0, sum, 1e-5)
		}
	}
}

func TestWordAttentionErrors(t *testing.T) {
	att, err := NewWordAttention[float32](2, 3)
	require.NoError(t, err)

	words := mat.NewDense[float32](mat.WithShape(3, 4))
	goodMask := Mask{true, true, true, true}

	badImages := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(3, 4)), H: 2, W: 2}
	_, _, err = att.Forward(badImages, words, goodMask)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	images := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 4)), H: 2, W: 2}
	_, _, err = att.Forward(images, words, Mask{true, true})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = att.Forward(images, words, Mask{false, false, false, false})
	assert.ErrorIs(t, err, ErrDegenerateMask)

	_, err = NewWordAttention[float32](0, 3)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestWordAttentionDeterminism(t *testing.T) {
	att, err := NewWordAttention[float32](2, 3)
	require.NoError(t, err)

	images := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 4), mat.WithBacking([]float32{
		0.1, -0.2, 0.3, 0.4,
		0.5, 0.6, -0.7, 0.8,
	})), H: 2, W: 2}
	words := mat.NewDense[float32](mat.WithShape(3, 3), mat.WithBacking([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}))
	mask := Mask{true, true, false}

	first, firstAttn, err := att.Forward(images, words, mask)
	require.NoError(t, err)
	second, secondAttn, err := att.Forward(images, words, mask)
	require.NoError(t, err)

	assert.Equal(t, first.Data.Data().F64(), second.Data.Data().F64())
	assert.Equal(t, firstAttn.Data.Data().F64(), secondAttn.Data.Data().F64())
}

func TestWordAttentionForwardBatch(t *testing.T) {
	att, err := NewWordAttention[float32](2, 3)
	require.NoError(t, err)

	images := []FeatureMap{
		{Data: mat.NewDense[float32](mat.WithShape(2, 4)), H: 2, W: 2},
		{Data: mat.NewDense[float32](mat.WithShape(2, 4)), H: 2, W: 2},
	}
	words := []mat.Tensor{
		mat.NewDense[float32](mat.WithShape(3, 4)),
		mat.NewDense[float32](mat.WithShape(3, 4)),
	}
	masks := []Mask{
		{true, true, true, false},
		{true, false, false, false},
	}

	contexts, attentions, err := att.ForwardBatch(images, words, masks)
	require.NoError(t, err)
	require.Len(t, contexts, 2)
	require.Len(t, attentions, 2)

	// the second sample attends only to its first word
	assert.InDelta(t, 1.0, attentions[1].At(0, 0, 0), 1e-6)
	assert.InDelta(t, 0.0, attentions[1].At(1, 0, 0), 1e-6)

	_, _, err = att.ForwardBatch(images, words[:1], masks)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
