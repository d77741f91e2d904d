// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"testing"

	"github.com/nlpodyssey/spago/mat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuncAttentionShapes(t *testing.T) {
	query := mat.NewDense[float32](mat.WithShape(2, 3), mat.WithBacking([]float32{
		0.1, 0.2, 0.3,
		-0.1, 0.0, 0.1,
	}))
	context := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 4), mat.WithBacking([]float32{
		1, 2, 3, 4,
		-1, 0, 1, 2,
	})), H: 2, W: 2}

	weighted, attn, err := FuncAttention(query, context, DefaultGamma, true)
	require.NoError(t, err)

	assert.Equal(t, 2, weighted.Shape()[0])
	assert.Equal(t, 3, weighted.Shape()[1])

	assert.Equal(t, 3, attn.Channels()) // one map per query
	assert.Equal(t, 2, attn.H)
	assert.Equal(t, 2, attn.W)

	// each query's weights over the source locations sum to one
	for q := 0; q < 3; q++ {
		sum := 0.0
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				sum += attn.At(q, y, x)
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestFuncAttentionGammaSharpening(t *testing.T) {
	// two opposite queries keep the first-stage weights varied across the
	// source locations, so the second stage has something to sharpen
	query := mat.NewDense[float32](mat.WithShape(1, 2), mat.WithBacking([]float32{1, -1}))
	context := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(1, 4), mat.WithBacking([]float32{
		0.1, 0.5, 0.9, 0.2,
	})), H: 2, W: 2}

	maxWeight := func(gamma float64) float64 {
		_, attn, err := FuncAttention(query, context, gamma, false)
		require.NoError(t, err)
		max := 0.0
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				if v := attn.At(0, y, x); v > max {
					max = v
				}
			}
		}
		return max
	}

	soft := maxWeight(1)
	sharp := maxWeight(50)
	assert.Greater(t, sharp, soft)
}

func TestFuncAttentionErrors(t *testing.T) {
	query := mat.NewDense[float32](mat.WithShape(2, 3))
	context := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(3, 4)), H: 2, W: 2}

	_, _, err := FuncAttention(query, context, DefaultGamma, true)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	context = FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 4)), H: 2, W: 2}
	_, _, err = FuncAttention(query, context, 0, true)
	assert.ErrorIs(t, err, ErrConfiguration)
}
