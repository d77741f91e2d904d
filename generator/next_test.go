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

func TestNextStageShapes(t *testing.T) {
	stage, err := NewNextStage[float32](2, 3, 2)
	require.NoError(t, err)

	images := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 16)), H: 4, W: 4}
	words := mat.NewDense[float32](mat.WithShape(3, 5))
	mask := Mask{true, true, true, false, false}

	out, attn, err := stage.Forward(images, words, mask)
	require.NoError(t, err)

	// channel count preserved, spatial size doubled
	assert.Equal(t, 2, out.Channels())
	assert.Equal(t, 8, out.H)
	assert.Equal(t, 8, out.W)

	// attention weights at the input resolution, one map per word
	assert.Equal(t, 5, attn.Channels())
	assert.Equal(t, 4, attn.H)
	assert.Equal(t, 4, attn.W)
	assert.InDelta(t, 0.0, attn.At(4, 0, 0), 1e-6)
}

func TestNewNextStageConfiguration(t *testing.T) {
	_, err := NewNextStage[float32](0, 3, 2)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewNextStage[float32](2, 3, 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNextStageForwardBatch(t *testing.T) {
	stage, err := NewNextStage[float32](2, 3, 1)
	require.NoError(t, err)

	images := []FeatureMap{
		{Data: mat.NewDense[float32](mat.WithShape(2, 16)), H: 4, W: 4},
		{Data: mat.NewDense[float32](mat.WithShape(2, 16)), H: 4, W: 4},
	}
	words := []mat.Tensor{
		mat.NewDense[float32](mat.WithShape(3, 5)),
		mat.NewDense[float32](mat.WithShape(3, 5)),
	}
	masks := []Mask{
		{true, true, true, true, false},
		{true, true, false, false, false},
	}

	out, attns, err := stage.ForwardBatch(images, words, masks)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Len(t, attns, 2)
	assert.Equal(t, 8, out[0].H)
	assert.InDelta(t, 0.5, attns[1].At(0, 0, 0), 1e-6)

	_, _, err = stage.ForwardBatch(images[:1], words, masks)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
