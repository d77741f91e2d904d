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

// TestStagedPipeline runs a full-size pipeline pass: a 100-dim noise vector
// and 256-dim caption embeddings through the initial stage and one refinement
// stage, with a batch of two differently masked captions.
func TestStagedPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size pipeline pass")
	}

	const (
		baseWidth = 32
		zDim      = 100
		embDim    = 256
		seqLen    = 5
	)

	initial, err := NewInitialStage[float32](baseWidth*16, zDim, embDim)
	require.NoError(t, err)
	stage, err := NewNextStage[float32](baseWidth, embDim, 2)
	require.NoError(t, err)
	head, err := NewMakeImage[float32](baseWidth)
	require.NoError(t, err)

	noise := []mat.Tensor{
		mat.NewDense[float32](mat.WithShape(zDim)),
		mat.NewDense[float32](mat.WithShape(zDim)),
	}
	sentences := []mat.Tensor{
		mat.NewDense[float32](mat.WithShape(embDim)),
		mat.NewDense[float32](mat.WithShape(embDim)),
	}
	words := []mat.Tensor{
		mat.NewDense[float32](mat.WithShape(embDim, seqLen)),
		mat.NewDense[float32](mat.WithShape(embDim, seqLen)),
	}
	masks := []Mask{
		{true, true, true, true, false},
		{true, true, false, false, false},
	}

	base, err := initial.ForwardBatch(noise, sentences)
	require.NoError(t, err)
	require.Len(t, base, 2)
	for _, fm := range base {
		assert.Equal(t, baseWidth, fm.Channels())
		assert.Equal(t, 64, fm.H)
		assert.Equal(t, 64, fm.W)
	}

	refined, attns, err := stage.ForwardBatch(base, words, masks)
	require.NoError(t, err)
	for _, fm := range refined {
		assert.Equal(t, baseWidth, fm.Channels())
		assert.Equal(t, 128, fm.H)
		assert.Equal(t, 128, fm.W)
	}
	for i, attn := range attns {
		assert.Equal(t, seqLen, attn.Channels())
		assert.Equal(t, 64, attn.H)
		assert.Equal(t, 64, attn.W)

		// padding words receive no attention anywhere
		for w := range masks[i] {
			if masks[i][w] {
				continue
			}
			assert.InDelta(t, 0.0, attn.At(w, 0, 0), 1e-6)
			assert.InDelta(t, 0.0, attn.At(w, 63, 63), 1e-6)
		}
	}

	img, err := head.Forward(refined[0])
	require.NoError(t, err)
	assert.Equal(t, 3, img.Channels())
	min, max := 0.0, 0.0
	for _, v := range img.Data.Data().F64() {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	assert.GreaterOrEqual(t, min, -1.0)
	assert.LessOrEqual(t, max, 1.0)
}
