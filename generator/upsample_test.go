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

func TestUpsample2x(t *testing.T) {
	data := mat.NewDense[float32](mat.WithShape(1, 4), mat.WithBacking([]float32{
		1, 2,
		3, 4,
	}))
	fm, err := NewFeatureMap(data, 2, 2)
	require.NoError(t, err)

	up := upsample2x(fm)
	assert.Equal(t, 1, up.Channels())
	assert.Equal(t, 4, up.H)
	assert.Equal(t, 4, up.W)
	assert.InDeltaSlice(t, []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, up.Data.Data().F64(), 1e-6)
}

func TestUpsampleBlockShapes(t *testing.T) {
	block, err := NewUpsampleBlock[float32](2, 3)
	require.NoError(t, err)

	in := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 4)), H: 2, W: 2}
	out, err := block.Forward(in)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Channels())
	assert.Equal(t, 4, out.H)
	assert.Equal(t, 4, out.W)
}

func TestNewUpsampleBlockConfiguration(t *testing.T) {
	_, err := NewUpsampleBlock[float32](0, 3)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewUpsampleBlock[float32](2, -1)
	assert.ErrorIs(t, err, ErrConfiguration)
}
