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

func TestResidualBlockZeroWeightsIsIdentity(t *testing.T) {
	// with zero kernels the residual branch contributes nothing and the
	// skip connection passes the input through
	block, err := NewResidualBlock[float32](2)
	require.NoError(t, err)

	in := mat.NewDense[float32](mat.WithShape(2, 4), mat.WithBacking([]float32{
		1, 2, 3, 4,
		-1, 0, 1, 2,
	}))
	fm, err := NewFeatureMap(in, 2, 2)
	require.NoError(t, err)

	out, err := block.Forward(fm)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Channels())
	assert.Equal(t, 2, out.H)
	assert.Equal(t, 2, out.W)
	assert.InDeltaSlice(t, in.Data().F64(), out.Data.Data().F64(), 1e-6)
}

func TestNewResidualBlockConfiguration(t *testing.T) {
	_, err := NewResidualBlock[float32](0)
	assert.ErrorIs(t, err, ErrConfiguration)
}
