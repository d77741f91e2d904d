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

func TestMakeImage(t *testing.T) {
	head, err := NewMakeImage[float32](2)
	require.NoError(t, err)

	in := FeatureMap{Data: mat.NewDense[float32](mat.WithShape(2, 4)), H: 2, W: 2}
	out, err := head.Forward(in)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Channels())
	assert.Equal(t, 2, out.H)
	assert.Equal(t, 2, out.W)

	// zero kernel, tanh(0) = 0
	for _, v := range out.Data.Data().F64() {
		assert.Equal(t, 0.0, v)
	}

	_, err = NewMakeImage[float32](0)
	assert.ErrorIs(t, err, ErrConfiguration)
}
