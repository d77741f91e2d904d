// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"fmt"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
)

// GLU is the gated linear unit: it splits its input in two halves along the
// channel axis and returns first * sigmoid(second), halving the channel count.
// It has no parameters.
type GLU struct{}

// Forward applies the gate to a feature map. The channel count must be even.
func (GLU) Forward(x FeatureMap) (FeatureMap, error) {
	nc := x.Channels()
	if nc%2 != 0 {
		return FeatureMap{}, fmt.Errorf("glu: channel count %d does not divide by 2: %w", nc, ErrConfiguration)
	}
	n := x.H * x.W
	half := nc / 2
	a := ag.Slice(x.Data, 0, 0, half, n)
	b := ag.Slice(x.Data, half, 0, nc, n)
	return FeatureMap{Data: ag.Prod(a, ag.Sigmoid(b)), H: x.H, W: x.W}, nil
}

// ForwardVec applies the gate to a column vector, halving its size.
func (GLU) ForwardVec(x mat.Tensor) (mat.Tensor, error) {
	size := x.Size()
	if size%2 != 0 {
		return nil, fmt.Errorf("glu: vector size %d does not divide by 2: %w", size, ErrConfiguration)
	}
	half := size / 2
	a := ag.Slice(x, 0, 0, half, 1)
	b := ag.Slice(x, half, 0, size, 1)
	return ag.Prod(a, ag.Sigmoid(b)), nil
}
