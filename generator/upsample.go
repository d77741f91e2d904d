// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
)

// UpsampleBlock doubles the spatial resolution: nearest-neighbor 2x upsample,
// conv3x3 (in -> 2*out), batch norm, GLU (down to out channels).
type UpsampleBlock struct {
	nn.Module
	Conv *Conv3x3
	Norm *BatchNorm
}

func init() {
	gob.Register(&UpsampleBlock{})
}

func NewUpsampleBlock[T float.DType](in, out int) (*UpsampleBlock, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("upsample block: non-positive channel counts %d -> %d: %w", in, out, ErrConfiguration)
	}
	return &UpsampleBlock{
		Conv: NewConv3x3[T](in, out*2),
		Norm: NewBatchNorm[T](out * 2),
	}, nil
}

func (m *UpsampleBlock) Forward(x FeatureMap) (FeatureMap, error) {
	y, err := m.Conv.Forward(upsample2x(x))
	if err != nil {
		return FeatureMap{}, err
	}
	if y, err = m.Norm.Forward(y); err != nil {
		return FeatureMap{}, err
	}
	return (GLU{}).Forward(y)
}

// upsample2x duplicates every pixel along both spatial axes.
func upsample2x(x FeatureMap) FeatureMap {
	nc := x.Channels()
	uh := repeatRowsMatrix(x.H)       // (2H, H)
	uw := ag.T(repeatRowsMatrix(x.W)) // (W, 2W)
	chans := make([]mat.Tensor, nc)
	for c := 0; c < nc; c++ {
		ch := ag.Reshape(ag.RowView(x.Data, c), x.H, x.W)
		chans[c] = ag.Flatten(ag.Mul(ag.Mul(uh, ch), uw))
	}
	return FeatureMap{Data: ag.Stack(chans...), H: x.H * 2, W: x.W * 2}
}
