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

// DownBlock halves the spatial resolution: a bias-free 4x4 convolution with
// stride 2 and padding 1, batch norm, and a 0.2 leaky ReLU. It completes the
// layer capability set for collaborators that encode images (discriminators);
// the generator stages do not use it.
type DownBlock struct {
	nn.Module
	W    *nn.Param // (out, 16*in)
	Norm *BatchNorm
	In   int
	Out  int
}

func init() {
	gob.Register(&DownBlock{})
}

const downBlockSlope = 0.2

func NewDownBlock[T float.DType](in, out int) (*DownBlock, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("down block: non-positive channel counts %d -> %d: %w", in, out, ErrConfiguration)
	}
	return &DownBlock{
		W:    nn.NewParam(mat.NewDense[T](mat.WithShape(out, 16*in))),
		Norm: NewBatchNorm[T](out),
		In:   in,
		Out:  out,
	}, nil
}

func (m *DownBlock) Forward(x FeatureMap) (FeatureMap, error) {
	if nc := x.Channels(); nc != m.In {
		return FeatureMap{}, fmt.Errorf("down block: input has %d channels, expected %d: %w", nc, m.In, ErrShapeMismatch)
	}
	if x.H%2 != 0 || x.W%2 != 0 {
		return FeatureMap{}, fmt.Errorf("down block: odd spatial size %dx%d: %w", x.H, x.W, ErrShapeMismatch)
	}
	// The 4x4 stride-2 kernel with padding 1 reads input rows 2i-1 .. 2i+2;
	// each of the 16 offsets becomes one strided row/column selection.
	shifted := make([]mat.Tensor, 0, 16*m.In)
	for c := 0; c < m.In; c++ {
		ch := ag.Reshape(ag.RowView(x.Data, c), x.H, x.W)
		for ky := -1; ky <= 2; ky++ {
			sr := selectRowsMatrix(x.H, ky)
			for kx := -1; kx <= 2; kx++ {
				s := ag.Mul(ag.Mul(sr, ch), ag.T(selectRowsMatrix(x.W, kx)))
				shifted = append(shifted, ag.Flatten(s))
			}
		}
	}
	out := ag.Mul(m.W, ag.Stack(shifted...))
	y, err := m.Norm.Forward(FeatureMap{Data: out, H: x.H / 2, W: x.W / 2})
	if err != nil {
		return FeatureMap{}, err
	}
	return FeatureMap{Data: ag.LeakyReLU(y.Data, mat.Scalar(downBlockSlope)), H: y.H, W: y.W}, nil
}
