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

// Conv1x1 is a bias-free 1x1 convolution: a plain matrix product over the
// flattened spatial axis. It is also the projection applied to word matrices
// by the attention module.
type Conv1x1 struct {
	nn.Module
	W *nn.Param // (out, in)
}

func init() {
	gob.Register(&Conv1x1{})
	gob.Register(&Conv3x3{})
}

func NewConv1x1[T float.DType](in, out int) *Conv1x1 {
	return &Conv1x1{
		W: nn.NewParam(mat.NewDense[T](mat.WithShape(out, in))),
	}
}

// Apply multiplies the kernel with any (in, n) matrix.
func (m *Conv1x1) Apply(x mat.Tensor) (mat.Tensor, error) {
	if r := rows(x); r != cols(m.W) {
		return nil, fmt.Errorf("conv1x1: input has %d rows, expected %d: %w", r, cols(m.W), ErrShapeMismatch)
	}
	return ag.Mul(m.W, x), nil
}

func (m *Conv1x1) Forward(x FeatureMap) (FeatureMap, error) {
	out, err := m.Apply(x.Data)
	if err != nil {
		return FeatureMap{}, err
	}
	return FeatureMap{Data: out, H: x.H, W: x.W}, nil
}

// Conv3x3 is a bias-free 3x3 convolution with stride 1 and padding 1, keeping
// the spatial size unchanged. It is evaluated as nine zero-padded spatial
// shifts stacked along the channel axis followed by one matrix product; the
// kernel column layout c*9 + (ky+1)*3 + (kx+1) is exactly a flattened PyTorch
// (out, in, 3, 3) weight, so converted checkpoints drop in unchanged.
type Conv3x3 struct {
	nn.Module
	W   *nn.Param // (out, 9*in)
	In  int
	Out int
}

func NewConv3x3[T float.DType](in, out int) *Conv3x3 {
	return &Conv3x3{
		W:   nn.NewParam(mat.NewDense[T](mat.WithShape(out, 9*in))),
		In:  in,
		Out: out,
	}
}

func (m *Conv3x3) Forward(x FeatureMap) (FeatureMap, error) {
	if nc := x.Channels(); nc != m.In {
		return FeatureMap{}, fmt.Errorf("conv3x3: input has %d channels, expected %d: %w", nc, m.In, ErrShapeMismatch)
	}
	shifted := make([]mat.Tensor, 0, 9*m.In)
	for c := 0; c < m.In; c++ {
		ch := ag.Reshape(ag.RowView(x.Data, c), x.H, x.W)
		for ky := -1; ky <= 1; ky++ {
			sr := shiftRowsMatrix(x.H, ky)
			for kx := -1; kx <= 1; kx++ {
				s := ag.Mul(ag.Mul(sr, ch), shiftColsMatrix(x.W, kx))
				shifted = append(shifted, ag.Flatten(s))
			}
		}
	}
	out := ag.Mul(m.W, ag.Stack(shifted...))
	return FeatureMap{Data: out, H: x.H, W: x.W}, nil
}
