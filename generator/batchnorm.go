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

// BatchNorm applies inference-mode batch normalization: a per-channel affine
// transform derived from the learned gain/bias and the running statistics
// accumulated at training time.
//
// y = (x - mean) / sqrt(var + eps) * w + b
type BatchNorm struct {
	nn.Module
	W    *nn.Param
	B    *nn.Param
	Mean *nn.Buffer
	Var  *nn.Buffer
	Eps  *nn.Buffer
}

func init() {
	gob.Register(&BatchNorm{})
}

const defaultBatchNormEps = 1e-5

func NewBatchNorm[T float.DType](size int) *BatchNorm {
	return &BatchNorm{
		W:    nn.NewParam(mat.NewDense[T](mat.WithShape(size), mat.WithBacking(mat.CreateInitializedSlice[T](size, 1)))),
		B:    nn.NewParam(mat.NewDense[T](mat.WithShape(size))),
		Mean: nn.Buf(mat.NewDense[T](mat.WithShape(size))),
		Var:  nn.Buf(mat.NewDense[T](mat.WithShape(size), mat.WithBacking(mat.CreateInitializedSlice[T](size, 1)))),
		Eps:  nn.Buf(mat.Scalar[T](T(defaultBatchNormEps))),
	}
}

// NewBatchNormFromStats builds an inference-mode batch norm from converted
// parameters: the learned gain and bias plus the running mean and variance.
func NewBatchNormFromStats[T float.DType](w, b, mean, variance mat.Matrix) (*BatchNorm, error) {
	size := w.Size()
	if b.Size() != size || mean.Size() != size || variance.Size() != size {
		return nil, fmt.Errorf("batchnorm: statistics sizes disagree (%d, %d, %d, %d): %w",
			size, b.Size(), mean.Size(), variance.Size(), ErrShapeMismatch)
	}
	return &BatchNorm{
		W:    nn.NewParam(w),
		B:    nn.NewParam(b),
		Mean: nn.Buf(mean),
		Var:  nn.Buf(variance),
		Eps:  nn.Buf(mat.Scalar[T](T(defaultBatchNormEps))),
	}, nil
}

// Size returns the number of normalized channels (or vector elements).
func (m *BatchNorm) Size() int {
	return m.W.Size()
}

// scaleShift folds the statistics into the affine coefficients:
// scale = w / sqrt(var+eps), shift = b - scale*mean.
func (m *BatchNorm) scaleShift() (scale, shift mat.Tensor) {
	scale = ag.Div(m.W, ag.Sqrt(ag.AddScalar(m.Var, m.Eps)))
	shift = ag.Sub(m.B, ag.Prod(scale, m.Mean))
	return
}

// Forward normalizes each channel of a feature map.
func (m *BatchNorm) Forward(x FeatureMap) (FeatureMap, error) {
	if nc := x.Channels(); nc != m.Size() {
		return FeatureMap{}, fmt.Errorf("batchnorm: input has %d channels, expected %d: %w", nc, m.Size(), ErrShapeMismatch)
	}
	scale, shift := m.scaleShift()
	one := onesRow(x.H * x.W)
	out := ag.Add(ag.Prod(x.Data, ag.Mul(scale, one)), ag.Mul(shift, one))
	return FeatureMap{Data: out, H: x.H, W: x.W}, nil
}

// ForwardVec normalizes a column vector element-wise.
func (m *BatchNorm) ForwardVec(x mat.Tensor) (mat.Tensor, error) {
	if x.Size() != m.Size() {
		return nil, fmt.Errorf("batchnorm: input size %d, expected %d: %w", x.Size(), m.Size(), ErrShapeMismatch)
	}
	scale, shift := m.scaleShift()
	return ag.Add(ag.Prod(x, scale), shift), nil
}
