// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
)

// ResidualBlock refines a feature map without changing its shape:
// conv3x3 (C -> 2C), batch norm, GLU (back to C), conv3x3 (C -> C),
// batch norm, plus the skip connection.
type ResidualBlock struct {
	nn.Module
	Conv1 *Conv3x3
	Norm1 *BatchNorm
	Conv2 *Conv3x3
	Norm2 *BatchNorm
}

func init() {
	gob.Register(&ResidualBlock{})
}

func NewResidualBlock[T float.DType](channels int) (*ResidualBlock, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("residual block: non-positive channel count %d: %w", channels, ErrConfiguration)
	}
	return &ResidualBlock{
		Conv1: NewConv3x3[T](channels, channels*2),
		Norm1: NewBatchNorm[T](channels * 2),
		Conv2: NewConv3x3[T](channels, channels),
		Norm2: NewBatchNorm[T](channels),
	}, nil
}

func (m *ResidualBlock) Forward(x FeatureMap) (FeatureMap, error) {
	y, err := m.Conv1.Forward(x)
	if err != nil {
		return FeatureMap{}, err
	}
	if y, err = m.Norm1.Forward(y); err != nil {
		return FeatureMap{}, err
	}
	if y, err = (GLU{}).Forward(y); err != nil {
		return FeatureMap{}, err
	}
	if y, err = m.Conv2.Forward(y); err != nil {
		return FeatureMap{}, err
	}
	if y, err = m.Norm2.Forward(y); err != nil {
		return FeatureMap{}, err
	}
	return FeatureMap{Data: ag.Add(y.Data, x.Data), H: x.H, W: x.W}, nil
}
