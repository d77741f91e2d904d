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

// MakeImage projects a feature map down to the 3 RGB channels with a 3x3
// convolution and bounds the output to [-1, 1] with a tanh.
type MakeImage struct {
	nn.Module
	Conv *Conv3x3
}

func init() {
	gob.Register(&MakeImage{})
}

func NewMakeImage[T float.DType](gfDim int) (*MakeImage, error) {
	if gfDim <= 0 {
		return nil, fmt.Errorf("make image: non-positive feature width %d: %w", gfDim, ErrConfiguration)
	}
	return &MakeImage{Conv: NewConv3x3[T](gfDim, 3)}, nil
}

func (m *MakeImage) Forward(x FeatureMap) (FeatureMap, error) {
	y, err := m.Conv.Forward(x)
	if err != nil {
		return FeatureMap{}, err
	}
	return FeatureMap{Data: ag.Tanh(y.Data), H: y.H, W: y.W}, nil
}
