// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"fmt"

	"github.com/nlpodyssey/spago/mat"
)

// FeatureMap is the spatial feature map of a single sample: a matrix with one
// row per channel and one column per spatial location, laid out row-major
// (location index = y*W + x). Batches are plain slices of FeatureMap.
type FeatureMap struct {
	Data mat.Tensor
	H, W int
}

// NewFeatureMap wraps a matrix as a feature map, verifying that the number of
// columns matches the given spatial size.
func NewFeatureMap(data mat.Tensor, h, w int) (FeatureMap, error) {
	if h <= 0 || w <= 0 {
		return FeatureMap{}, fmt.Errorf("feature map: non-positive size %dx%d: %w", h, w, ErrShapeMismatch)
	}
	if c := cols(data); c != h*w {
		return FeatureMap{}, fmt.Errorf("feature map: %d columns, expected %dx%d=%d: %w", c, h, w, h*w, ErrShapeMismatch)
	}
	return FeatureMap{Data: data, H: h, W: w}, nil
}

// Channels returns the number of channels.
func (f FeatureMap) Channels() int {
	return rows(f.Data)
}

// At returns the value at channel c and spatial position (y, x).
// It is meant for inspection and tests, not for building computations.
func (f FeatureMap) At(c, y, x int) float64 {
	return f.Data.Data().F64()[c*f.H*f.W+y*f.W+x]
}
