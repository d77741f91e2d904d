// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
)

// NextStage refines and doubles a feature map under word guidance: word
// attention against the original word embeddings, channel-wise concatenation
// of image and attended context (2C channels), a chain of residual blocks,
// and one upsample block bringing the channel count back to C while doubling
// the spatial size.
type NextStage struct {
	nn.Module
	Attention *WordAttention
	Residual  []*ResidualBlock
	Upsample  *UpsampleBlock
	GfDim     int
}

func init() {
	gob.Register(&NextStage{})
}

func NewNextStage[T float.DType](gfDim, embDim, numResBlocks int) (*NextStage, error) {
	if gfDim <= 0 {
		return nil, fmt.Errorf("next stage: non-positive feature width %d: %w", gfDim, ErrConfiguration)
	}
	if numResBlocks < 1 {
		return nil, fmt.Errorf("next stage: at least one residual block required, got %d: %w", numResBlocks, ErrConfiguration)
	}
	att, err := NewWordAttention[T](gfDim, embDim)
	if err != nil {
		return nil, err
	}
	m := &NextStage{
		Attention: att,
		Residual:  make([]*ResidualBlock, numResBlocks),
		GfDim:     gfDim,
	}
	for i := range m.Residual {
		if m.Residual[i], err = NewResidualBlock[T](gfDim * 2); err != nil {
			return nil, err
		}
	}
	if m.Upsample, err = NewUpsampleBlock[T](gfDim*2, gfDim); err != nil {
		return nil, err
	}
	return m, nil
}

// Forward consumes a (C, H, W) feature map, the word embeddings and the mask,
// and returns the (C, 2H, 2W) refined map together with the (seqLen, H, W)
// attention weights.
func (m *NextStage) Forward(images FeatureMap, words mat.Tensor, mask Mask) (FeatureMap, FeatureMap, error) {
	context, attn, err := m.Attention.Forward(images, words, mask)
	if err != nil {
		return FeatureMap{}, FeatureMap{}, err
	}

	x := FeatureMap{Data: vconcat(images.Data, context.Data), H: images.H, W: images.W}
	for _, r := range m.Residual {
		if x, err = r.Forward(x); err != nil {
			return FeatureMap{}, FeatureMap{}, err
		}
	}
	if x, err = m.Upsample.Forward(x); err != nil {
		return FeatureMap{}, FeatureMap{}, err
	}
	return x, attn, nil
}

// ForwardBatch runs Forward over a batch, one entry per sample.
func (m *NextStage) ForwardBatch(images []FeatureMap, words []mat.Tensor, masks []Mask) (out, attns []FeatureMap, err error) {
	if len(words) != len(images) || len(masks) != len(images) {
		return nil, nil, fmt.Errorf("next stage: batch sizes disagree (%d images, %d word matrices, %d masks): %w",
			len(images), len(words), len(masks), ErrShapeMismatch)
	}
	out = make([]FeatureMap, len(images))
	attns = make([]FeatureMap, len(images))
	for i := range images {
		out[i], attns[i], err = m.Forward(images[i], words[i], masks[i])
		if err != nil {
			return nil, nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return out, attns, nil
}
