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

// InitialStage turns a noise vector and a global sentence vector into the
// 64x64 base feature map of the generator pipeline: the two vectors are
// concatenated, projected by a bias-free linear layer (with batch norm and a
// GLU), reshaped to a (gfDim, 4, 4) map and upsampled four times, halving the
// channel count at every step. The output has gfDim/16 channels.
type InitialStage struct {
	nn.Module
	Fc     *nn.Param // (gfDim*4*4*2, zDim+embDim), bias-free
	Norm   *BatchNorm
	Up1    *UpsampleBlock
	Up2    *UpsampleBlock
	Up3    *UpsampleBlock
	Up4    *UpsampleBlock
	GfDim  int
	ZDim   int
	EmbDim int
}

func init() {
	gob.Register(&InitialStage{})
}

func NewInitialStage[T float.DType](gfDim, zDim, embDim int) (*InitialStage, error) {
	if gfDim <= 0 || gfDim%16 != 0 {
		return nil, fmt.Errorf("initial stage: feature width %d not divisible by 16: %w", gfDim, ErrConfiguration)
	}
	if zDim <= 0 || embDim <= 0 {
		return nil, fmt.Errorf("initial stage: non-positive input dimensions %d, %d: %w", zDim, embDim, ErrConfiguration)
	}
	m := &InitialStage{
		Fc:     nn.NewParam(mat.NewDense[T](mat.WithShape(gfDim*4*4*2, zDim+embDim))),
		Norm:   NewBatchNorm[T](gfDim * 4 * 4 * 2),
		GfDim:  gfDim,
		ZDim:   zDim,
		EmbDim: embDim,
	}
	var err error
	if m.Up1, err = NewUpsampleBlock[T](gfDim, gfDim/2); err != nil {
		return nil, err
	}
	if m.Up2, err = NewUpsampleBlock[T](gfDim/2, gfDim/4); err != nil {
		return nil, err
	}
	if m.Up3, err = NewUpsampleBlock[T](gfDim/4, gfDim/8); err != nil {
		return nil, err
	}
	if m.Up4, err = NewUpsampleBlock[T](gfDim/8, gfDim/16); err != nil {
		return nil, err
	}
	return m, nil
}

// Forward maps (noise, sentence) to a (gfDim/16, 64, 64) feature map.
func (m *InitialStage) Forward(noise, sentence mat.Tensor) (FeatureMap, error) {
	if noise.Size() != m.ZDim {
		return FeatureMap{}, fmt.Errorf("initial stage: noise size %d, expected %d: %w", noise.Size(), m.ZDim, ErrShapeMismatch)
	}
	if sentence.Size() != m.EmbDim {
		return FeatureMap{}, fmt.Errorf("initial stage: sentence size %d, expected %d: %w", sentence.Size(), m.EmbDim, ErrShapeMismatch)
	}

	x := ag.Mul(m.Fc, ag.Concat(noise, sentence))
	x, err := m.Norm.ForwardVec(x)
	if err != nil {
		return FeatureMap{}, err
	}
	if x, err = (GLU{}).ForwardVec(x); err != nil {
		return FeatureMap{}, err
	}

	fm := FeatureMap{Data: ag.Reshape(x, m.GfDim, 16), H: 4, W: 4}
	for _, up := range []*UpsampleBlock{m.Up1, m.Up2, m.Up3, m.Up4} {
		if fm, err = up.Forward(fm); err != nil {
			return FeatureMap{}, err
		}
	}
	return fm, nil
}

// ForwardBatch runs Forward over a batch of noise and sentence vectors.
func (m *InitialStage) ForwardBatch(noise, sentences []mat.Tensor) ([]FeatureMap, error) {
	if len(noise) != len(sentences) {
		return nil, fmt.Errorf("initial stage: batch sizes disagree (%d noise, %d sentences): %w", len(noise), len(sentences), ErrShapeMismatch)
	}
	out := make([]FeatureMap, len(noise))
	var err error
	for i := range noise {
		if out[i], err = m.Forward(noise[i], sentences[i]); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return out, nil
}
