// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"encoding/gob"
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
)

// WordAttention computes cross attention between the spatial locations of an
// image feature map and the words of a caption. Words are first projected
// into image-channel space by a learned 1x1 convolution; every spatial
// location then attends over the (unmasked) words with a scaled dot product.
//
// The mask is an explicit Forward argument, so a single module instance is
// safe for concurrent use.
type WordAttention struct {
	nn.Module
	Proj *Conv1x1 // embDim -> channels
	// Scaled multiplies the raw scores by 1/sqrt(channels) before the
	// softmax. On by default; large channel counts need it to keep the
	// softmax away from its saturated region.
	Scaled bool
}

func init() {
	gob.Register(&WordAttention{})
}

func NewWordAttention[T float.DType](channels, embDim int) (*WordAttention, error) {
	if channels <= 0 || embDim <= 0 {
		return nil, fmt.Errorf("word attention: non-positive dimensions %d, %d: %w", channels, embDim, ErrConfiguration)
	}
	return &WordAttention{
		Proj:   NewConv1x1[T](embDim, channels),
		Scaled: true,
	}, nil
}

// Channels returns the image-channel dimension the module was built for.
func (m *WordAttention) Channels() int { return rows(m.Proj.W) }

// EmbDim returns the word-embedding dimension the module was built for.
func (m *WordAttention) EmbDim() int { return cols(m.Proj.W) }

// Forward computes the attention for a single sample.
//
// images is a (C, H, W) feature map, words a (embDim, seqLen) matrix, mask a
// seqLen-long mask with at least one attendable position. It returns the
// weighted word context as a (C, H, W) feature map and the attention weights
// as a (seqLen, H, W) feature map: one distribution over words per spatial
// location, summing to one with masked words at zero.
func (m *WordAttention) Forward(images FeatureMap, words mat.Tensor, mask Mask) (context, attention FeatureMap, err error) {
	nc := m.Channels()
	if c := images.Channels(); c != nc {
		return FeatureMap{}, FeatureMap{}, fmt.Errorf("word attention: image has %d channels, expected %d: %w", c, nc, ErrShapeMismatch)
	}
	seqLen := cols(words)
	if err := mask.Validate(seqLen); err != nil {
		return FeatureMap{}, FeatureMap{}, err
	}

	projected, err := m.Proj.Apply(words) // (C, L)
	if err != nil {
		return FeatureMap{}, FeatureMap{}, fmt.Errorf("word attention: %w", err)
	}

	scores := ag.Mul(ag.T(images.Data), projected) // (H*W, L)
	if m.Scaled {
		scores = ag.ProdScalar(scores, mat.Scalar(1/math.Sqrt(float64(nc))))
	}

	attn := rowSoftmax(scores, mask.additiveBias()) // (H*W, L)
	attnT := ag.T(attn)                             // (L, H*W)

	weighted := ag.Mul(projected, attnT) // (C, H*W)

	context = FeatureMap{Data: weighted, H: images.H, W: images.W}
	attention = FeatureMap{Data: attnT, H: images.H, W: images.W}
	return context, attention, nil
}

// ForwardBatch runs Forward over a batch, one entry per sample.
func (m *WordAttention) ForwardBatch(images []FeatureMap, words []mat.Tensor, masks []Mask) (contexts, attentions []FeatureMap, err error) {
	if len(words) != len(images) || len(masks) != len(images) {
		return nil, nil, fmt.Errorf("word attention: batch sizes disagree (%d images, %d word matrices, %d masks): %w",
			len(images), len(words), len(masks), ErrShapeMismatch)
	}
	contexts = make([]FeatureMap, len(images))
	attentions = make([]FeatureMap, len(images))
	for i := range images {
		contexts[i], attentions[i], err = m.Forward(images[i], words[i], masks[i])
		if err != nil {
			return nil, nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return contexts, attentions, nil
}
