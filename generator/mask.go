// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/mat"
)

// Mask marks which word positions attention may look at: true means attend,
// false means the position is padding and must be ignored.
type Mask []bool

// NewMaskFromLength builds the mask for a caption of the given length padded
// to seqLen positions.
func NewMaskFromLength(length, seqLen int) (Mask, error) {
	if seqLen <= 0 {
		return nil, fmt.Errorf("mask: non-positive sequence length %d: %w", seqLen, ErrShapeMismatch)
	}
	if length <= 0 {
		return nil, fmt.Errorf("mask: caption length %d leaves no attendable word: %w", length, ErrDegenerateMask)
	}
	if length > seqLen {
		return nil, fmt.Errorf("mask: caption length %d exceeds sequence length %d: %w", length, seqLen, ErrShapeMismatch)
	}
	m := make(Mask, seqLen)
	for i := 0; i < length; i++ {
		m[i] = true
	}
	return m, nil
}

// Validate checks the mask against the expected sequence length and rejects
// masks with no attendable position.
func (m Mask) Validate(seqLen int) error {
	if len(m) != seqLen {
		return fmt.Errorf("mask: length %d, expected %d: %w", len(m), seqLen, ErrShapeMismatch)
	}
	for _, keep := range m {
		if keep {
			return nil
		}
	}
	return fmt.Errorf("mask: all %d positions masked out: %w", seqLen, ErrDegenerateMask)
}

// additiveBias returns the mask as a pre-softmax additive bias, a 1-by-L row
// with 0 for attendable positions and -Inf for padding. The row orientation
// matches the row views the softmax is applied to.
func (m Mask) additiveBias() mat.Tensor {
	data := make([]float32, len(m))
	negInf := float32(math.Inf(-1))
	for i, keep := range m {
		if !keep {
			data[i] = negInf
		}
	}
	return mat.NewDense[float32](mat.WithShape(1, len(m)), mat.WithBacking(data))
}
