// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
)

// DefaultGamma is the sharpening factor of the second softmax stage of
// FuncAttention, as in the AttnGAN paper.
const DefaultGamma = 4.0

// FuncAttention is the parameter-free attention variant used outside the
// generator stages, e.g. by region-word matching losses. It attends a query
// matrix over the spatial locations of a context feature map in two softmax
// stages: a first softmax over the query axis, then a transpose, a
// multiplication by gamma, and a second softmax over the source axis. The
// larger gamma, the closer the final distribution gets to a hard argmax.
//
// query is a (C, queryLen) matrix and context a (C, H, W) feature map with
// the same feature dimension. There is no mask support. It returns the
// weighted context as a (C, queryLen) matrix and the attention weights as a
// (queryLen, H, W) feature map. When scaled is true the first-stage scores
// are multiplied by 1/sqrt(C).
func FuncAttention(query mat.Tensor, context FeatureMap, gamma float64, scaled bool) (mat.Tensor, FeatureMap, error) {
	ndf := rows(query)
	if c := context.Channels(); c != ndf {
		return nil, FeatureMap{}, fmt.Errorf("func attention: context has %d channels, query has %d features: %w", c, ndf, ErrShapeMismatch)
	}
	if gamma <= 0 {
		return nil, FeatureMap{}, fmt.Errorf("func attention: non-positive gamma %f: %w", gamma, ErrConfiguration)
	}

	scores := ag.Mul(ag.T(context.Data), query) // (sourceLen, queryLen)
	if scaled {
		scores = ag.ProdScalar(scores, mat.Scalar(1/math.Sqrt(float64(ndf))))
	}

	attn := rowSoftmax(scores, nil)                           // per source location, over queries
	sharpened := ag.ProdScalar(ag.T(attn), mat.Scalar(gamma)) // (queryLen, sourceLen)
	attn = rowSoftmax(sharpened, nil)                         // per query, over source locations

	weighted := ag.Mul(context.Data, ag.T(attn)) // (C, queryLen)
	return weighted, FeatureMap{Data: attn, H: context.H, W: context.W}, nil
}
