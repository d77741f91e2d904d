// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package noise draws the latent noise vectors consumed by the generator's
// initial stage.
package noise

import (
	"math/rand"

	"github.com/nlpodyssey/spago/mat"
)

// Sampler produces noise vectors from a seeded source, so a generation run
// can be reproduced exactly.
type Sampler struct {
	rnd *rand.Rand
}

func NewSampler(seed int64) *Sampler {
	return &Sampler{rnd: rand.New(rand.NewSource(seed))}
}

// Normal returns a standard-normal noise vector of the given dimension.
func (s *Sampler) Normal(dim int) mat.Tensor {
	data := make([]float32, dim)
	for i := range data {
		data[i] = float32(s.rnd.NormFloat64())
	}
	return mat.NewDense[float32](mat.WithBacking(data))
}

// Uniform returns a noise vector with entries drawn uniformly from [-1, 1).
func (s *Sampler) Uniform(dim int) mat.Tensor {
	data := make([]float32, dim)
	for i := range data {
		data[i] = float32(2*s.rnd.Float64() - 1)
	}
	return mat.NewDense[float32](mat.WithBacking(data))
}
