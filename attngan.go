// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package attngan implements the generator side of an AttnGAN-style
// text-to-image model: a multi-stage image generator that progressively
// upsamples an image conditioned on a noise vector and per-word caption
// embeddings, aligning image regions with words through cross attention.
//
// The text encoder producing the embeddings, the discriminators and the
// training procedure are external collaborators; this package consumes their
// outputs (see Conditioning) and exposes per-stage images, feature maps and
// attention maps.
package attngan

import (
	"context"
	"fmt"
	"os"

	"github.com/nlpodyssey/attngan/ganmodel"
	"github.com/nlpodyssey/spago/mat"
	"github.com/rs/zerolog/log"
)

// AttnGAN is the core struct of the library.
type AttnGAN struct {
	Model *ganmodel.Model
}

// Load loads a converted generator model from the given directory.
func Load(modelDir string) (*AttnGAN, error) {
	model, err := ganmodel.Load(modelDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("unable to find the model file in %q; ensure the model has been downloaded and converted", modelDir)
		}
		return nil, err
	}
	return &AttnGAN{Model: model}, nil
}

// Generate produces the stage images and attention maps for one caption.
func (g *AttnGAN) Generate(noise mat.Tensor, cond Conditioning) (ganmodel.Output, error) {
	if err := cond.Validate(g.Model.Config.EmbDim); err != nil {
		return ganmodel.Output{}, err
	}
	return g.Model.Forward(noise, cond.Sentence, cond.Words, cond.Mask)
}

// GenerateBatch runs Generate for each caption, one noise vector per sample.
// The context is checked between samples; the computation of a single sample
// is not cancellable.
func (g *AttnGAN) GenerateBatch(ctx context.Context, noise []mat.Tensor, conds []Conditioning) ([]ganmodel.Output, error) {
	if len(noise) != len(conds) {
		return nil, fmt.Errorf("batch sizes disagree (%d noise vectors, %d conditionings)", len(noise), len(conds))
	}
	out := make([]ganmodel.Output, len(conds))
	for i := range conds {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		log.Debug().Int("sample", i).Msg("generating")
		var err error
		if out[i], err = g.Generate(noise[i], conds[i]); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return out, nil
}
