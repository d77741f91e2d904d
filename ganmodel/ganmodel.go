// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ganmodel

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/attngan/generator"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
)

// Model is the full multi-stage AttnGAN generator: the initial 64x64 stage,
// one or more attention-driven refinement stages, and one RGB image head per
// resolution branch.
type Model struct {
	nn.Module
	Initial *generator.InitialStage
	Stages  []*generator.NextStage
	ToImage []*generator.MakeImage
	Config  Config
}

// Config is the construction-time configuration of the generator.
type Config struct {
	// BaseWidth is the per-stage channel count; the initial stage is built
	// with BaseWidth*16 internal features.
	BaseWidth int `json:"base_width"`
	// ZDim is the noise vector dimensionality.
	ZDim int `json:"z_dim"`
	// EmbDim is the word/sentence embedding dimensionality.
	EmbDim int `json:"emb_dim"`
	// NumResBlocks is the number of residual blocks per refinement stage.
	NumResBlocks int `json:"num_res_blocks"`
	// NumStages is the number of attention-driven refinement stages.
	NumStages int `json:"num_stages"`
}

// Output collects everything one forward pass produces: the per-branch
// feature maps, the per-branch RGB images, and the per-stage attention maps.
type Output struct {
	Features   []generator.FeatureMap
	Images     []generator.FeatureMap
	Attentions []generator.FeatureMap
}

func init() {
	gob.Register(&Model{})
}

// LoadConfig reads the model configuration from a JSON file.
func LoadConfig(filePath string) (Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.BaseWidth <= 0 {
		return fmt.Errorf("base width %d: %w", c.BaseWidth, generator.ErrConfiguration)
	}
	if c.ZDim <= 0 || c.EmbDim <= 0 {
		return fmt.Errorf("z/embedding dimensions %d, %d: %w", c.ZDim, c.EmbDim, generator.ErrConfiguration)
	}
	if c.NumResBlocks < 1 {
		return fmt.Errorf("residual block count %d: %w", c.NumResBlocks, generator.ErrConfiguration)
	}
	if c.NumStages < 1 {
		return fmt.Errorf("stage count %d: %w", c.NumStages, generator.ErrConfiguration)
	}
	return nil
}

// New returns a new generator model with the given configuration.
func New[T float.DType](c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	m := &Model{Config: c}

	var err error
	if m.Initial, err = generator.NewInitialStage[T](c.BaseWidth*16, c.ZDim, c.EmbDim); err != nil {
		return nil, err
	}
	head, err := generator.NewMakeImage[T](c.BaseWidth)
	if err != nil {
		return nil, err
	}
	m.ToImage = append(m.ToImage, head)

	for i := 0; i < c.NumStages; i++ {
		stage, err := generator.NewNextStage[T](c.BaseWidth, c.EmbDim, c.NumResBlocks)
		if err != nil {
			return nil, err
		}
		m.Stages = append(m.Stages, stage)

		if head, err = generator.NewMakeImage[T](c.BaseWidth); err != nil {
			return nil, err
		}
		m.ToImage = append(m.ToImage, head)
	}
	return m, nil
}

// Load loads a pre-trained model from the given directory.
func Load(dir string) (*Model, error) {
	return loadFromFile(filepath.Join(dir, DefaultOutputFilename))
}

// Forward generates one sample: every refinement stage attends the evolving
// feature map against the same original word embeddings, and every branch is
// projected to RGB by its own image head.
func (m *Model) Forward(noise, sentence, words mat.Tensor, mask generator.Mask) (Output, error) {
	fm, err := m.Initial.Forward(noise, sentence)
	if err != nil {
		return Output{}, err
	}

	out := Output{
		Features:   make([]generator.FeatureMap, 0, len(m.Stages)+1),
		Images:     make([]generator.FeatureMap, 0, len(m.Stages)+1),
		Attentions: make([]generator.FeatureMap, 0, len(m.Stages)),
	}
	out.Features = append(out.Features, fm)

	img, err := m.ToImage[0].Forward(fm)
	if err != nil {
		return Output{}, err
	}
	out.Images = append(out.Images, img)

	for i, stage := range m.Stages {
		var attn generator.FeatureMap
		if fm, attn, err = stage.Forward(fm, words, mask); err != nil {
			return Output{}, fmt.Errorf("stage %d: %w", i+1, err)
		}
		if img, err = m.ToImage[i+1].Forward(fm); err != nil {
			return Output{}, fmt.Errorf("stage %d: %w", i+1, err)
		}
		out.Features = append(out.Features, fm)
		out.Images = append(out.Images, img)
		out.Attentions = append(out.Attentions, attn)
	}
	return out, nil
}

// ForwardBatch runs Forward for each sample of the batch.
func (m *Model) ForwardBatch(noise, sentences, words []mat.Tensor, masks []generator.Mask) ([]Output, error) {
	n := len(noise)
	if len(sentences) != n || len(words) != n || len(masks) != n {
		return nil, fmt.Errorf("batch sizes disagree (%d noise, %d sentences, %d word matrices, %d masks): %w",
			n, len(sentences), len(words), len(masks), generator.ErrShapeMismatch)
	}
	out := make([]Output, n)
	var err error
	for i := 0; i < n; i++ {
		if out[i], err = m.Forward(noise[i], sentences[i], words[i], masks[i]); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return out, nil
}
