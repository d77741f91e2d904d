// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attngan

import (
	"fmt"

	"github.com/nlpodyssey/attngan/generator"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/nlpodyssey/spago/mat"
)

// Conditioning is the caption-side input of the generator, produced by an
// external text encoder: the pooled sentence vector, the per-word embedding
// matrix (one column per word, padding included) and the mask derived from
// the caption length.
type Conditioning struct {
	Sentence mat.Tensor // (embDim)
	Words    mat.Tensor // (embDim, seqLen)
	Mask     generator.Mask
}

// Validate checks the conditioning against the model's embedding dimension.
func (c Conditioning) Validate(embDim int) error {
	if c.Sentence == nil || c.Words == nil {
		return fmt.Errorf("conditioning: missing sentence or word embeddings: %w", generator.ErrShapeMismatch)
	}
	if c.Sentence.Size() != embDim {
		return fmt.Errorf("conditioning: sentence size %d, expected %d: %w", c.Sentence.Size(), embDim, generator.ErrShapeMismatch)
	}
	if r := c.Words.Shape()[0]; r != embDim {
		return fmt.Errorf("conditioning: word embeddings have %d rows, expected %d: %w", r, embDim, generator.ErrShapeMismatch)
	}
	return c.Mask.Validate(c.Words.Shape()[1])
}

// LoadConditioning reads caption embeddings from a pickled PyTorch file: a
// list of dictionaries, each with a "sentence" (embDim) tensor, a "words"
// (embDim, seqLen) tensor, and an integer "length" holding the number of
// real (non-padding) words.
func LoadConditioning(filename string) ([]Conditioning, error) {
	loaded, err := pytorch.Load(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings file %q: %w", filename, err)
	}
	list, ok := loaded.(*types.List)
	if !ok {
		return nil, fmt.Errorf("embeddings file %q: expected a list, actual %T", filename, loaded)
	}

	out := make([]Conditioning, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		cond, err := conditioningFromDict(list.Get(i))
		if err != nil {
			return nil, fmt.Errorf("embeddings file %q, entry %d: %w", filename, i, err)
		}
		out = append(out, cond)
	}
	return out, nil
}

func conditioningFromDict(item any) (Conditioning, error) {
	sentence, err := dictTensor(item, "sentence")
	if err != nil {
		return Conditioning{}, err
	}
	if len(sentence.Size) != 1 {
		return Conditioning{}, fmt.Errorf("sentence: expected 1 dimension, actual %d", len(sentence.Size))
	}
	words, err := dictTensor(item, "words")
	if err != nil {
		return Conditioning{}, err
	}
	if len(words.Size) != 2 {
		return Conditioning{}, fmt.Errorf("words: expected 2 dimensions, actual %d", len(words.Size))
	}

	length, err := dictInt(item, "length")
	if err != nil {
		return Conditioning{}, err
	}
	mask, err := generator.NewMaskFromLength(length, words.Size[1])
	if err != nil {
		return Conditioning{}, err
	}

	sentVec, err := tensorToDense(sentence)
	if err != nil {
		return Conditioning{}, fmt.Errorf("sentence: %w", err)
	}
	wordMat, err := tensorToDense(words)
	if err != nil {
		return Conditioning{}, fmt.Errorf("words: %w", err)
	}
	return Conditioning{Sentence: sentVec, Words: wordMat, Mask: mask}, nil
}

func dictGet(item any, key string) (any, bool) {
	switch d := item.(type) {
	case *types.Dict:
		return d.Get(key)
	case *types.OrderedDict:
		if e, ok := d.Map[key]; ok {
			return e.Value, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func dictTensor(item any, key string) (*pytorch.Tensor, error) {
	v, ok := dictGet(item, key)
	if !ok {
		return nil, fmt.Errorf("missing %q entry", key)
	}
	t, ok := v.(*pytorch.Tensor)
	if !ok {
		return nil, fmt.Errorf("%q entry: expected a tensor, actual %T", key, v)
	}
	return t, nil
}

func dictInt(item any, key string) (int, error) {
	v, ok := dictGet(item, key)
	if !ok {
		return 0, fmt.Errorf("missing %q entry", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%q entry: expected an integer, actual %T", key, v)
	}
}

func tensorToDense(t *pytorch.Tensor) (mat.Tensor, error) {
	size := 1
	for _, v := range t.Size {
		size *= v
	}
	var data []float32
	switch st := t.Source.(type) {
	case *pytorch.FloatStorage:
		data = st.Data[t.StorageOffset : t.StorageOffset+size]
	case *pytorch.BFloat16Storage:
		data = st.Data[t.StorageOffset : t.StorageOffset+size]
	case *pytorch.DoubleStorage:
		data = make([]float32, size)
		for i, v := range st.Data[t.StorageOffset : t.StorageOffset+size] {
			data[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported tensor storage %T", t.Source)
	}
	if len(t.Size) == 1 {
		return mat.NewDense[float32](mat.WithBacking(data)), nil
	}
	return mat.NewDense[float32](mat.WithShape(t.Size[0], t.Size[1]), mat.WithBacking(data)), nil
}
