// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/attngan/generator"
	"github.com/nlpodyssey/spago/mat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToImage(t *testing.T) {
	// channel order: R, G, B
	data := mat.NewDense[float32](mat.WithShape(3, 4), mat.WithBacking([]float32{
		-1, -1, 1, 1,
		0, 0, 0, 0,
		1, -1, 1, -1,
	}))
	fm, err := generator.NewFeatureMap(data, 2, 2)
	require.NoError(t, err)

	img, err := ToImage(fm)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	c := img.NRGBAAt(0, 0)
	assert.Equal(t, uint8(0), c.R)
	assert.Equal(t, uint8(127), c.G)
	assert.Equal(t, uint8(255), c.B)
	assert.Equal(t, uint8(255), c.A)

	c = img.NRGBAAt(1, 1)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(0), c.B)
}

func TestToImageClipsOutOfRange(t *testing.T) {
	data := mat.NewDense[float32](mat.WithShape(3, 1), mat.WithBacking([]float32{-3, 0, 5}))
	fm, err := generator.NewFeatureMap(data, 1, 1)
	require.NoError(t, err)

	img, err := ToImage(fm)
	require.NoError(t, err)
	c := img.NRGBAAt(0, 0)
	assert.Equal(t, uint8(0), c.R)
	assert.Equal(t, uint8(255), c.B)
}

func TestToImageWrongChannels(t *testing.T) {
	data := mat.NewDense[float32](mat.WithShape(2, 1))
	fm, err := generator.NewFeatureMap(data, 1, 1)
	require.NoError(t, err)

	_, err = ToImage(fm)
	assert.ErrorIs(t, err, generator.ErrShapeMismatch)
}

func TestAttentionHeatmap(t *testing.T) {
	data := mat.NewDense[float32](mat.WithShape(2, 4), mat.WithBacking([]float32{
		0, 0.5, 1, 0.25,
		0, 0, 0, 0,
	}))
	fm, err := generator.NewFeatureMap(data, 2, 2)
	require.NoError(t, err)

	img, err := AttentionHeatmap(fm, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())

	// an all-zero map must not divide by zero
	img, err = AttentionHeatmap(fm, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).R)

	_, err = AttentionHeatmap(fm, 2, 8)
	assert.ErrorIs(t, err, generator.ErrShapeMismatch)

	_, err = AttentionHeatmap(fm, 0, 0)
	assert.ErrorIs(t, err, generator.ErrShapeMismatch)
}

func TestSavePNG(t *testing.T) {
	data := mat.NewDense[float32](mat.WithShape(3, 4))
	fm, err := generator.NewFeatureMap(data, 2, 2)
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, SavePNG(fm, filename))

	info, err := os.Stat(filename)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
