// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package render turns generator outputs into ordinary images: RGB feature
// maps in [-1, 1] become 8-bit pictures, attention maps become upscaled
// grayscale heatmaps.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/nlpodyssey/attngan/generator"
)

// ToImage converts a 3-channel feature map with values in [-1, 1] to an
// 8-bit image. Out-of-range values are clipped.
func ToImage(fm generator.FeatureMap) (*image.NRGBA, error) {
	if nc := fm.Channels(); nc != 3 {
		return nil, fmt.Errorf("render: %d channels, expected 3 (RGB): %w", nc, generator.ErrShapeMismatch)
	}
	img := image.NewNRGBA(image.Rect(0, 0, fm.W, fm.H))
	for y := 0; y < fm.H; y++ {
		for x := 0; x < fm.W; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: toByte(fm.At(0, y, x)),
				G: toByte(fm.At(1, y, x)),
				B: toByte(fm.At(2, y, x)),
				A: 255,
			})
		}
	}
	return img, nil
}

// SavePNG writes a feature map as a PNG file.
func SavePNG(fm generator.FeatureMap, filename string) error {
	img, err := ToImage(fm)
	if err != nil {
		return err
	}
	return imaging.Save(img, filename)
}

// AttentionHeatmap renders the attention weights of one word as a grayscale
// heatmap, upscaled to size x size with nearest-neighbor resampling so the
// attended regions stay sharp. Weights are normalized by the map's maximum.
func AttentionHeatmap(attn generator.FeatureMap, word, size int) (*image.NRGBA, error) {
	if word < 0 || word >= attn.Channels() {
		return nil, fmt.Errorf("render: word index %d out of range [0, %d): %w", word, attn.Channels(), generator.ErrShapeMismatch)
	}
	if size <= 0 {
		return nil, fmt.Errorf("render: non-positive heatmap size %d: %w", size, generator.ErrShapeMismatch)
	}

	max := 0.0
	for y := 0; y < attn.H; y++ {
		for x := 0; x < attn.W; x++ {
			if v := attn.At(word, y, x); v > max {
				max = v
			}
		}
	}
	if max == 0 {
		max = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, attn.W, attn.H))
	for y := 0; y < attn.H; y++ {
		for x := 0; x < attn.W; x++ {
			v := uint8(255 * attn.At(word, y, x) / max)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return imaging.Resize(img, size, size, imaging.NearestNeighbor), nil
}

// SaveAttentionHeatmap writes one word's attention heatmap as a PNG file.
func SaveAttentionHeatmap(attn generator.FeatureMap, word, size int, filename string) error {
	img, err := AttentionHeatmap(attn, word, size)
	if err != nil {
		return err
	}
	return imaging.Save(img, filename)
}

func toByte(v float64) uint8 {
	switch {
	case v <= -1:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8((v + 1) / 2 * 255)
	}
}
