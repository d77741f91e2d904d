// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import (
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
)

// This file contains small operations on matrices that the spaGO operators do
// not cover directly, mostly because of the lack of broadcasting. Constant
// helper matrices are built as float32, matching the precision the models are
// instantiated with.

func rows(t mat.Tensor) int {
	return t.Shape()[0]
}

func cols(t mat.Tensor) int {
	return t.Shape()[1]
}

// rowSoftmax applies the softmax to each row of x. When bias is not nil it is
// added to every row first (additive masks use -Inf entries).
func rowSoftmax(x mat.Tensor, bias mat.Tensor) mat.Tensor {
	n := rows(x)
	out := make([]mat.Tensor, n)
	for i := 0; i < n; i++ {
		r := ag.RowView(x, i)
		if bias != nil {
			r = ag.Add(r, bias)
		}
		out[i] = ag.Softmax(r)
	}
	return ag.Stack(out...)
}

// vconcat concatenates matrices along the row (channel) axis.
func vconcat(xs ...mat.Tensor) mat.Tensor {
	var rws []mat.Tensor
	for _, x := range xs {
		n := rows(x)
		for i := 0; i < n; i++ {
			rws = append(rws, ag.RowView(x, i))
		}
	}
	return ag.Stack(rws...)
}

// onesRow returns a constant 1-by-n matrix of ones, used to broadcast a
// per-channel column vector over the spatial axis via an outer product.
func onesRow(n int) mat.Tensor {
	return mat.NewDense[float32](mat.WithShape(1, n), mat.WithBacking(mat.CreateInitializedSlice[float32](n, 1)))
}

// shiftRowsMatrix returns the h-by-h matrix S with S[i][i+d] = 1, so that S·M
// shifts the rows of M by d with zero padding.
func shiftRowsMatrix(h, d int) mat.Tensor {
	data := make([]float32, h*h)
	for i := 0; i < h; i++ {
		if j := i + d; j >= 0 && j < h {
			data[i*h+j] = 1
		}
	}
	return mat.NewDense[float32](mat.WithShape(h, h), mat.WithBacking(data))
}

// shiftColsMatrix returns the w-by-w matrix C with C[j+d][j] = 1, so that M·C
// shifts the columns of M by d with zero padding.
func shiftColsMatrix(w, d int) mat.Tensor {
	data := make([]float32, w*w)
	for j := 0; j < w; j++ {
		if i := j + d; i >= 0 && i < w {
			data[i*w+j] = 1
		}
	}
	return mat.NewDense[float32](mat.WithShape(w, w), mat.WithBacking(data))
}

// repeatRowsMatrix returns the 2h-by-h matrix U with U[i][i/2] = 1: U·M
// duplicates every row of M, the building block of nearest-neighbor upsampling.
func repeatRowsMatrix(h int) mat.Tensor {
	data := make([]float32, 2*h*h)
	for i := 0; i < 2*h; i++ {
		data[i*h+i/2] = 1
	}
	return mat.NewDense[float32](mat.WithShape(2*h, h), mat.WithBacking(data))
}

// selectRowsMatrix returns the h/2-by-h matrix D with D[i][2i+d] = 1 (when in
// range), selecting strided rows for the stride-2 down block.
func selectRowsMatrix(h, d int) mat.Tensor {
	half := h / 2
	data := make([]float32, half*h)
	for i := 0; i < half; i++ {
		if j := 2*i + d; j >= 0 && j < h {
			data[i*h+j] = 1
		}
	}
	return mat.NewDense[float32](mat.WithShape(half, h), mat.WithBacking(data))
}
