// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package generator

import "errors"

var (
	// ErrShapeMismatch reports a disagreement between the declared and the
	// actual dimensions of an input. Forward passes fail fast with this
	// error instead of broadcasting or truncating.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDegenerateMask reports a mask with no attendable position left.
	// Every sample must keep at least one unmasked word; recovery is the
	// caller's responsibility.
	ErrDegenerateMask = errors.New("degenerate mask")

	// ErrConfiguration reports an invalid construction-time configuration,
	// such as a base feature width not divisible by 16.
	ErrConfiguration = errors.New("invalid configuration")
)
