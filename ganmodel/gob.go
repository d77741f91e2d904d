// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ganmodel

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/nlpodyssey/attngan/generator"
)

// Dump saves the Model to a file.
// See gobEncode for further details.
func Dump(obj *Model, filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to open model dump file %q for writing: %w", filename, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("failed to close model dump file %q: %w", filename, e)
		}
	}()
	if err = gobEncode(obj, f); err != nil {
		return fmt.Errorf("failed to encode model dump: %w", err)
	}
	return nil
}

// gobEncode writes the model as a sequence of independently decodable chunks:
// the config first, then the initial stage and each stage/head pair in order.
func gobEncode(obj *Model, w io.Writer) error {
	bw := bufio.NewWriter(w)
	encoder := gob.NewEncoder(bw)

	for _, chunk := range getChunksForGobEncoding(obj) {
		if err := encoder.Encode(chunk); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func getChunksForGobEncoding(obj *Model) []interface{} {
	chunks := []interface{}{
		obj.Config,
		obj.Initial,
	}
	for _, stage := range obj.Stages {
		chunks = append(chunks, stage)
	}
	for _, head := range obj.ToImage {
		chunks = append(chunks, head)
	}
	return chunks
}

// loadFromFile uses Gob to deserialize objects files to memory.
// See gobDecoding for further details.
func loadFromFile(filename string) (*Model, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return gobDecoding(f)
}

func gobDecoding(r io.Reader) (*Model, error) {
	obj := &Model{
		Initial: &generator.InitialStage{},
	}

	br := bufio.NewReader(r)
	decoder := gob.NewDecoder(br)

	if err := decoder.Decode(&obj.Config); err != nil {
		return nil, err
	}
	if err := obj.Config.Validate(); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&obj.Initial); err != nil {
		return nil, err
	}

	obj.Stages = make([]*generator.NextStage, obj.Config.NumStages)
	for i := range obj.Stages {
		if err := decoder.Decode(&obj.Stages[i]); err != nil {
			return nil, err
		}
	}

	obj.ToImage = make([]*generator.MakeImage, obj.Config.NumStages+1)
	for i := range obj.ToImage {
		if err := decoder.Decode(&obj.ToImage[i]); err != nil {
			return nil, err
		}
	}

	return obj, nil
}
