// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ganmodel

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nlpodyssey/attngan/generator"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPyModelFilename = "generator.pt"
	DefaultOutputFilename  = "spago_model.bin"
)

type ConverterConfig struct {
	// The path to the directory where the models will be read from and written to.
	ModelDir string
	// The path to the input model file (default "generator.pt")
	PyModelFilename string
	// The path to the output model file (default "spago_model.bin")
	GoModelFilename string
	// If true, overwrite the model file if it already exists (default "false")
	OverwriteIfExist bool
}

// ConvertPickledModel converts a pickled PyTorch AttnGAN generator checkpoint
// to a spaGO Model. It expects a configuration file "config.json" in the same
// directory as the model file; configuration fields left at zero are deduced
// from the parameter shapes.
func ConvertPickledModel[T float.DType](config ConverterConfig) error {
	if config.PyModelFilename == "" {
		config.PyModelFilename = DefaultPyModelFilename
	}
	if config.GoModelFilename == "" {
		config.GoModelFilename = DefaultOutputFilename
	}

	outputFilename := filepath.Join(config.ModelDir, config.GoModelFilename)

	if !config.OverwriteIfExist && fileExists(outputFilename) {
		log.Debug().Str("model", outputFilename).Msg("Model file already exists, skipping conversion")
		return nil
	}

	configFilename := filepath.Join(config.ModelDir, "config.json")
	modelConfig, err := LoadConfig(configFilename)
	if err != nil {
		return fmt.Errorf("failed to load config file %q: %w", configFilename, err)
	}

	inFilename := filepath.Join(config.ModelDir, config.PyModelFilename)
	conv := newConverter[T](modelConfig, inFilename, outputFilename)
	if err = conv.run(); err != nil {
		return fmt.Errorf("model conversion failed: %w", err)
	}
	return nil
}

func fileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

type converter[T float.DType] struct {
	model       *Model
	inFilename  string
	outFilename string
	params      paramsMap
}

func newConverter[T float.DType](conf Config, inFilename, outFilename string) *converter[T] {
	return &converter[T]{
		model:       &Model{Config: conf},
		inFilename:  inFilename,
		outFilename: outFilename,
	}
}

func (c *converter[T]) run() error {
	funcs := []func() error{
		c.loadTorchModelParams,
		c.deduceConfig,
		c.convInitialStage,
		c.convNextStages,
		c.convImageHeads,
		c.dumpModel,
	}
	for _, fn := range funcs {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter[T]) dumpModel() error {
	return Dump(c.model, c.outFilename)
}

func (c *converter[T]) loadTorchModelParams() error {
	torchModel, err := pytorch.Load(c.inFilename)
	if err != nil {
		return fmt.Errorf("failed to load torch model %q: %w", c.inFilename, err)
	}
	c.params, err = makeParamsMap(torchModel)
	if err != nil {
		return fmt.Errorf("failed to read model params: %w", err)
	}
	return nil
}

// deduceConfig fills zero configuration fields from the parameter shapes and
// verifies the non-zero ones against them.
func (c *converter[T]) deduceConfig() error {
	fc, ok := c.params["h_net1.fc.0.weight"]
	if !ok {
		return fmt.Errorf("parameter %q not found", "h_net1.fc.0.weight")
	}
	if len(fc.Size) != 2 {
		return fmt.Errorf("expected fc weight to have 2 dimensions, actual %d", len(fc.Size))
	}
	ng := fc.Size[0] / 32 // rows = ng*4*4*2
	if bw := c.model.Config.BaseWidth; bw == 0 {
		c.model.Config.BaseWidth = ng / 16
	} else if bw != ng/16 {
		return fmt.Errorf("expected base width %d, actual %d", bw, ng/16)
	}

	att, ok := c.params["h_net2.attention.conv1.weight"]
	if !ok {
		return fmt.Errorf("parameter %q not found", "h_net2.attention.conv1.weight")
	}
	if len(att.Size) < 2 {
		return fmt.Errorf("expected attention projection to have at least 2 dimensions, actual %d", len(att.Size))
	}
	embDim := att.Size[1]
	if e := c.model.Config.EmbDim; e == 0 {
		c.model.Config.EmbDim = embDim
	} else if e != embDim {
		return fmt.Errorf("expected embedding dimension %d, actual %d", e, embDim)
	}

	zDim := fc.Size[1] - c.model.Config.EmbDim
	if z := c.model.Config.ZDim; z == 0 {
		c.model.Config.ZDim = zDim
	} else if z != zDim {
		return fmt.Errorf("expected noise dimension %d, actual %d", z, zDim)
	}

	numStages, err := countPrefixed(c.params, "h_net")
	if err != nil {
		return err
	}
	numStages-- // the first branch is the initial stage
	if s := c.model.Config.NumStages; s == 0 {
		c.model.Config.NumStages = numStages
	} else if s != numStages {
		return fmt.Errorf("expected %d refinement stages, actual %d", s, numStages)
	}

	numRes, err := countIndexed(c.params, "h_net2.residual.")
	if err != nil {
		return err
	}
	if r := c.model.Config.NumResBlocks; r == 0 {
		c.model.Config.NumResBlocks = numRes
	} else if r != numRes {
		return fmt.Errorf("expected %d residual blocks, actual %d", r, numRes)
	}

	return c.model.Config.Validate()
}

func (c *converter[T]) convInitialStage() error {
	conf := c.model.Config
	ng := conf.BaseWidth * 16

	fc, err := c.fetchParamToMatrix("h_net1.fc.0.weight", [2]int{ng * 32, conf.ZDim + conf.EmbDim})
	if err != nil {
		return fmt.Errorf("failed to convert fc weight: %w", err)
	}
	norm, err := c.convBatchNorm("h_net1.fc.1", ng*32)
	if err != nil {
		return fmt.Errorf("failed to convert fc batch norm: %w", err)
	}

	stage := &generator.InitialStage{
		Fc:     nn.NewParam(fc),
		Norm:   norm,
		GfDim:  ng,
		ZDim:   conf.ZDim,
		EmbDim: conf.EmbDim,
	}
	ups := []**generator.UpsampleBlock{&stage.Up1, &stage.Up2, &stage.Up3, &stage.Up4}
	for i, up := range ups {
		in := ng >> i
		*up, err = c.convUpsampleBlock(fmt.Sprintf("h_net1.upsample%d", i+1), in, in/2)
		if err != nil {
			return fmt.Errorf("failed to convert initial-stage upsample %d: %w", i+1, err)
		}
	}
	c.model.Initial = stage
	return nil
}

func (c *converter[T]) convNextStages() error {
	conf := c.model.Config
	c.model.Stages = make([]*generator.NextStage, conf.NumStages)
	for i := range c.model.Stages {
		stage, err := c.convNextStage(fmt.Sprintf("h_net%d", i+2))
		if err != nil {
			return fmt.Errorf("failed to convert stage %d: %w", i+1, err)
		}
		c.model.Stages[i] = stage
	}
	return nil
}

func (c *converter[T]) convNextStage(prefix string) (*generator.NextStage, error) {
	conf := c.model.Config
	gf := conf.BaseWidth

	proj, err := c.fetchParamToMatrix(prefix+".attention.conv1.weight", [2]int{gf, conf.EmbDim})
	if err != nil {
		return nil, fmt.Errorf("failed to convert attention projection: %w", err)
	}

	stage := &generator.NextStage{
		Attention: &generator.WordAttention{
			Proj:   &generator.Conv1x1{W: nn.NewParam(proj)},
			Scaled: true,
		},
		Residual: make([]*generator.ResidualBlock, conf.NumResBlocks),
		GfDim:    gf,
	}

	for i := range stage.Residual {
		block, err := c.convResidualBlock(fmt.Sprintf("%s.residual.%d.block", prefix, i), gf*2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert residual block %d: %w", i, err)
		}
		stage.Residual[i] = block
	}

	if stage.Upsample, err = c.convUpsampleBlock(prefix+".upsample", gf*2, gf); err != nil {
		return nil, fmt.Errorf("failed to convert upsample: %w", err)
	}
	return stage, nil
}

func (c *converter[T]) convResidualBlock(prefix string, channels int) (*generator.ResidualBlock, error) {
	conv1, err := c.fetchParamToMatrix(prefix+".0.weight", [2]int{channels * 2, channels * 9})
	if err != nil {
		return nil, err
	}
	norm1, err := c.convBatchNorm(prefix+".1", channels*2)
	if err != nil {
		return nil, err
	}
	conv2, err := c.fetchParamToMatrix(prefix+".3.weight", [2]int{channels, channels * 9})
	if err != nil {
		return nil, err
	}
	norm2, err := c.convBatchNorm(prefix+".4", channels)
	if err != nil {
		return nil, err
	}
	return &generator.ResidualBlock{
		Conv1: &generator.Conv3x3{W: nn.NewParam(conv1), In: channels, Out: channels * 2},
		Norm1: norm1,
		Conv2: &generator.Conv3x3{W: nn.NewParam(conv2), In: channels, Out: channels},
		Norm2: norm2,
	}, nil
}

// convUpsampleBlock reads the sequential up-block: [0] parameter-free
// upsample, [1] conv3x3 (in -> out*2), [2] batch norm, [3] GLU.
func (c *converter[T]) convUpsampleBlock(prefix string, in, out int) (*generator.UpsampleBlock, error) {
	conv, err := c.fetchParamToMatrix(prefix+".1.weight", [2]int{out * 2, in * 9})
	if err != nil {
		return nil, err
	}
	norm, err := c.convBatchNorm(prefix+".2", out*2)
	if err != nil {
		return nil, err
	}
	return &generator.UpsampleBlock{
		Conv: &generator.Conv3x3{W: nn.NewParam(conv), In: in, Out: out * 2},
		Norm: norm,
	}, nil
}

func (c *converter[T]) convImageHeads() error {
	conf := c.model.Config
	c.model.ToImage = make([]*generator.MakeImage, conf.NumStages+1)
	for i := range c.model.ToImage {
		conv, err := c.fetchParamToMatrix(fmt.Sprintf("img_net%d.img.0.weight", i+1), [2]int{3, conf.BaseWidth * 9})
		if err != nil {
			return fmt.Errorf("failed to convert image head %d: %w", i+1, err)
		}
		c.model.ToImage[i] = &generator.MakeImage{
			Conv: &generator.Conv3x3{W: nn.NewParam(conv), In: conf.BaseWidth, Out: 3},
		}
	}
	return nil
}

func (c *converter[T]) convBatchNorm(prefix string, size int) (*generator.BatchNorm, error) {
	w, err := c.fetchParamToVector(prefix+".weight", size)
	if err != nil {
		return nil, err
	}
	b, err := c.fetchParamToVector(prefix+".bias", size)
	if err != nil {
		return nil, err
	}
	mean, err := c.fetchParamToVector(prefix+".running_mean", size)
	if err != nil {
		return nil, err
	}
	variance, err := c.fetchParamToVector(prefix+".running_var", size)
	if err != nil {
		return nil, err
	}
	return generator.NewBatchNormFromStats[T](w, b, mean, variance)
}

// tensorToMatrix flattens the trailing dimensions, so a (out, in, kh, kw)
// convolution kernel becomes the (out, in*kh*kw) layout Conv3x3 expects.
func (c *converter[T]) tensorToMatrix(t *pytorch.Tensor) (mat.Matrix, error) {
	if len(t.Size) < 2 {
		return nil, fmt.Errorf("expected at least 2 dimensions, actual %d", len(t.Size))
	}
	data, err := c.tensorData(t)
	if err != nil {
		return nil, err
	}
	rows := t.Size[0]
	cols := 1
	for _, v := range t.Size[1:] {
		cols *= v
	}
	return mat.NewDense[T](mat.WithShape(rows, cols), mat.WithBacking(float.SliceValueOf[T](data))), nil
}

func (c *converter[T]) tensorToVector(t *pytorch.Tensor) (mat.Matrix, error) {
	if len(t.Size) != 1 {
		return nil, fmt.Errorf("expected 1 dimension, actual %d", len(t.Size))
	}
	data, err := c.tensorData(t)
	if err != nil {
		return nil, err
	}
	return mat.NewDense[T](mat.WithBacking(float.SliceValueOf[T](data))), nil
}

func (c *converter[T]) tensorData(t *pytorch.Tensor) (float.Slice, error) {
	size := tensorDataSize(t)
	switch st := t.Source.(type) {
	case *pytorch.FloatStorage:
		return float.Make(st.Data[t.StorageOffset : t.StorageOffset+size]...), nil
	case *pytorch.DoubleStorage:
		return float.Make(st.Data[t.StorageOffset : t.StorageOffset+size]...), nil
	case *pytorch.BFloat16Storage:
		return float.Make(st.Data[t.StorageOffset : t.StorageOffset+size]...), nil
	default:
		return nil, fmt.Errorf("unsupported tensor storage %T", t.Source)
	}
}

func (c *converter[T]) fetchParamToMatrix(name string, expectedSize [2]int) (mat.Matrix, error) {
	t, err := c.params.fetch(name)
	if err != nil {
		return nil, err
	}
	m, err := c.tensorToMatrix(t)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	if m.Shape()[0] != expectedSize[0] || m.Shape()[1] != expectedSize[1] {
		return nil, fmt.Errorf("parameter %q: expected matrix size %dx%d, actual %dx%d",
			name, expectedSize[0], expectedSize[1], m.Shape()[0], m.Shape()[1])
	}
	return m, nil
}

func (c *converter[T]) fetchParamToVector(name string, expectedSize int) (mat.Matrix, error) {
	t, err := c.params.fetch(name)
	if err != nil {
		return nil, err
	}
	v, err := c.tensorToVector(t)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	if v.Size() != expectedSize {
		return nil, fmt.Errorf("parameter %q: expected vector size %d, actual %d", name, expectedSize, v.Size())
	}
	return v, nil
}

func tensorDataSize(t *pytorch.Tensor) int {
	size := t.Size[0]
	for _, v := range t.Size[1:] {
		size *= v
	}
	return size
}

// countPrefixed counts the distinct numbered module names starting with the
// given prefix, e.g. h_net1, h_net2, ...
func countPrefixed(params paramsMap, prefix string) (int, error) {
	max := 0
	for k := range params {
		after, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		before, _, ok := strings.Cut(after, ".")
		if !ok {
			return 0, fmt.Errorf("module names expected to follow %q with a number, actual name %q", prefix, k)
		}
		num, err := strconv.Atoi(before)
		if err != nil {
			return 0, fmt.Errorf("module names expected to follow %q with a number, actual name %q: %w", prefix, k, err)
		}
		if num > max {
			max = num
		}
	}
	if max == 0 {
		return 0, fmt.Errorf("no modules found with prefix %q", prefix)
	}
	return max, nil
}

// countIndexed counts the distinct zero-based indices following the given
// prefix, e.g. h_net2.residual.0., h_net2.residual.1., ...
func countIndexed(params paramsMap, prefix string) (int, error) {
	max := -1
	for k := range params {
		after, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		before, _, ok := strings.Cut(after, ".")
		if !ok {
			return 0, fmt.Errorf("parameter names expected to follow %q with an index, actual name %q", prefix, k)
		}
		num, err := strconv.Atoi(before)
		if err != nil {
			return 0, fmt.Errorf("parameter names expected to follow %q with an index, actual name %q: %w", prefix, k, err)
		}
		if num > max {
			max = num
		}
	}
	if max < 0 {
		return 0, fmt.Errorf("no parameters found with prefix %q", prefix)
	}
	return max + 1, nil
}

func cast[T any](v any) (t T, _ error) {
	t, ok := v.(T)
	if !ok {
		return t, fmt.Errorf("type assertion failed: expected %T, actual %T", t, v)
	}
	return
}

type paramsMap map[string]*pytorch.Tensor

func makeParamsMap(torchModel any) (paramsMap, error) {
	od, err := cast[*types.OrderedDict](torchModel)
	if err != nil {
		return nil, err
	}

	params := make(paramsMap, od.Len())

	for k, item := range od.Map {
		name, err := cast[string](k)
		if err != nil {
			return nil, fmt.Errorf("wrong param name type: %w", err)
		}
		tensor, err := cast[*pytorch.Tensor](item.Value)
		if err != nil {
			return nil, fmt.Errorf("wrong value type for param %q: %w", name, err)
		}
		params[name] = tensor
	}

	return params, nil
}

// fetch gets a value from params by its name, removing the entry from the map.
func (p paramsMap) fetch(name string) (*pytorch.Tensor, error) {
	t, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("parameter %q not found", name)
	}
	delete(p, name)
	return t, nil
}
