// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/attngan"
	"github.com/nlpodyssey/attngan/downloader"
	"github.com/nlpodyssey/attngan/ganmodel"
	"github.com/nlpodyssey/attngan/noise"
	"github.com/nlpodyssey/attngan/render"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	app := &cli.App{
		Name:  "attngan",
		Usage: "Generate images from caption embeddings with an attentional generator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "set log level (trace, debug, info, warn, error, fatal, panic)",
				Action: func(c *cli.Context, s string) error {
					return setDebugLevel(s)
				},
				Value:   "info",
				EnvVars: []string{"ATTNGAN_LOGLEVEL"},
			},
			&cli.StringFlag{
				Name:     "model-dir",
				Usage:    "directory of the model to operate on",
				Required: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "download",
				Usage: "Download model to directory",
				Action: func(c *cli.Context) error {
					if err := download(c.String("model-dir")); err != nil {
						log.Err(err).Send()
					}
					return nil
				},
			},
			{
				Name:  "convert",
				Usage: "Convert model in directory",
				Action: func(c *cli.Context) error {
					if err := convert(c.String("model-dir")); err != nil {
						log.Fatal().Err(err).Send()
					}
					return nil
				},
			},
			{
				Name:  "generate",
				Usage: "Generate images from a file of caption embeddings",
				Action: func(c *cli.Context) error {
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
					defer stop()

					if err := generate(ctx, c.String("model-dir"), c.String("embeddings"), c.String("options")); err != nil {
						log.Fatal().Err(err).Send()
					}
					return nil
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "embeddings",
						Usage:    "pickled file of caption embeddings produced by the text encoder",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "options",
						Usage:    "YAML file of generation options (seed, noise distribution, output)",
						Required: false,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setDebugLevel(debugLevel string) error {
	level, err := zerolog.ParseLevel(debugLevel)
	if err != nil {
		return err
	}
	log.Logger = log.Level(level)
	return nil
}

func download(modelDir string) error {
	log.Debug().Msgf("Downloading model in dir: %s", modelDir)
	dir, name, err := splitPathAndModelName(modelDir)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	err = downloader.Download(dir, name, false, "")
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	log.Debug().Msg("Done.")
	return nil
}

func convert(modelDir string) error {
	log.Debug().Msgf("Converting model in dir: %s", modelDir)
	err := ganmodel.ConvertPickledModel[float32](ganmodel.ConverterConfig{
		ModelDir:         modelDir,
		OverwriteIfExist: false,
	})
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	log.Debug().Msg("Done.")
	return nil
}

func generate(ctx context.Context, modelDir, embeddingsFilename, optionsFilename string) error {
	opts := attngan.DefaultGenerateOptions()
	if optionsFilename != "" {
		var err error
		if opts, err = attngan.LoadGenerateOptions(optionsFilename); err != nil {
			return err
		}
	}

	log.Debug().Msgf("Loading model...")
	g, err := attngan.Load(modelDir)
	if err != nil {
		return err
	}

	conds, err := attngan.LoadConditioning(embeddingsFilename)
	if err != nil {
		return err
	}
	log.Info().Int("captions", len(conds)).Msg("loaded caption embeddings")

	sampler := noise.NewSampler(opts.Seed)
	noiseVectors := make([]mat.Tensor, len(conds))
	for i := range noiseVectors {
		switch opts.Distribution {
		case "", "normal":
			noiseVectors[i] = sampler.Normal(g.Model.Config.ZDim)
		case "uniform":
			noiseVectors[i] = sampler.Uniform(g.Model.Config.ZDim)
		default:
			return fmt.Errorf("unknown noise distribution %q", opts.Distribution)
		}
	}

	outputs, err := g.GenerateBatch(ctx, noiseVectors, conds)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("error creating output dir %#v: %w", opts.OutputDir, err)
	}
	for i, out := range outputs {
		for stage, img := range out.Images {
			name := filepath.Join(opts.OutputDir, fmt.Sprintf("caption%d_stage%d.png", i, stage))
			if err = render.SavePNG(img, name); err != nil {
				return err
			}
			log.Info().Str("image", name).Send()
		}
		if !opts.SaveAttention {
			continue
		}
		for stage, attn := range out.Attentions {
			for word := 0; word < attn.Channels(); word++ {
				if !conds[i].Mask[word] {
					continue
				}
				name := filepath.Join(opts.OutputDir, fmt.Sprintf("caption%d_stage%d_word%d_attn.png", i, stage+1, word))
				if err = render.SaveAttentionHeatmap(attn, word, opts.HeatmapSize, name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func init() {
	ag.SetForceSyncExecution(false)
}

// splitPathAndModelName separate the models directory from the model name, which format is "organization/model"
func splitPathAndModelName(path string) (string, string, error) {
	dirs := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(dirs) < 3 {
		return "", "", fmt.Errorf("path must have at least three levels of directories")
	}
	lastDir := dirs[len(dirs)-1]
	secondLastDir := dirs[len(dirs)-2]

	pathExceptLastTwo := strings.Join(dirs[:len(dirs)-2], "/")
	return pathExceptLastTwo, filepath.Join(secondLastDir, lastDir), nil
}
