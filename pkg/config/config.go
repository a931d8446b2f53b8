// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package config defines the hyperparameters of the dictionary-augmented NLI experiments and a registry
// of named variants.
//
// A Config is a plain value: variants are derived from a root configuration with Config.With, which works
// on a copy. Configurations can be moved in and out of a GoMLX context.Context as hyperparameters
// (see Config.SetParams and FromContext), which is how command-line overrides are applied.
package config

import (
	"encoding/json"
	"os"
	"slices"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// examplesPerEpoch is the approximate number of training pairs in SNLI.
const examplesPerEpoch = 500_000

// Config holds the hyperparameters of an experiment. The names used in the context and in parameter
// files are listed in Names.
type Config struct {
	DataPath string
	Layout   string

	// Lookup.
	MaxDefPerWord int
	EmbDim        int
	Dim           int
	DictPath      string
	Vocab         string
	Encoder       string

	EmbeddingPath string
	TrainEmb      bool

	// Definitions.
	VocabDef                string
	ComposeType             string
	TryLowercase            bool
	DisregardWordEmbeddings bool
	ExcludeTopK             int
	MaxDefLength            int
	DefDim                  int
	DefEmbDim               int
	CombinerDropout         float64
	CombinerDropoutType     string
	CombinerGating          string
	CombinerShortcut        bool
	ReaderType              string
	ShareDefLookup          bool
	CombinerBN              bool

	NumInputWords int
	Dropout       float64
	BatchSize     int
	LR            float64

	// Monitoring.
	MonitorParameters int
	MonFreqTrain      int
	SaveFreqBatches   int
	MonFreqValid      int
	NBatches          int
}

// Root returns the root configuration of the NLI experiments.
func Root() Config {
	return Config{
		DataPath: "/data/lisa/exp/jastrzes/dict_based_learning/data/snli/",
		Layout:   "snli",

		MaxDefPerWord: 100_000,
		EmbDim:        300,
		Dim:           300,
		Encoder:       "bilstm",
		TrainEmb:      true,

		TryLowercase:        true,
		ExcludeTopK:         -1,
		MaxDefLength:        50,
		DefDim:              100,
		DefEmbDim:           -1,
		CombinerDropoutType: "per_unit",
		CombinerGating:      "none",
		ReaderType:          "mean",

		NumInputWords: -1, // Size of the vocabulary.
		Dropout:       0.5,
		BatchSize:     32,
		LR:            0.0004,

		MonFreqTrain:    examplesPerEpoch / 32,
		SaveFreqBatches: examplesPerEpoch / 32,
		MonFreqValid:    examplesPerEpoch / 32,
		NBatches:        200 * (examplesPerEpoch / 32), // ~200 epochs of SNLI.
	}
}

// With returns a copy of the configuration modified by fn.
func (c Config) With(fn func(c *Config)) Config {
	fn(&c)
	return c
}

// param associates a configuration name to its field.
type param struct {
	name string
	ptr  any
}

// params lists the fields of c in a fixed order.
func (c *Config) params() []param {
	return []param{
		{"data_path", &c.DataPath},
		{"layout", &c.Layout},
		{"max_def_per_word", &c.MaxDefPerWord},
		{"emb_dim", &c.EmbDim},
		{"dim", &c.Dim},
		{"dict_path", &c.DictPath},
		{"vocab", &c.Vocab},
		{"encoder", &c.Encoder},
		{"embedding_path", &c.EmbeddingPath},
		{"train_emb", &c.TrainEmb},
		{"vocab_def", &c.VocabDef},
		{"compose_type", &c.ComposeType},
		{"try_lowercase", &c.TryLowercase},
		{"disregard_word_embeddings", &c.DisregardWordEmbeddings},
		{"exclude_top_k", &c.ExcludeTopK},
		{"max_def_length", &c.MaxDefLength},
		{"def_dim", &c.DefDim},
		{"def_emb_dim", &c.DefEmbDim},
		{"combiner_dropout", &c.CombinerDropout},
		{"combiner_dropout_type", &c.CombinerDropoutType},
		{"combiner_gating", &c.CombinerGating},
		{"combiner_shortcut", &c.CombinerShortcut},
		{"reader_type", &c.ReaderType},
		{"share_def_lookup", &c.ShareDefLookup},
		{"combiner_bn", &c.CombinerBN},
		{"num_input_words", &c.NumInputWords},
		{"dropout", &c.Dropout},
		{"batch_size", &c.BatchSize},
		{"lr", &c.LR},
		{"monitor_parameters", &c.MonitorParameters},
		{"mon_freq_train", &c.MonFreqTrain},
		{"save_freq_batches", &c.SaveFreqBatches},
		{"mon_freq_valid", &c.MonFreqValid},
		{"n_batches", &c.NBatches},
	}
}

// Names returns the names of all the configuration parameters.
func Names() []string {
	var c Config
	params := c.params()
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.name
	}
	return names
}

// Map returns the configuration as a map of name to value.
func (c Config) Map() map[string]any {
	params := c.params()
	m := make(map[string]any, len(params))
	for _, p := range params {
		m[p.name] = deref(p.ptr)
	}
	return m
}

func deref(ptr any) any {
	switch v := ptr.(type) {
	case *string:
		return *v
	case *int:
		return *v
	case *float64:
		return *v
	case *bool:
		return *v
	}
	panic(errors.Errorf("config: unsupported field type %T", ptr))
}

// SetParams sets every configuration parameter as a hyperparameter in the current scope of ctx.
func (c Config) SetParams(ctx *context.Context) {
	ctx.SetParams(c.Map())
}

// FromContext returns a copy of base with the fields overridden by the hyperparameters found in ctx.
// Parameters not set in ctx keep their value from base.
func FromContext(ctx *context.Context, base Config) Config {
	c := base
	for _, p := range c.params() {
		switch v := p.ptr.(type) {
		case *string:
			*v = context.GetParamOr(ctx, p.name, *v)
		case *int:
			*v = context.GetParamOr(ctx, p.name, *v)
		case *float64:
			*v = context.GetParamOr(ctx, p.name, *v)
		case *bool:
			*v = context.GetParamOr(ctx, p.name, *v)
		}
	}
	return c
}

// LoadParamsFile returns a copy of base overridden by the values in the JSON object stored in path.
// Keys must be configuration names (see Names): unknown keys and values of the wrong type are errors.
func LoadParamsFile(base Config, path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "failed to read parameters file %q", path)
	}
	var overrides map[string]json.RawMessage
	if err := json.Unmarshal(contents, &overrides); err != nil {
		return base, errors.Wrapf(err, "failed to parse parameters file %q", path)
	}
	c := base
	params := c.params()
	for key, raw := range overrides {
		idx := slices.IndexFunc(params, func(p param) bool { return p.name == key })
		if idx < 0 {
			return base, errors.Errorf("parameters file %q: unknown parameter %q", path, key)
		}
		if err := json.Unmarshal(raw, params[idx].ptr); err != nil {
			return base, errors.Wrapf(err, "parameters file %q: invalid value for %q", path, key)
		}
	}
	return c, nil
}
