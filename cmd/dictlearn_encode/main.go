// dictlearn_encode runs the sentence encoder (word embeddings followed by a peephole LSTM) over the premises
// of an SNLI file, and reports the mean gate activations per batch, along with the fraction of words that
// have dictionary definitions.
//
// The weights are freshly initialized: it is a forward pass only, useful to inspect the data pipeline
// and the behavior of the gates for a configuration.
//
// Example:
//
//	$ dictlearn_encode -data=snli_1.0_dev.txt -dict=dict.json -config=baseline_3k -set="dim=32;emb_dim=16"
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dictlearn/dictlearn/internal/tables"
	"github.com/dictlearn/dictlearn/pkg/config"
	"github.com/dictlearn/dictlearn/pkg/dictionary"
	"github.com/dictlearn/dictlearn/pkg/ml/layers/peephole"
	"github.com/dictlearn/dictlearn/pkg/retrieval"
	"github.com/dictlearn/dictlearn/pkg/snli"
	"github.com/dictlearn/dictlearn/pkg/vocab"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagConfig      = flag.String("config", "baseline", "Name of the configuration to use, see -list.")
	flagList        = flag.Bool("list", false, "List the available configurations and exit.")
	flagParamsFile  = flag.String("params_file", "", "JSON file with configuration overrides, applied before -set.")
	flagData        = flag.String("data", "", "SNLI tab-separated file. Defaults to snli_1.0_dev.txt in the data_path of the configuration.")
	flagVocab       = flag.String("vocab", "", "Vocabulary file. Defaults to the \"vocab\" configuration; if both are empty it is built from the data.")
	flagDict        = flag.String("dict", "", "Dictionary JSON file. Defaults to the \"dict_path\" configuration; if both are empty definitions are not retrieved.")
	flagMaxLen      = flag.Int("max_len", 32, "Maximum number of tokens per sentence: longer sentences are truncated.")
	flagMaxBatches  = flag.Int("max_batches", 10, "Maximum number of batches to encode. 0 for all.")
	flagLowercase   = flag.Bool("lowercase", true, "Lower-case the sentences when tokenizing.")
	flagParallelism = flag.Int("parallelism", 0, "Number of goroutines used to retrieve definitions. 0 for the number of CPUs.")
)

// createDefaultContext returns a context with the hyperparameters of cfg and of the peephole cell.
func createDefaultContext(cfg config.Config) *context.Context {
	ctx := context.New()
	cfg.SetParams(ctx)
	ctx.SetParams(map[string]any{
		peephole.ParamActivation:     "tanh",
		peephole.ParamGateActivation: "sigmoid",
	})
	return ctx
}

func main() {
	klog.InitFlags(nil)
	settings := commandline.CreateContextSettingsFlag(createDefaultContext(config.Root()), "set")
	flag.Parse()

	registry := config.NLIESIM()
	if *flagList {
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return
	}
	cfg := must.M1(registry.Get(*flagConfig))
	if *flagParamsFile != "" {
		cfg = must.M1(config.LoadParamsFile(cfg, *flagParamsFile))
	}
	ctx := createDefaultContext(cfg)
	paramsSet, err := commandline.ParseContextSettings(ctx, *settings)
	if err != nil {
		klog.Fatalf("Failed to parse -set=%q: %+v", *settings, err)
	}
	cfg = config.FromContext(ctx, cfg)
	if len(paramsSet) > 0 {
		fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	dataPath := firstNonEmpty(*flagData, filepath.Join(cfg.DataPath, "snli_1.0_dev.txt"))
	pairs, err := snli.Load(dataPath, *flagLowercase)
	if err != nil {
		klog.Fatalf("Failed to load data: %+v", err)
	}
	if len(pairs) == 0 {
		klog.Fatalf("No pairs found in %q", dataPath)
	}

	var textVocab *vocab.Vocabulary
	if vocabPath := firstNonEmpty(*flagVocab, cfg.Vocab); vocabPath != "" {
		textVocab = must.M1(vocab.Load(vocabPath))
	} else {
		textVocab = vocab.Build(append(snli.Premises(pairs), snli.Hypotheses(pairs)...), 0)
		klog.Infof("Built vocabulary with %s words from %q", humanize.Comma(int64(textVocab.Size())), dataPath)
	}
	ctx.SetParam(ParamVocabSize, textVocab.Size())

	var batches [][]snli.Pair
	for batch := range snli.Batches(pairs, cfg.BatchSize) {
		if *flagMaxBatches > 0 && len(batches) >= *flagMaxBatches {
			break
		}
		batches = append(batches, batch)
	}

	coverage := retrieveDefinitions(cfg, textVocab, batches)
	report(ctx, cfg, textVocab, batches, coverage)
}

// retrieveDefinitions returns, for each batch, the fraction of the premise words with definitions,
// or nil if there is no dictionary configured.
func retrieveDefinitions(cfg config.Config, textVocab *vocab.Vocabulary, batches [][]snli.Pair) []float64 {
	dictPath := firstNonEmpty(*flagDict, cfg.DictPath)
	if dictPath == "" {
		return nil
	}
	dict := must.M1(dictionary.Load(dictPath))
	options := retrieval.Options{
		MaxDefLength:   cfg.MaxDefLength,
		MaxDefsPerWord: cfg.MaxDefPerWord,
		ExcludeTopK:    cfg.ExcludeTopK,
		TooLong:        retrieval.Drop,
		TryLowercase:   cfg.TryLowercase,
	}
	if cfg.VocabDef != "" {
		options.DefVocab = must.M1(vocab.Load(cfg.VocabDef))
	}
	retriever := must.M1(retrieval.New(textVocab, dict, options))

	sentences := make([][][]string, len(batches))
	for i, batch := range batches {
		sentences[i] = snli.Premises(batch)
	}
	results := retriever.RetrieveBatches(sentences, *flagParallelism)
	coverage := make([]float64, len(batches))
	for i, result := range results {
		var numWords int
		for _, sentence := range sentences[i] {
			numWords += len(sentence)
		}
		if numWords > 0 {
			coverage[i] = float64(retrieval.CoveredPositions(result.DefMap)) / float64(numWords)
		}
	}
	return coverage
}

func report(ctx *context.Context, cfg config.Config, textVocab *vocab.Vocabulary, batches [][]snli.Pair, coverage []float64) {
	backend := backends.MustNew()
	defer backend.Finalize()
	klog.Infof("Backend: %s", backend.Description())

	// Each distinct batch shape builds a new graph that reuses the same variables.
	exec := context.MustNewExec(backend, ctx.Checked(false), encoderGraph)
	defer exec.Finalize()

	table := tables.New(lipgloss.Right)
	table.Headers("Batch", "Pairs", "Words", "Coverage", "Input gate", "Forget gate", "Output gate", "|h|")
	bar := progressbar.NewOptions(len(batches),
		progressbar.OptionSetDescription("Encoding"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(commandline.ProgressbarStyle),
		progressbar.OptionClearOnFinish())
	for i, batch := range batches {
		premises := snli.Premises(batch)
		tokens, mask, err := snli.EncodeSentences(premises, textVocab, *flagMaxLen, cfg.NumInputWords)
		if err != nil {
			klog.Fatalf("Failed to encode batch %d: %+v", i, err)
		}
		outputs, err := exec.Exec(tokens, mask)
		if err != nil {
			klog.Fatalf("Failed to run the encoder on batch %d: %+v", i, err)
		}
		var numWords int
		for _, sentence := range premises {
			numWords += min(len(sentence), *flagMaxLen)
		}
		coverageStr := "-"
		if coverage != nil {
			coverageStr = fmt.Sprintf("%.1f%%", 100*coverage[i])
		}
		stat := func(idx int) string {
			return fmt.Sprintf("%.4f", tensors.ToScalar[float32](outputs[idx]))
		}
		table.Row(
			fmt.Sprintf("%d", i),
			humanize.Comma(int64(len(batch))),
			humanize.Comma(int64(numWords)),
			coverageStr,
			stat(StatInputGate), stat(StatForgetGate), stat(StatOutputGate), stat(StatLastState))
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Println(tables.Title(fmt.Sprintf("Encoder %q: dim=%d, emb_dim=%d, vocabulary=%s",
		cfg.Encoder, cfg.Dim, cfg.EmbDim, humanize.Comma(int64(textVocab.Size())))))
	fmt.Println(table.Render())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
