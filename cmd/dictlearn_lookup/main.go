// dictlearn_lookup prints the definitions of words and phrases found in a dictionary, and optionally the
// definitions retrieved for whole sentences.
//
// Example:
//
//	$ dictlearn_lookup -dict=dict.json -summary "ice cream" cat
//	$ dictlearn_lookup -dict=dict.json -vocab=vocab.txt -retrieve "the cat sat"
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dictlearn/dictlearn/internal/tables"
	"github.com/dictlearn/dictlearn/pkg/dictionary"
	"github.com/dictlearn/dictlearn/pkg/retrieval"
	"github.com/dictlearn/dictlearn/pkg/vocab"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagDict     = flag.String("dict", "", "Path to the dictionary JSON file. Required.")
	flagVocab    = flag.String("vocab", "", "Path to the vocabulary file, used with -retrieve. If empty, a vocabulary is built from the dictionary definitions and the queries.")
	flagFallback = flag.String("fallback", "none", "What to do when a query is not in the dictionary: \"none\" or \"tokens\" (concatenate the definitions of each token).")
	flagSummary  = flag.Bool("summary", false, "Print a summary of the dictionary and vocabulary sizes.")
	flagRetrieve = flag.Bool("retrieve", false, "Treat each query as a sentence, and print the definitions retrieved for its words.")

	flagMaxDefLength   = flag.Int("max_def_length", 50, "With -retrieve: maximum definition length, including <bod> and <eod>. 0 for no limit.")
	flagMaxDefsPerWord = flag.Int("max_defs_per_word", 0, "With -retrieve: maximum number of definitions per word. 0 for no limit.")
	flagExcludeTopK    = flag.Int("exclude_top_k", 0, "With -retrieve: skip the words among the top-k of the vocabulary.")
	flagTooLong        = flag.String("too_long", "drop", "With -retrieve: \"drop\" or \"crop\" definitions longer than -max_def_length.")
	flagLowercase      = flag.Bool("lowercase", true, "With -retrieve: retry the lookup lower-cased if a word has no definitions.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagDict == "" {
		klog.Fatalf("Missing -dict flag. See 'dictlearn_lookup -help'.")
	}
	if flag.NArg() == 0 && !*flagSummary {
		klog.Fatalf("No queries given. See 'dictlearn_lookup -help'.")
	}
	if err := run(os.Stdout, flag.Args()); err != nil {
		klog.Fatalf("Failed: %+v", err)
	}
}

func run(w io.Writer, queries []string) error {
	fallback, err := dictionary.FallbackString(*flagFallback)
	if err != nil {
		return err
	}
	dict, err := dictionary.Load(*flagDict, dictionary.WithFallback(fallback))
	if err != nil {
		return err
	}

	var textVocab *vocab.Vocabulary
	if *flagVocab != "" {
		textVocab, err = vocab.Load(*flagVocab)
		if err != nil {
			return err
		}
	} else if *flagRetrieve || *flagSummary {
		textVocab = buildVocab(dict, queries)
	}

	if *flagSummary {
		printSummary(w, dict, textVocab)
	}
	if len(queries) > 0 {
		printDefinitions(w, dict, queries)
	}
	if *flagRetrieve {
		return printRetrieval(w, dict, textVocab, queries)
	}
	return nil
}

// buildVocab creates a vocabulary with all tokens of the definitions and of the queries.
func buildVocab(dict *dictionary.Dictionary, queries []string) *vocab.Vocabulary {
	var sentences [][]string
	for _, key := range dict.Keys() {
		sentences = append(sentences, dict.GetDefinitions(key)...)
	}
	for _, query := range queries {
		sentences = append(sentences, strings.Fields(query))
	}
	return vocab.Build(sentences, 0)
}

func printSummary(w io.Writer, dict *dictionary.Dictionary, textVocab *vocab.Vocabulary) {
	_, _ = fmt.Fprintln(w, tables.Title("Summary"))
	table := tables.New(lipgloss.Right, lipgloss.Left)
	table.Row("dictionary", *flagDict)
	table.Row("# entries", humanize.Comma(int64(dict.NumEntries())))
	table.Row("# definitions", humanize.Comma(int64(dict.NumDefinitions())))
	if dict.NumEntries() > 0 {
		table.Row("definitions / entry", humanize.FtoaWithDigits(float64(dict.NumDefinitions())/float64(dict.NumEntries()), 2))
	}
	table.Row("fallback", dict.Fallback().String())
	if textVocab != nil {
		table.Row("vocabulary size", humanize.Comma(int64(textVocab.Size())))
	}
	_, _ = fmt.Fprintln(w, table.Render())
}

func printDefinitions(w io.Writer, dict *dictionary.Dictionary, queries []string) {
	_, _ = fmt.Fprintln(w, tables.Title("Definitions"))
	table := tables.New(lipgloss.Left, lipgloss.Right, lipgloss.Left)
	table.Headers("Query", "#", "Definition")
	for _, query := range queries {
		defs := dict.GetDefinitions(query)
		if len(defs) == 0 {
			table.Row(query, "-", "(not found)")
			continue
		}
		for i, def := range defs {
			table.Row(query, fmt.Sprintf("%d", i+1), strings.Join(def, " "))
		}
	}
	_, _ = fmt.Fprintln(w, table.Render())
}

func printRetrieval(w io.Writer, dict *dictionary.Dictionary, textVocab *vocab.Vocabulary, queries []string) error {
	tooLong, err := retrieval.TooLongString(*flagTooLong)
	if err != nil {
		return err
	}
	retriever, err := retrieval.New(textVocab, dict, retrieval.Options{
		MaxDefLength:   *flagMaxDefLength,
		MaxDefsPerWord: *flagMaxDefsPerWord,
		ExcludeTopK:    *flagExcludeTopK,
		TooLong:        tooLong,
		TryLowercase:   *flagLowercase,
	})
	if err != nil {
		return err
	}
	batch := make([][]string, len(queries))
	for i, query := range queries {
		batch[i] = strings.Fields(query)
	}
	defs, defMap := retriever.Retrieve(batch)

	_, _ = fmt.Fprintln(w, tables.Title("Retrieved definitions"))
	table := tables.New(lipgloss.Right, lipgloss.Right, lipgloss.Left, lipgloss.Right, lipgloss.Left)
	table.Headers("Sentence", "Position", "Word", "Definition", "Tokens")
	for _, ref := range defMap {
		table.Row(
			fmt.Sprintf("%d", ref.Sentence),
			fmt.Sprintf("%d", ref.Position),
			batch[ref.Sentence][ref.Position],
			fmt.Sprintf("%d", ref.Definition),
			strings.Join(textVocab.Decode(defs[ref.Definition]), " "))
	}
	_, _ = fmt.Fprintln(w, table.Render())

	var numWords int
	for _, sentence := range batch {
		numWords += len(sentence)
	}
	padded, _, refs, err := retrieval.PrepareDefinitionBatch(defs, defMap)
	if errors.Is(err, retrieval.ErrNoDefinitions) {
		_, _ = fmt.Fprintf(w, "No definitions retrieved for %s words.\n", humanize.Comma(int64(numWords)))
		return nil
	} else if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%s of %s words covered; definitions batch %s, references %s\n",
		humanize.Comma(int64(retrieval.CoveredPositions(defMap))), humanize.Comma(int64(numWords)),
		padded.Shape(), refs.Shape())
	return nil
}
