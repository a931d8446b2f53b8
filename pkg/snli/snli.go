// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package snli loads natural language inference pairs in the tab-separated layout of the SNLI corpus,
// and converts batches of them to tensors.
package snli

import (
	"iter"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/dictlearn/dictlearn/pkg/vocab"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Column names used from the SNLI files. Other columns are ignored.
const (
	LabelColumn      = "gold_label"
	PremiseColumn    = "sentence1"
	HypothesisColumn = "sentence2"
)

// NoConsensus is the gold label of pairs where annotators didn't agree. These pairs are skipped.
const NoConsensus = "-"

// Label of a pair.
type Label int

const (
	Entailment Label = iota
	Neutral
	Contradiction
	NumLabels = 3
)

var labelNames = []string{"entailment", "neutral", "contradiction"}

// String implements fmt.Stringer.
func (l Label) String() string {
	if l < 0 || int(l) >= len(labelNames) {
		return "invalid"
	}
	return labelNames[l]
}

// ParseLabel converts the textual gold label to a Label.
func ParseLabel(name string) (Label, error) {
	for i, labelName := range labelNames {
		if name == labelName {
			return Label(i), nil
		}
	}
	return -1, errors.Errorf("invalid SNLI label %q", name)
}

// Pair of tokenized sentences and their label.
type Pair struct {
	Label               Label
	Premise, Hypothesis []string
}

var reTokens = regexp.MustCompile(`[\p{L}\p{N}_]+(?:'[\p{L}]+)?|[^\p{L}\p{N}_\s]`)

// Tokenize splits a sentence into words and punctuation marks, optionally lower-casing it.
func Tokenize(sentence string, lowercase bool) []string {
	if lowercase {
		sentence = strings.ToLower(sentence)
	}
	return reTokens.FindAllString(sentence, -1)
}

// Load reads the pairs in the SNLI file in path. Pairs without a consensus label are skipped.
func Load(path string, lowercase bool) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SNLI file %q", path)
	}
	defer func() { _ = f.Close() }()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.WithDelimiter('\t'),
		dataframe.WithLazyQuotes(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil)) // Sentences like "NA" are text, not missing values.
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse SNLI file %q", path)
	}
	for _, column := range []string{LabelColumn, PremiseColumn, HypothesisColumn} {
		if !slices.Contains(df.Names(), column) {
			return nil, errors.Errorf("SNLI file %q has no column %q", path, column)
		}
	}
	numRows := df.Nrow()
	df = df.
		Select([]string{LabelColumn, PremiseColumn, HypothesisColumn}).
		Filter(dataframe.F{Colname: LabelColumn, Comparator: series.Neq, Comparando: NoConsensus})
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to select SNLI columns of %q", path)
	}

	labels := df.Col(LabelColumn).Records()
	premises := df.Col(PremiseColumn).Records()
	hypotheses := df.Col(HypothesisColumn).Records()
	pairs := make([]Pair, len(labels))
	for i, labelName := range labels {
		label, err := ParseLabel(labelName)
		if err != nil {
			return nil, errors.WithMessagef(err, "SNLI file %q", path)
		}
		pairs[i] = Pair{
			Label:      label,
			Premise:    Tokenize(premises[i], lowercase),
			Hypothesis: Tokenize(hypotheses[i], lowercase),
		}
	}
	klog.V(1).Infof("snli: loaded %d pairs from %q, skipped %d without consensus", len(pairs), path, numRows-len(pairs))
	return pairs, nil
}

// Batches yields consecutive batches of batchSize pairs. The last batch may be smaller.
func Batches(pairs []Pair, batchSize int) iter.Seq[[]Pair] {
	return func(yield func([]Pair) bool) {
		if batchSize <= 0 {
			return
		}
		for start := 0; start < len(pairs); start += batchSize {
			if !yield(pairs[start:min(start+batchSize, len(pairs))]) {
				return
			}
		}
	}
}

// Premises returns the premise of each pair.
func Premises(pairs []Pair) [][]string {
	sentences := make([][]string, len(pairs))
	for i, pair := range pairs {
		sentences[i] = pair.Premise
	}
	return sentences
}

// Hypotheses returns the hypothesis of each pair.
func Hypotheses(pairs []Pair) [][]string {
	sentences := make([][]string, len(pairs))
	for i, pair := range pairs {
		sentences[i] = pair.Hypothesis
	}
	return sentences
}

// Labels returns an int32 tensor shaped [batch] with the labels of the pairs.
func Labels(pairs []Pair) *tensors.Tensor {
	labels := make([]int32, len(pairs))
	for i, pair := range pairs {
		labels[i] = int32(pair.Label)
	}
	return tensors.FromValue(labels)
}

// EncodeSentences converts the sentences to an int32 tensor of token ids shaped [batch, maxLen], along
// with a float32 mask of the same shape that is 1 where there is a token.
//
// Sentences longer than maxLen are truncated. If maxLen <= 0 the length of the longest sentence is used.
// If topK > 0, words with an id >= topK are encoded as unknown.
func EncodeSentences(sentences [][]string, v *vocab.Vocabulary, maxLen, topK int) (tokens, mask *tensors.Tensor, err error) {
	if len(sentences) == 0 {
		return nil, nil, errors.New("no sentences to encode")
	}
	if v.UnkID < 0 {
		return nil, nil, errors.Errorf("vocabulary has no %q token", vocab.Unk)
	}
	if maxLen <= 0 {
		for _, sentence := range sentences {
			maxLen = max(maxLen, len(sentence))
		}
		maxLen = max(maxLen, 1)
	}
	tokensData := make([]int32, len(sentences)*maxLen)
	maskData := make([]float32, len(sentences)*maxLen)
	for i, sentence := range sentences {
		for j, word := range sentence[:min(len(sentence), maxLen)] {
			tokensData[i*maxLen+j] = int32(v.WordToIDTopK(word, topK))
			maskData[i*maxLen+j] = 1
		}
	}
	tokens = tensors.FromFlatDataAndDimensions(tokensData, len(sentences), maxLen)
	mask = tensors.FromFlatDataAndDimensions(maskData, len(sentences), maxLen)
	return
}
