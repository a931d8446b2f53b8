// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package retrieval looks up the dictionary definitions of the words of a batch of sentences, and
// converts them to padded tensors that can be fed to a definition reader.
//
// Each distinct word of a batch is looked up once: its definitions are stored once in the batch, and
// every position where the word appears references them through a DefRef.
package retrieval

import (
	"strings"

	"github.com/dictlearn/dictlearn/pkg/dictionary"
	"github.com/dictlearn/dictlearn/pkg/vocab"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// TooLong defines what to do with definitions longer than Options.MaxDefLength.
type TooLong int

const (
	// Drop definitions that are too long.
	Drop TooLong = iota

	// Crop definitions that are too long: the first tokens are kept and the last one is replaced
	// by the end-of-definition token.
	Crop
)

// TooLongString converts "drop" or "crop" to its TooLong value.
func TooLongString(name string) (TooLong, error) {
	switch strings.ToLower(name) {
	case "drop":
		return Drop, nil
	case "crop":
		return Crop, nil
	}
	return Drop, errors.Errorf("invalid value %q for too long definitions, valid values are \"drop\" and \"crop\"", name)
}

// String implements fmt.Stringer.
func (t TooLong) String() string {
	if t == Crop {
		return "crop"
	}
	return "drop"
}

// ErrNoDefinitions is returned by PrepareDefinitionBatch when there is nothing to batch.
var ErrNoDefinitions = errors.New("retrieval: no definitions")

// Options of a Retriever. Zero values disable the corresponding limit.
type Options struct {
	// MaxDefLength is the maximum length of a definition, counting the begin and end of definition tokens.
	MaxDefLength int

	// MaxDefsPerWord is the maximum number of definitions used for each word.
	MaxDefsPerWord int

	// ExcludeTopK skips the words whose id in the text vocabulary is smaller than ExcludeTopK: the most
	// frequent words usually don't need definitions. Unknown words are never skipped.
	ExcludeTopK int

	// TooLong selects what happens with definitions longer than MaxDefLength.
	TooLong TooLong

	// TryLowercase retries the lookup with the lower-cased word, if the word has no definitions.
	TryLowercase bool

	// DefVocab encodes the tokens of the definitions. If nil, the text vocabulary is used.
	DefVocab *vocab.Vocabulary
}

// DefRef links a position of a sentence in the batch to one of the retrieved definitions.
type DefRef struct {
	Sentence, Position, Definition int
}

// Retriever retrieves definitions for batches of sentences. It is safe for concurrent use.
type Retriever struct {
	textVocab, defVocab *vocab.Vocabulary
	dict                *dictionary.Dictionary
	options             Options
}

// New creates a Retriever. The definition vocabulary (options.DefVocab or textVocab) must contain the
// begin and end of definition tokens.
func New(textVocab *vocab.Vocabulary, dict *dictionary.Dictionary, options Options) (*Retriever, error) {
	if textVocab == nil || dict == nil {
		return nil, errors.New("retrieval: text vocabulary and dictionary are required")
	}
	defVocab := options.DefVocab
	if defVocab == nil {
		defVocab = textVocab
	}
	if defVocab.BODID < 0 || defVocab.EODID < 0 {
		return nil, errors.Errorf("retrieval: definition vocabulary must contain %q and %q", vocab.BOD, vocab.EOD)
	}
	if options.MaxDefLength != 0 && options.MaxDefLength < 2 {
		return nil, errors.Errorf("retrieval: MaxDefLength must be at least 2 (to fit %s and %s), got %d",
			vocab.BOD, vocab.EOD, options.MaxDefLength)
	}
	return &Retriever{textVocab: textVocab, defVocab: defVocab, dict: dict, options: options}, nil
}

// Options returns the options of the Retriever.
func (r *Retriever) Options() Options { return r.options }

// Excluded returns whether word is skipped because it is among the ExcludeTopK most frequent words.
func (r *Retriever) Excluded(word string) bool {
	if r.options.ExcludeTopK <= 0 {
		return false
	}
	id := r.textVocab.WordToID(word)
	return id >= 0 && id < r.options.ExcludeTopK && id != r.textVocab.UnkID
}

// Retrieve looks up the definitions of the words in batch, returning the definitions encoded with the
// definition vocabulary (each one starting with <bod> and ending with <eod>), and the references from
// positions of the batch to the definitions.
func (r *Retriever) Retrieve(batch [][]string) (defs [][]int, defMap []DefRef) {
	wordDefs := make(map[string][]int)
	for seqIdx, sentence := range batch {
		for pos, word := range sentence {
			if r.Excluded(word) {
				continue
			}
			indices, found := wordDefs[word]
			if !found {
				for _, def := range r.lookup(word) {
					encoded, ok := r.encode(def)
					if !ok {
						continue
					}
					indices = append(indices, len(defs))
					defs = append(defs, encoded)
				}
				wordDefs[word] = indices
			}
			for _, defIdx := range indices {
				defMap = append(defMap, DefRef{Sentence: seqIdx, Position: pos, Definition: defIdx})
			}
		}
	}
	return
}

func (r *Retriever) lookup(word string) [][]string {
	defs := r.dict.GetDefinitions(word)
	if len(defs) == 0 && r.options.TryLowercase {
		if lower := strings.ToLower(word); lower != word {
			defs = r.dict.GetDefinitions(lower)
		}
	}
	if r.options.MaxDefsPerWord > 0 && len(defs) > r.options.MaxDefsPerWord {
		defs = defs[:r.options.MaxDefsPerWord]
	}
	return defs
}

// encode returns the definition converted to ids, or false if it should be dropped.
func (r *Retriever) encode(def []string) ([]int, bool) {
	encoded := make([]int, 0, len(def)+2)
	encoded = append(encoded, r.defVocab.BODID)
	encoded = append(encoded, r.defVocab.Encode(def)...)
	encoded = append(encoded, r.defVocab.EODID)
	maxLen := r.options.MaxDefLength
	if maxLen > 0 && len(encoded) > maxLen {
		if r.options.TooLong == Drop {
			return nil, false
		}
		encoded = encoded[:maxLen]
		encoded[maxLen-1] = r.defVocab.EODID
	}
	return encoded, true
}

// CoveredPositions returns the number of distinct positions of the batch with at least one definition.
func CoveredPositions(defMap []DefRef) int {
	type position struct{ sentence, pos int }
	seen := make(map[position]struct{}, len(defMap))
	for _, ref := range defMap {
		seen[position{ref.Sentence, ref.Position}] = struct{}{}
	}
	return len(seen)
}

// PrepareDefinitionBatch pads the definitions to the length of the longest one. It returns:
//
//   - padded: int32 tensor shaped [numDefs, maxLen], padded with 0.
//   - mask: float32 tensor with the same shape, 1 where padded holds a token.
//   - refs: int32 tensor shaped [numRefs, 3] with the (sentence, position, definition) of each reference.
//
// It returns ErrNoDefinitions if there are no definitions or no references, since the tensors
// would be empty.
func PrepareDefinitionBatch(defs [][]int, defMap []DefRef) (padded, mask, refs *tensors.Tensor, err error) {
	if len(defs) == 0 || len(defMap) == 0 {
		err = ErrNoDefinitions
		return
	}
	maxLen := 0
	for _, def := range defs {
		maxLen = max(maxLen, len(def))
	}
	if maxLen == 0 {
		err = errors.Wrap(ErrNoDefinitions, "all definitions are empty")
		return
	}
	paddedData := make([]int32, len(defs)*maxLen)
	maskData := make([]float32, len(defs)*maxLen)
	for i, def := range defs {
		for j, id := range def {
			paddedData[i*maxLen+j] = int32(id)
			maskData[i*maxLen+j] = 1
		}
	}
	refsData := make([]int32, 0, 3*len(defMap))
	for _, ref := range defMap {
		if ref.Definition < 0 || ref.Definition >= len(defs) {
			err = errors.Errorf("definition reference %+v out of range, there are %d definitions", ref, len(defs))
			return
		}
		refsData = append(refsData, int32(ref.Sentence), int32(ref.Position), int32(ref.Definition))
	}
	padded = tensors.FromFlatDataAndDimensions(paddedData, len(defs), maxLen)
	mask = tensors.FromFlatDataAndDimensions(maskData, len(defs), maxLen)
	refs = tensors.FromFlatDataAndDimensions(refsData, len(defMap), 3)
	return
}
