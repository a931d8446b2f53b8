// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package vocab maps words to integer ids and back, keeping the frequency of each word.
//
// The file format has one entry per line, with the word and its count separated by whitespace.
// The id of a word is its line number (starting at 0). The special tokens (see Unk, BOS, EOS, BOD and EOD)
// are regular entries of the file, usually listed first.
package vocab

import (
	"bufio"
	"cmp"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Special tokens.
const (
	Unk = "<unk>"
	BOS = "<bos>"
	EOS = "<eos>"
	BOD = "<bod>" // Beginning of definition.
	EOD = "<eod>" // End of definition.
)

// SpecialTokens in the order Build places them.
var SpecialTokens = []string{Unk, BOS, EOS, BOD, EOD}

// Entry of the vocabulary: a word and its frequency.
type Entry struct {
	Word  string
	Count int
}

// Vocabulary is an immutable mapping of words to ids. It is safe for concurrent use.
type Vocabulary struct {
	entries []Entry
	ids     map[string]int

	// UnkID, BOSID, EOSID, BODID and EODID are the ids of the special tokens, or -1 if they are not
	// part of the vocabulary.
	UnkID, BOSID, EOSID, BODID, EODID int
}

// New creates a vocabulary with the given entries, where each entry's id is its index.
// It returns an error if a word is repeated.
func New(entries []Entry) (*Vocabulary, error) {
	v := &Vocabulary{
		entries: slices.Clone(entries),
		ids:     make(map[string]int, len(entries)),
	}
	for id, entry := range v.entries {
		if prev, found := v.ids[entry.Word]; found {
			return nil, errors.Errorf("vocabulary word %q repeated with ids %d and %d", entry.Word, prev, id)
		}
		v.ids[entry.Word] = id
	}
	specialID := func(token string) int {
		if id, found := v.ids[token]; found {
			return id
		}
		return -1
	}
	v.UnkID = specialID(Unk)
	v.BOSID = specialID(BOS)
	v.EOSID = specialID(EOS)
	v.BODID = specialID(BOD)
	v.EODID = specialID(EOD)
	return v, nil
}

// Build creates a vocabulary from the tokenized sentences: the special tokens come first (with count 0),
// followed by the words sorted by decreasing frequency, ties broken alphabetically.
//
// If topK > 0, only the topK most frequent words are kept (not counting the special tokens).
func Build(sentences [][]string, topK int) *Vocabulary {
	counts := make(map[string]int)
	for _, sentence := range sentences {
		for _, word := range sentence {
			counts[word]++
		}
	}
	for _, token := range SpecialTokens {
		delete(counts, token)
	}
	words := make([]Entry, 0, len(counts))
	for word, count := range counts {
		words = append(words, Entry{word, count})
	}
	slices.SortFunc(words, func(a, b Entry) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Word, b.Word)
	})
	if topK > 0 && len(words) > topK {
		words = words[:topK]
	}
	entries := make([]Entry, 0, len(SpecialTokens)+len(words))
	for _, token := range SpecialTokens {
		entries = append(entries, Entry{Word: token})
	}
	entries = append(entries, words...)
	v, err := New(entries)
	if err != nil {
		// Words are unique by construction.
		panic(err)
	}
	return v
}

// Load reads a vocabulary file with one "word count" pair per line. Empty lines are ignored.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary %q", path)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, errors.Errorf("vocabulary %q line %d: expected \"word count\", got %q", path, lineNum, line)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "vocabulary %q line %d: invalid count", path, lineNum)
		}
		entries = append(entries, Entry{parts[0], count})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary %q", path)
	}
	v, err := New(entries)
	if err != nil {
		return nil, errors.WithMessagef(err, "vocabulary %q", path)
	}
	klog.V(1).Infof("vocab: loaded %d words from %q", v.Size(), path)
	return v, nil
}

// Save writes the vocabulary in the format read by Load.
func (v *Vocabulary) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create vocabulary file %q", path)
	}
	w := bufio.NewWriter(f)
	for _, entry := range v.entries {
		if _, err = fmt.Fprintf(w, "%s %d\n", entry.Word, entry.Count); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write vocabulary file %q", path)
	}
	return nil
}

// Size returns the number of entries, including special tokens.
func (v *Vocabulary) Size() int { return len(v.entries) }

// Entries returns a copy of the entries, indexed by id.
func (v *Vocabulary) Entries() []Entry { return slices.Clone(v.entries) }

// WordToID returns the id of word, or UnkID if the word is not in the vocabulary.
func (v *Vocabulary) WordToID(word string) int {
	if id, found := v.ids[word]; found {
		return id
	}
	return v.UnkID
}

// WordToIDTopK is like WordToID, but words with id >= k are also mapped to UnkID.
// If k <= 0 it is the same as WordToID.
func (v *Vocabulary) WordToIDTopK(word string, k int) int {
	id := v.WordToID(word)
	if k > 0 && id >= k {
		return v.UnkID
	}
	return id
}

// Contains returns whether word is in the vocabulary.
func (v *Vocabulary) Contains(word string) bool {
	_, found := v.ids[word]
	return found
}

// IDToWord returns the word with the given id, or Unk if id is out of range.
func (v *Vocabulary) IDToWord(id int) string {
	if id < 0 || id >= len(v.entries) {
		return Unk
	}
	return v.entries[id].Word
}

// Frequency returns the count of word, or 0 if it is not in the vocabulary.
func (v *Vocabulary) Frequency(word string) int {
	if id, found := v.ids[word]; found {
		return v.entries[id].Count
	}
	return 0
}

// Encode converts words to ids, using UnkID for unknown words.
func (v *Vocabulary) Encode(words []string) []int {
	ids := make([]int, len(words))
	for i, word := range words {
		ids[i] = v.WordToID(word)
	}
	return ids
}

// Decode converts ids to words.
func (v *Vocabulary) Decode(ids []int) []string {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = v.IDToWord(id)
	}
	return words
}
