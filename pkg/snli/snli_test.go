// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

package snli

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/dictlearn/dictlearn/pkg/vocab"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTSV = "gold_label\tsentence1_binary_parse\tsentence1\tsentence2\tpairID\n" +
	"neutral\t( A person )\tA person on a horse jumps.\tA person is training his horse.\t1\n" +
	"-\t( Children )\tChildren smiling.\tThey are smiling.\t2\n" +
	"contradiction\t( A person )\tA person on a horse jumps.\tA person is at a diner.\t3\n" +
	"entailment\t( Kids )\tKids aren't playing.\tThe kids are quiet, today.\t4\n"

func writeTestFile(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "snli.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	pairs, err := Load(writeTestFile(t, testTSV), true)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, Neutral, pairs[0].Label)
	assert.Equal(t, Contradiction, pairs[1].Label)
	assert.Equal(t, Entailment, pairs[2].Label)
	assert.Equal(t, []string{"a", "person", "on", "a", "horse", "jumps", "."}, pairs[0].Premise)
	assert.Equal(t, []string{"kids", "aren't", "playing", "."}, pairs[2].Premise)
	assert.Equal(t, []string{"the", "kids", "are", "quiet", ",", "today", "."}, pairs[2].Hypothesis)

	cased, err := Load(writeTestFile(t, testTSV), false)
	require.NoError(t, err)
	assert.Equal(t, "A", cased[0].Premise[0])
}

func TestLoadMissingValueMarkers(t *testing.T) {
	contents := "gold_label\tsentence1\tsentence2\n" +
		"neutral\tNA\tNaN\n" +
		"entailment\t<nil>\tA dog.\n"
	pairs, err := Load(writeTestFile(t, contents), false)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, []string{"NA"}, pairs[0].Premise)
	assert.Equal(t, []string{"NaN"}, pairs[0].Hypothesis)
	assert.Equal(t, []string{"<", "nil", ">"}, pairs[1].Premise)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"), true)
	require.Error(t, err)
	_, err = Load(writeTestFile(t, "gold_label\tsentence1\nneutral\tA dog.\n"), true)
	require.Error(t, err)
	_, err = Load(writeTestFile(t, "gold_label\tsentence1\tsentence2\nmaybe\tA dog.\tA cat.\n"), true)
	require.Error(t, err)
}

func TestLabels(t *testing.T) {
	for _, label := range []Label{Entailment, Neutral, Contradiction} {
		parsed, err := ParseLabel(label.String())
		require.NoError(t, err)
		assert.Equal(t, label, parsed)
	}
	_, err := ParseLabel(NoConsensus)
	require.Error(t, err)
	pairs := []Pair{{Label: Contradiction}, {Label: Entailment}}
	assert.Equal(t, []int32{2, 0}, tensors.MustCopyFlatData[int32](Labels(pairs)))
}

func TestBatches(t *testing.T) {
	pairs := make([]Pair, 5)
	var sizes []int
	for batch := range Batches(pairs, 2) {
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Empty(t, slices.Collect(Batches(pairs, 0)))

	// Early break.
	count := 0
	for range Batches(pairs, 1) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestEncodeSentences(t *testing.T) {
	v := vocab.Build([][]string{{"a", "a", "a", "dog", "dog", "runs"}}, 0) // a=5 dog=6 runs=7
	sentences := [][]string{{"a", "dog", "runs"}, {"a", "cat"}}

	tokens, mask, err := EncodeSentences(sentences, v, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, tokens.Shape().Dimensions)
	assert.Equal(t, []int32{5, 6, 7, 5, 0, 0}, tensors.MustCopyFlatData[int32](tokens))
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 0}, tensors.MustCopyFlatData[float32](mask))

	tokens, mask, err = EncodeSentences(sentences, v, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 6, 5, 0}, tensors.MustCopyFlatData[int32](tokens))
	assert.Equal(t, []float32{1, 1, 1, 1}, tensors.MustCopyFlatData[float32](mask))

	_, _, err = EncodeSentences(nil, v, 2, 0)
	require.Error(t, err)
}
