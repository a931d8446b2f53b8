// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"testing"

	"github.com/dictlearn/dictlearn/pkg/dictionary"
	"github.com/dictlearn/dictlearn/pkg/vocab"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ids: <unk>=0 <bos>=1 <eos>=2 <bod>=3 <eod>=4 the=5 cat=6 sat=7 a=8 pet=9 animal=10
func testVocab(t *testing.T) *vocab.Vocabulary {
	v, err := vocab.New([]vocab.Entry{
		{Word: vocab.Unk, Count: 0}, {Word: vocab.BOS, Count: 0}, {Word: vocab.EOS, Count: 0}, {Word: vocab.BOD, Count: 0}, {Word: vocab.EOD, Count: 0},
		{Word: "the", Count: 100}, {Word: "cat", Count: 50}, {Word: "sat", Count: 40}, {Word: "a", Count: 30}, {Word: "pet", Count: 10}, {Word: "animal", Count: 5},
	})
	require.NoError(t, err)
	return v
}

func testDict() *dictionary.Dictionary {
	return dictionary.New(map[string][][]string{
		"the": {{"a"}},
		"cat": {{"a", "pet"}, {"a", "small", "animal"}, {"the", "animal"}},
		"sat": {{"a", "pet", "animal", "the", "cat"}},
	})
}

func TestRetrieve(t *testing.T) {
	r, err := New(testVocab(t), testDict(), Options{})
	require.NoError(t, err)
	defs, defMap := r.Retrieve([][]string{{"the", "cat"}, {"cat", "dog"}})
	assert.Equal(t, [][]int{
		{3, 8, 4},        // the: a
		{3, 8, 9, 4},     // cat: a pet
		{3, 8, 0, 10, 4}, // cat: a small animal ("small" is unknown)
		{3, 5, 10, 4},    // cat: the animal
	}, defs)
	assert.Equal(t, []DefRef{
		{0, 0, 0},
		{0, 1, 1}, {0, 1, 2}, {0, 1, 3},
		{1, 0, 1}, {1, 0, 2}, {1, 0, 3},
	}, defMap)
	assert.Equal(t, 3, CoveredPositions(defMap))
}

func TestRetrieveOptions(t *testing.T) {
	textVocab := testVocab(t)
	batch := [][]string{{"the", "cat", "sat"}}

	t.Run("exclude top k", func(t *testing.T) {
		r, err := New(textVocab, testDict(), Options{ExcludeTopK: 6})
		require.NoError(t, err)
		_, defMap := r.Retrieve(batch)
		for _, ref := range defMap {
			assert.NotEqual(t, 0, ref.Position, "\"the\" has id 5 and should be excluded")
		}
		assert.True(t, r.Excluded("the"))
		assert.False(t, r.Excluded("cat"))
		// Unknown words map to <unk> (id 0), but are not excluded.
		assert.False(t, r.Excluded("dog"))
	})

	t.Run("max defs per word", func(t *testing.T) {
		r, err := New(textVocab, testDict(), Options{MaxDefsPerWord: 1})
		require.NoError(t, err)
		defs, defMap := r.Retrieve([][]string{{"cat"}})
		assert.Equal(t, [][]int{{3, 8, 9, 4}}, defs)
		assert.Equal(t, []DefRef{{0, 0, 0}}, defMap)
	})

	t.Run("drop too long", func(t *testing.T) {
		r, err := New(textVocab, testDict(), Options{MaxDefLength: 4, TooLong: Drop})
		require.NoError(t, err)
		defs, defMap := r.Retrieve(batch)
		assert.Equal(t, [][]int{{3, 8, 4}, {3, 8, 9, 4}, {3, 5, 10, 4}}, defs)
		for _, ref := range defMap {
			assert.NotEqual(t, 2, ref.Position, "\"sat\" definition is too long")
		}
	})

	t.Run("crop too long", func(t *testing.T) {
		r, err := New(textVocab, testDict(), Options{MaxDefLength: 4, TooLong: Crop})
		require.NoError(t, err)
		defs, _ := r.Retrieve([][]string{{"sat"}})
		assert.Equal(t, [][]int{{3, 8, 9, 4}}, defs)
	})

	t.Run("try lowercase", func(t *testing.T) {
		r, err := New(textVocab, testDict(), Options{})
		require.NoError(t, err)
		defs, _ := r.Retrieve([][]string{{"Cat"}})
		assert.Empty(t, defs)

		r, err = New(textVocab, testDict(), Options{TryLowercase: true})
		require.NoError(t, err)
		defs, defMap := r.Retrieve([][]string{{"Cat"}})
		assert.Len(t, defs, 3)
		assert.Len(t, defMap, 3)
	})

	t.Run("definition vocabulary", func(t *testing.T) {
		defVocab := vocab.Build([][]string{{"a", "a", "pet"}}, 0) // a=5, pet=6
		r, err := New(textVocab, testDict(), Options{DefVocab: defVocab, MaxDefsPerWord: 1})
		require.NoError(t, err)
		defs, _ := r.Retrieve([][]string{{"cat"}})
		assert.Equal(t, [][]int{{defVocab.BODID, 5, 6, defVocab.EODID}}, defs)
	})
}

func TestNewErrors(t *testing.T) {
	noSpecials, err := vocab.New([]vocab.Entry{{Word: "the", Count: 1}})
	require.NoError(t, err)
	_, err = New(noSpecials, testDict(), Options{})
	require.Error(t, err)
	_, err = New(testVocab(t), testDict(), Options{MaxDefLength: 1})
	require.Error(t, err)
	_, err = New(nil, testDict(), Options{})
	require.Error(t, err)

	for _, name := range []string{"drop", "crop"} {
		tooLong, err := TooLongString(name)
		require.NoError(t, err)
		assert.Equal(t, name, tooLong.String())
	}
	_, err = TooLongString("truncate")
	require.Error(t, err)
}

func TestPrepareDefinitionBatch(t *testing.T) {
	defs := [][]int{{3, 8, 4}, {3, 8, 9, 10, 4}}
	defMap := []DefRef{{0, 1, 0}, {1, 2, 1}}
	padded, mask, refs, err := PrepareDefinitionBatch(defs, defMap)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, padded.Shape().Dimensions)
	assert.Equal(t, []int32{3, 8, 4, 0, 0, 3, 8, 9, 10, 4}, tensors.MustCopyFlatData[int32](padded))
	assert.Equal(t, []float32{1, 1, 1, 0, 0, 1, 1, 1, 1, 1}, tensors.MustCopyFlatData[float32](mask))
	assert.Equal(t, []int{2, 3}, refs.Shape().Dimensions)
	assert.Equal(t, []int32{0, 1, 0, 1, 2, 1}, tensors.MustCopyFlatData[int32](refs))

	_, _, _, err = PrepareDefinitionBatch(nil, nil)
	require.ErrorIs(t, err, ErrNoDefinitions)
	_, _, _, err = PrepareDefinitionBatch(defs, []DefRef{{0, 0, 2}})
	require.Error(t, err)
}

func TestRetrieveBatches(t *testing.T) {
	r, err := New(testVocab(t), testDict(), Options{})
	require.NoError(t, err)
	batches := [][][]string{
		{{"the", "cat"}},
		{{"sat"}, {"dog"}},
		{{"cat", "cat"}},
		{},
	}
	results := r.RetrieveBatches(batches, 2)
	require.Len(t, results, len(batches))
	for i, batch := range batches {
		defs, defMap := r.Retrieve(batch)
		assert.Equal(t, defs, results[i].Defs)
		assert.Equal(t, defMap, results[i].DefMap)
	}
}
