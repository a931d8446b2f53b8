// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

package vocab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	v := Build([][]string{
		{"the", "cat", "sat"},
		{"the", "dog", "sat"},
		{"the", "<unk>"},
	}, 0)
	want := []Entry{
		{Unk, 0}, {BOS, 0}, {EOS, 0}, {BOD, 0}, {EOD, 0},
		{"the", 3}, {"sat", 2}, {"cat", 1}, {"dog", 1},
	}
	assert.Equal(t, want, v.Entries())
	assert.Equal(t, 0, v.UnkID)
	assert.Equal(t, 1, v.BOSID)
	assert.Equal(t, 2, v.EOSID)
	assert.Equal(t, 3, v.BODID)
	assert.Equal(t, 4, v.EODID)
	assert.Equal(t, 9, v.Size())

	assert.Equal(t, 5, v.WordToID("the"))
	assert.Equal(t, v.UnkID, v.WordToID("bird"))
	assert.Equal(t, 6, v.WordToIDTopK("sat", 7))
	assert.Equal(t, v.UnkID, v.WordToIDTopK("cat", 7))
	assert.Equal(t, 7, v.WordToIDTopK("cat", 0))
	assert.Equal(t, 2, v.Frequency("sat"))
	assert.Equal(t, 0, v.Frequency("bird"))
	assert.True(t, v.Contains("dog"))
	assert.False(t, v.Contains("bird"))

	ids := v.Encode([]string{"the", "bird", "sat"})
	assert.Equal(t, []int{5, 0, 6}, ids)
	assert.Equal(t, []string{"the", Unk, "sat"}, v.Decode(ids))
	assert.Equal(t, Unk, v.IDToWord(-1))
	assert.Equal(t, Unk, v.IDToWord(100))

	topK := Build([][]string{{"a", "b", "b", "c", "c", "c"}}, 2)
	assert.Equal(t, []string{"c", "b"}, topK.Decode([]int{5, 6}))
	assert.Equal(t, 7, topK.Size())
	assert.False(t, topK.Contains("a"))
}

func TestSaveLoad(t *testing.T) {
	v := Build([][]string{{"x", "y", "y"}}, 0)
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, v.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, v.Entries(), loaded.Entries())
	assert.Equal(t, v.BODID, loaded.BODID)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
		return path
	}

	// No special tokens: their ids are -1 and unknown words map to -1.
	v, err := Load(write("plain.txt", "hello 10\n\nworld 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, v.Size())
	assert.Equal(t, -1, v.UnkID)
	assert.Equal(t, -1, v.EODID)
	assert.Equal(t, 1, v.WordToID("world"))
	assert.Equal(t, -1, v.WordToID("other"))

	// Special tokens take whatever position they have in the file.
	v, err = Load(write("special.txt", "hello 10\n<unk> 0\n<eod> 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, v.UnkID)
	assert.Equal(t, 2, v.EODID)
	assert.Equal(t, -1, v.BODID)

	_, err = Load(write("bad_count.txt", "hello ten\n"))
	require.Error(t, err)
	_, err = Load(write("bad_fields.txt", "hello\n"))
	require.Error(t, err)
	_, err = Load(write("repeated.txt", "a 1\na 2\n"))
	require.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}
