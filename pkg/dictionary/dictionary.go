// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package dictionary holds a read-only mapping from words or phrases to their definitions, where each
// definition is a list of tokens.
//
// The on-disk format is a JSON object, mapping each key to a list of definitions:
//
//	{"a": [["b", "c"], ["d", "e"]], "d c": [["a", "b"]]}
//
// A Dictionary is immutable after construction, and can be used concurrently without locking.
package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Fallback defines what GetDefinitions does when the whole query is not a key of the dictionary.
type Fallback int

const (
	// FallbackNone returns no definitions.
	FallbackNone Fallback = iota

	// FallbackTokens splits the query on whitespace and concatenates the definitions of each of its tokens,
	// in the order they appear in the query. Tokens without definitions are skipped.
	FallbackTokens
)

// String implements fmt.Stringer.
func (f Fallback) String() string {
	switch f {
	case FallbackNone:
		return "none"
	case FallbackTokens:
		return "tokens"
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

// FallbackString converts the name of a fallback ("none" or "tokens") to its value.
func FallbackString(name string) (Fallback, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return FallbackNone, nil
	case "tokens":
		return FallbackTokens, nil
	}
	return FallbackNone, errors.Errorf("unknown dictionary fallback %q, valid values are \"none\" and \"tokens\"", name)
}

// Option configures a Dictionary.
type Option func(d *Dictionary)

// WithFallback sets the policy used when a query is not found. The default is FallbackNone.
func WithFallback(fallback Fallback) Option {
	return func(d *Dictionary) { d.fallback = fallback }
}

// Dictionary maps words and phrases to their definitions.
type Dictionary struct {
	entries  map[string][][]string
	fallback Fallback
}

// New creates a dictionary from the given entries, which are deep-copied.
func New(entries map[string][][]string, options ...Option) *Dictionary {
	d := &Dictionary{entries: make(map[string][][]string, len(entries))}
	for key, defs := range entries {
		d.entries[key] = copyDefinitions(defs)
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Load reads a dictionary saved as a JSON object of definitions.
func Load(path string, options ...Option) (*Dictionary, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dictionary from %q", path)
	}
	var entries map[string][][]string
	if err := json.Unmarshal(contents, &entries); err != nil {
		return nil, errors.Wrapf(err, "failed to parse dictionary %q", path)
	}
	if entries == nil {
		return nil, errors.Errorf("failed to parse dictionary %q: expected a JSON object, got null", path)
	}
	d := &Dictionary{entries: entries}
	for _, option := range options {
		option(d)
	}
	klog.V(1).Infof("dictionary: loaded %d entries from %q", len(entries), path)
	return d, nil
}

// Save writes the dictionary to path as a JSON object.
func (d *Dictionary) Save(path string) error {
	contents, err := json.Marshal(d.entries)
	if err != nil {
		return errors.Wrapf(err, "failed to encode dictionary")
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return errors.Wrapf(err, "failed to save dictionary to %q", path)
	}
	return nil
}

// Fallback returns the policy used when a query is not a key of the dictionary.
func (d *Dictionary) Fallback() Fallback { return d.fallback }

// GetDefinitions returns the definitions of query.
//
// The whole query is looked up first, so phrases like "ice cream" are matched as a unit. Runs of
// whitespace in the query are collapsed to a single space, and leading or trailing whitespace is ignored.
// If it is not present, the configured Fallback is applied. A query without definitions returns nil,
// it is not an error.
//
// The returned definitions are a copy, and can be modified by the caller.
func (d *Dictionary) GetDefinitions(query string) [][]string {
	if defs, found := d.entries[query]; found {
		return copyDefinitions(defs)
	}
	tokens := strings.Fields(query)
	if normalized := strings.Join(tokens, " "); normalized != query {
		if defs, found := d.entries[normalized]; found {
			return copyDefinitions(defs)
		}
	}
	if d.fallback != FallbackTokens || len(tokens) < 2 {
		return nil
	}
	var result [][]string
	for _, token := range tokens {
		result = append(result, copyDefinitions(d.entries[token])...)
	}
	return result
}

// Has returns whether the query is a key of the dictionary. The fallback policy is not used.
func (d *Dictionary) Has(query string) bool {
	_, found := d.entries[query]
	return found
}

// NumEntries returns the number of keys in the dictionary.
func (d *Dictionary) NumEntries() int { return len(d.entries) }

// Keys returns the sorted keys of the dictionary.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for key := range d.entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// NumDefinitions returns the total number of definitions over all keys.
func (d *Dictionary) NumDefinitions() int {
	var count int
	for _, defs := range d.entries {
		count += len(defs)
	}
	return count
}

func copyDefinitions(defs [][]string) [][]string {
	if defs == nil {
		return nil
	}
	result := make([][]string, len(defs))
	for i, def := range defs {
		result[i] = slices.Clone(def)
	}
	return result
}
