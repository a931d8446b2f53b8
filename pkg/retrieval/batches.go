// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

package retrieval

import "github.com/dictlearn/dictlearn/internal/workerspool"

// Result of retrieving the definitions of one batch.
type Result struct {
	Defs   [][]int
	DefMap []DefRef
}

// RetrieveBatches retrieves the definitions of several batches concurrently, using at most
// parallelism goroutines (0 for the number of CPUs). Results are in the same order as batches.
func (r *Retriever) RetrieveBatches(batches [][][]string, parallelism int) []Result {
	results := make([]Result, len(batches))
	pool := workerspool.New(parallelism)
	for i, batch := range batches {
		pool.Go(func() {
			results[i].Defs, results[i].DefMap = r.Retrieve(batch)
		})
	}
	pool.Wait()
	return results
}
