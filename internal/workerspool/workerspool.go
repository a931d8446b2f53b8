// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs tasks in goroutines, limiting how many run at the same time.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. Tasks are started with Go, and Wait blocks until all of them finished.
type Pool struct {
	// maxParallelism is the limit of tasks running concurrently. If < 0 there is no limit.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
	wg         sync.WaitGroup
}

// New returns a Pool that runs at most maxParallelism tasks at a time.
// If maxParallelism is 0 runtime.NumCPU() is used, and if it is negative parallelism is unlimited.
func New(maxParallelism int) *Pool {
	if maxParallelism == 0 {
		maxParallelism = runtime.NumCPU()
	}
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// MaxParallelism returns the limit of tasks running concurrently, or -1 if unlimited.
func (p *Pool) MaxParallelism() int {
	if p.maxParallelism < 0 {
		return -1
	}
	return p.maxParallelism
}

// lockedIsFull returns whether all workers are in use.
//
// It must be called with Pool.mu acquired.
func (p *Pool) lockedIsFull() bool {
	return p.maxParallelism > 0 && p.numRunning >= p.maxParallelism
}

// Go waits until there is a worker available and runs task in a new goroutine.
func (p *Pool) Go(task func()) {
	p.wg.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.numRunning++
	go func() {
		defer p.wg.Done()
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}

// Wait blocks until all tasks started with Go have finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
