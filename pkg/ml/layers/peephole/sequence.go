// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

package peephole

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/pkg/errors"
)

// SequenceBuilder unrolls the cell over a sequence. Create it with Cell.Sequence, configure it and
// call Done.
//
// The graph grows linearly with the sequence length: each step is instantiated as its own nodes.
type SequenceBuilder struct {
	cell                        *Cell
	inputs, mask                *Node
	initialHidden, initialCells *Node
	reverse                     bool
}

// SequenceOutput holds the results of running the cell over a sequence.
type SequenceOutput struct {
	// States and Cells for every position, shaped [batch, sequence, dim].
	States, Cells *Node

	// LastState and LastCells after the final step, shaped [batch, dim].
	// For a reversed sequence, the final step is the one at position 0.
	LastState, LastCells *Node

	// Gates for every position, each shaped [batch, sequence, dim].
	Gates Gates
}

// Sequence creates a builder to apply the cell to inputs shaped [batch, sequence, 4*dim].
func (c *Cell) Sequence(inputs *Node) *SequenceBuilder {
	return &SequenceBuilder{cell: c, inputs: inputs}
}

// Mask sets which positions hold data, shaped [batch, sequence]. On positions where the mask is 0 the
// states are carried over unchanged.
func (b *SequenceBuilder) Mask(mask *Node) *SequenceBuilder {
	b.mask = mask
	return b
}

// InitialStates overrides the learned initial states, both shaped [batch, dim].
// Useful to chain the output of one sequence into another.
func (b *SequenceBuilder) InitialStates(hidden, cells *Node) *SequenceBuilder {
	b.initialHidden = hidden
	b.initialCells = cells
	return b
}

// Reverse configures the builder to run from the last position to the first. Outputs are still
// indexed by position.
func (b *SequenceBuilder) Reverse(reverse bool) *SequenceBuilder {
	b.reverse = reverse
	return b
}

// TryDone is like Done, but returns an error instead of panicking.
func (b *SequenceBuilder) TryDone() (out SequenceOutput, err error) {
	err = exceptions.TryCatch[error](func() { out = b.Done() })
	return
}

// Done applies the cell to the whole sequence.
//
// It panics with an error wrapping ErrDimensionMismatch if the shapes don't match.
func (b *SequenceBuilder) Done() SequenceOutput {
	c := b.cell
	inputs := b.inputs
	if inputs.Rank() != 3 || inputs.Shape().Dim(2) != NumGates*c.dim {
		panic(errors.Wrapf(ErrDimensionMismatch, "sequence inputs must be shaped [batch, sequence, 4*dim=%d], got %s",
			NumGates*c.dim, inputs.Shape()))
	}
	batchSize := inputs.Shape().Dim(0)
	seqLen := inputs.Shape().Dim(1)
	if seqLen == 0 {
		panic(errors.Wrapf(ErrDimensionMismatch, "sequence inputs must have at least one position, got %s",
			inputs.Shape()))
	}
	if b.mask != nil {
		if b.mask.Rank() != 2 || b.mask.Shape().Dim(0) != batchSize || b.mask.Shape().Dim(1) != seqLen {
			panic(errors.Wrapf(ErrDimensionMismatch, "sequence mask must be shaped [batch=%d, sequence=%d], got %s",
				batchSize, seqLen, b.mask.Shape()))
		}
	}

	hidden, cells := b.initialHidden, b.initialCells
	if hidden == nil || cells == nil {
		initialHidden, initialCells := c.InitialStates(inputs.Graph(), batchSize)
		if hidden == nil {
			hidden = initialHidden
		}
		if cells == nil {
			cells = initialCells
		}
	}

	states := make([]*Node, seqLen)
	allCells := make([]*Node, seqLen)
	inGates := make([]*Node, seqLen)
	forgetGates := make([]*Node, seqLen)
	outGates := make([]*Node, seqLen)
	for step := range seqLen {
		pos := step
		if b.reverse {
			pos = seqLen - 1 - step
		}
		x := Squeeze(Slice(inputs, AxisRange(), AxisElem(pos)), 1)
		var m *Node
		if b.mask != nil {
			m = Squeeze(Slice(b.mask, AxisRange(), AxisElem(pos)), 1)
		}
		out := c.Step(x, hidden, cells, m)
		hidden, cells = out.Hidden, out.Cells
		states[pos] = hidden
		allCells[pos] = cells
		inGates[pos] = out.Gates.Input
		forgetGates[pos] = out.Gates.Forget
		outGates[pos] = out.Gates.Output
	}

	return SequenceOutput{
		States:    Stack(states, 1),
		Cells:     Stack(allCells, 1),
		LastState: hidden,
		LastCells: cells,
		Gates: Gates{
			Input:  Stack(inGates, 1),
			Forget: Stack(forgetGates, 1),
			Output: Stack(outGates, 1),
		},
	}
}
