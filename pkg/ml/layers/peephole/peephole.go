// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package peephole implements an LSTM transition with diagonal "peephole" connections from the cells
// to the gates, as described in [1] and [2].
//
// Unlike package lstm, the inputs are expected to be already projected to 4 times the hidden dimension,
// laid out contiguously in the order: input gate, forget gate, cell candidate and output gate.
// The recurrent projection of the previous hidden state is added to them before the gates are computed.
//
// The input and forget gates peek at the cells of the previous step, while the output gate peeks at the
// cells just computed. All peephole weights are diagonal (vectors multiplied element-wise).
//
// Besides the next hidden state and cells, Step returns the gate activations, for inspection.
//
// [1] Gers, Schraudolph & Schmidhuber, "Learning precise timing with LSTM recurrent networks", JMLR 3 (2003).
// [2] Graves, "Generating sequences with recurrent neural networks", arXiv:1308.0850 (2013).
package peephole

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

const (
	// ParamActivation context hyperparameter overrides the main activation of the cell (default "tanh").
	// See activations.FromName for valid values.
	ParamActivation = "peephole_activation"

	// ParamGateActivation context hyperparameter overrides the activation of the gates (default "sigmoid").
	ParamGateActivation = "peephole_gate_activation"

	// NumGates is the number of dim-sized chunks the inputs are split into.
	NumGates = 4
)

// Variable names used when the weights are created in a context.
const (
	VarState        = "W_state"
	VarCellToIn     = "W_cell_to_in"
	VarCellToForget = "W_cell_to_forget"
	VarCellToOut    = "W_cell_to_out"
	VarInitialState = "initial_state"
	VarInitialCells = "initial_cells"
)

// ErrDimensionMismatch is wrapped by the errors raised (panicked during graph building) when the
// operands of the cell don't have the expected shapes.
var ErrDimensionMismatch = errors.New("peephole: dimension mismatch")

// Weights of the cell. All of them are graph nodes in the same graph.
type Weights struct {
	// State is the recurrent weight, shaped [dim, 4*dim].
	State *Node

	// CellToIn, CellToForget and CellToOut are the peephole (diagonal) weights, shaped [dim].
	CellToIn, CellToForget, CellToOut *Node

	// InitialState and InitialCells seed the recurrence, shaped [dim]. If nil, zeros are used.
	InitialState, InitialCells *Node
}

// Gates holds the gate activations of a step (shaped [batch, dim]) or of a sequence
// (shaped [batch, sequence, dim]).
type Gates struct {
	Input, Forget, Output *Node
}

// StepOutput is the result of one transition of the cell.
type StepOutput struct {
	// Hidden and Cells are the next states, shaped [batch, dim].
	Hidden, Cells *Node

	// Gates activations, before any masking.
	Gates Gates
}

// Cell holds the configuration of a peephole LSTM cell. Create it with New or NewWithWeights.
type Cell struct {
	ctx   *context.Context
	dtype dtypes.DType
	dim   int

	activation, gateActivation activations.Type

	weights      *Weights
	weightsGraph *Graph
}

// New creates a peephole LSTM cell of the given dimension, whose weights are variables created in ctx
// (in the current scope), the first time they are needed in a graph.
//
// The recurrent and peephole weights use the context initializer, and the initial states start as zeros.
func New(ctx *context.Context, dtype dtypes.DType, dim int) *Cell {
	if dim <= 0 {
		panic(errors.Wrapf(ErrDimensionMismatch, "dim must be > 0, got %d", dim))
	}
	c := &Cell{
		ctx:            ctx,
		dtype:          dtype,
		dim:            dim,
		activation:     activations.TypeTanh,
		gateActivation: activations.TypeSigmoid,
	}
	if name := context.GetParamOr(ctx, ParamActivation, ""); name != "" {
		c.activation = activations.FromName(name)
	}
	if name := context.GetParamOr(ctx, ParamGateActivation, ""); name != "" {
		c.gateActivation = activations.FromName(name)
	}
	return c
}

// NewWithWeights creates a cell that uses the given weights, as opposed to creating them in a context.
// The dimension of the cell is taken from weights.State, which must be shaped [dim, 4*dim].
func NewWithWeights(weights Weights) *Cell {
	if weights.State == nil || weights.State.Rank() != 2 {
		panic(errors.Wrapf(ErrDimensionMismatch, "W_state must be shaped [dim, 4*dim]"))
	}
	dim := weights.State.Shape().Dim(0)
	if weights.State.Shape().Dim(1) != NumGates*dim {
		panic(errors.Wrapf(ErrDimensionMismatch, "W_state must be shaped [dim, 4*dim], got %s",
			weights.State.Shape()))
	}
	for _, w := range []*Node{weights.CellToIn, weights.CellToForget, weights.CellToOut} {
		if w == nil {
			panic(errors.Wrapf(ErrDimensionMismatch, "peephole weights must be given, shaped [%d]", dim))
		}
		assertVector(w, dim, "peephole weight")
	}
	g := weights.State.Graph()
	dtype := weights.State.DType()
	if weights.InitialState == nil {
		weights.InitialState = Zeros(g, shapes.Make(dtype, dim))
	}
	if weights.InitialCells == nil {
		weights.InitialCells = Zeros(g, shapes.Make(dtype, dim))
	}
	assertVector(weights.InitialState, dim, "initial_state")
	assertVector(weights.InitialCells, dim, "initial_cells")
	return &Cell{
		dtype:          dtype,
		dim:            dim,
		activation:     activations.TypeTanh,
		gateActivation: activations.TypeSigmoid,
		weights:        &weights,
		weightsGraph:   g,
	}
}

func assertVector(x *Node, dim int, name string) {
	if x.Rank() != 1 || x.Shape().Dim(0) != dim {
		panic(errors.Wrapf(ErrDimensionMismatch, "%s must be shaped [%d], got %s", name, dim, x.Shape()))
	}
}

// Activation sets the main activation, applied to the cell candidate and to the cells before the output gate.
// Default is tanh.
func (c *Cell) Activation(activation activations.Type) *Cell {
	c.activation = activation
	return c
}

// GateActivation sets the activation of the input, forget and output gates. Default is sigmoid.
func (c *Cell) GateActivation(activation activations.Type) *Cell {
	c.gateActivation = activation
	return c
}

// Dim returns the dimension of the hidden state and cells.
func (c *Cell) Dim() int { return c.dim }

// Weights returns the weights used in graph g, creating the variables in the context if needed.
func (c *Cell) Weights(g *Graph) *Weights {
	if c.weights != nil {
		if c.weightsGraph == g {
			return c.weights
		}
		if c.ctx == nil {
			exceptions.Panicf("peephole: cell weights were given in a different graph than the one being built")
		}
	}
	ctx := c.ctx
	dim := c.dim
	vectorShape := shapes.Make(c.dtype, dim)
	c.weights = &Weights{
		State:        ctx.VariableWithShape(VarState, shapes.Make(c.dtype, dim, NumGates*dim)).ValueGraph(g),
		CellToIn:     ctx.VariableWithShape(VarCellToIn, vectorShape).ValueGraph(g),
		CellToForget: ctx.VariableWithShape(VarCellToForget, vectorShape).ValueGraph(g),
		CellToOut:    ctx.VariableWithShape(VarCellToOut, vectorShape).ValueGraph(g),
		InitialState: ctx.VariableWithValue(VarInitialState, tensors.FromShape(vectorShape)).ValueGraph(g),
		InitialCells: ctx.VariableWithValue(VarInitialCells, tensors.FromShape(vectorShape)).ValueGraph(g),
	}
	c.weightsGraph = g
	return c.weights
}

// InitialStates returns the learned initial hidden state and cells broadcast to batchSize rows,
// each shaped [batchSize, dim].
func (c *Cell) InitialStates(g *Graph, batchSize int) (hidden, cells *Node) {
	w := c.Weights(g)
	hidden = BroadcastToDims(ExpandAxes(w.InitialState, 0), batchSize, c.dim)
	cells = BroadcastToDims(ExpandAxes(w.InitialCells, 0), batchSize, c.dim)
	return
}

// Step applies one transition of the cell.
//
//   - inputs: already projected inputs, shaped [batch, 4*dim].
//   - hidden, cells: previous states, shaped [batch, dim].
//   - mask: optional (can be nil), shaped [batch]. Where it is 0 the previous states are carried over
//     unchanged. It can be boolean or of any numeric dtype.
//
// It panics with an error wrapping ErrDimensionMismatch if the shapes don't match. See TryStep.
func (c *Cell) Step(inputs, hidden, cells, mask *Node) StepOutput {
	c.checkStepShapes(inputs, hidden, cells, mask)
	w := c.Weights(inputs.Graph())
	dim := c.dim

	projection := Add(Einsum("bh,hg->bg", hidden, w.State), inputs)
	chunk := func(idx int) *Node {
		return Slice(projection, AxisRange(), AxisRange(idx*dim, (idx+1)*dim))
	}
	gate := func(x *Node) *Node { return activations.Apply(c.gateActivation, x) }

	inGate := gate(Add(chunk(0), peep(cells, w.CellToIn)))
	forgetGate := gate(Add(chunk(1), peep(cells, w.CellToForget)))
	nextCells := Add(
		Mul(forgetGate, cells),
		Mul(inGate, activations.Apply(c.activation, chunk(2))))
	outGate := gate(Add(chunk(3), peep(nextCells, w.CellToOut)))
	nextHidden := Mul(outGate, activations.Apply(c.activation, nextCells))

	if mask != nil {
		m := ExpandAxes(ConvertDType(mask, hidden.DType()), -1) // [batch, 1]
		nextHidden = blend(m, nextHidden, hidden)
		nextCells = blend(m, nextCells, cells)
	}
	return StepOutput{
		Hidden: nextHidden,
		Cells:  nextCells,
		Gates:  Gates{Input: inGate, Forget: forgetGate, Output: outGate},
	}
}

// TryStep is like Step, but returns an error instead of panicking.
func (c *Cell) TryStep(inputs, hidden, cells, mask *Node) (out StepOutput, err error) {
	err = exceptions.TryCatch[error](func() { out = c.Step(inputs, hidden, cells, mask) })
	return
}

// peep multiplies cells [batch, dim] element-wise by the diagonal weight w [dim].
func peep(cells, w *Node) *Node {
	return Mul(cells, ExpandAxes(w, 0))
}

// blend returns m*newValue + (1-m)*oldValue.
func blend(m, newValue, oldValue *Node) *Node {
	return Add(Mul(m, newValue), Mul(OneMinus(m), oldValue))
}

func (c *Cell) checkStepShapes(inputs, hidden, cells, mask *Node) {
	if inputs.Rank() != 2 || inputs.Shape().Dim(1) != NumGates*c.dim {
		panic(errors.Wrapf(ErrDimensionMismatch, "inputs must be shaped [batch, 4*dim=%d], got %s",
			NumGates*c.dim, inputs.Shape()))
	}
	batchSize := inputs.Shape().Dim(0)
	for _, state := range []*Node{hidden, cells} {
		if state.Rank() != 2 || state.Shape().Dim(0) != batchSize || state.Shape().Dim(1) != c.dim {
			panic(errors.Wrapf(ErrDimensionMismatch, "states must be shaped [batch=%d, dim=%d], got %s",
				batchSize, c.dim, state.Shape()))
		}
	}
	if mask != nil && (mask.Rank() != 1 || mask.Shape().Dim(0) != batchSize) {
		panic(errors.Wrapf(ErrDimensionMismatch, "mask must be shaped [batch=%d], got %s",
			batchSize, mask.Shape()))
	}
}
