// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

// Package dense implements the peephole LSTM transition of package peephole with plain gonum matrices,
// with no computation graph or backend.
//
// It is meant for small CPU-only use and as a numeric reference.
package dense

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is wrapped by errors returned when the operands don't have the expected shapes.
var ErrDimensionMismatch = errors.New("dense peephole: dimension mismatch")

// ActivationFn is applied element-wise.
type ActivationFn func(x float64) float64

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Tanh is the hyperbolic tangent.
func Tanh(x float64) float64 { return math.Tanh(x) }

// Params are the learned tensors of the cell.
type Params struct {
	State                             *mat.Dense    // [dim, 4*dim]
	CellToIn, CellToForget, CellToOut *mat.VecDense // [dim]
	InitialState, InitialCells        *mat.VecDense // [dim]
}

// NewParams returns zero-valued parameters of dimension dim.
func NewParams(dim int) *Params {
	return &Params{
		State:        mat.NewDense(dim, 4*dim, nil),
		CellToIn:     mat.NewVecDense(dim, nil),
		CellToForget: mat.NewVecDense(dim, nil),
		CellToOut:    mat.NewVecDense(dim, nil),
		InitialState: mat.NewVecDense(dim, nil),
		InitialCells: mat.NewVecDense(dim, nil),
	}
}

// Dim returns the dimension of the hidden state.
func (p *Params) Dim() int {
	dim, _ := p.State.Dims()
	return dim
}

// Validate checks that all parameters have consistent shapes.
func (p *Params) Validate() error {
	if p.State == nil {
		return errors.Wrap(ErrDimensionMismatch, "W_state not set")
	}
	rows, cols := p.State.Dims()
	if cols != 4*rows {
		return errors.Wrapf(ErrDimensionMismatch, "W_state must be shaped [dim, 4*dim], got [%d, %d]", rows, cols)
	}
	for name, v := range map[string]*mat.VecDense{
		"W_cell_to_in":     p.CellToIn,
		"W_cell_to_forget": p.CellToForget,
		"W_cell_to_out":    p.CellToOut,
		"initial_state":    p.InitialState,
		"initial_cells":    p.InitialCells,
	} {
		if v == nil || v.Len() != rows {
			return errors.Wrapf(ErrDimensionMismatch, "%s must have length %d", name, rows)
		}
	}
	return nil
}

// Cell is a stateless peephole LSTM transition: it holds only the parameters and activations.
type Cell struct {
	*Params
	Activation, GateActivation ActivationFn
}

// New returns a cell with tanh activation and sigmoid gates.
func New(params *Params) (*Cell, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Cell{Params: params, Activation: Tanh, GateActivation: Sigmoid}, nil
}

// StepOutput holds the next states and the gate activations, all shaped [batch, dim].
type StepOutput struct {
	Hidden, Cells                      *mat.Dense
	InputGate, ForgetGate, OutputGate *mat.Dense
}

// InitialStates broadcasts the initial state and cells to batchSize rows.
func (c *Cell) InitialStates(batchSize int) (hidden, cells *mat.Dense) {
	dim := c.Dim()
	hidden = mat.NewDense(batchSize, dim, nil)
	cells = mat.NewDense(batchSize, dim, nil)
	for row := range batchSize {
		hidden.SetRow(row, c.InitialState.RawVector().Data)
		cells.SetRow(row, c.InitialCells.RawVector().Data)
	}
	return
}

// Step computes one transition. inputs is shaped [batch, 4*dim], hidden and cells [batch, dim], and
// mask, if not nil, has one value per example: 1 to update, 0 to carry the previous state over.
func (c *Cell) Step(inputs, hidden, cells *mat.Dense, mask []float64) (*StepOutput, error) {
	dim := c.Dim()
	batchSize, width := inputs.Dims()
	if width != 4*dim {
		return nil, errors.Wrapf(ErrDimensionMismatch, "inputs must be shaped [batch, 4*dim=%d], got [%d, %d]",
			4*dim, batchSize, width)
	}
	for _, state := range []*mat.Dense{hidden, cells} {
		if rows, cols := state.Dims(); rows != batchSize || cols != dim {
			return nil, errors.Wrapf(ErrDimensionMismatch, "states must be shaped [%d, %d], got [%d, %d]",
				batchSize, dim, rows, cols)
		}
	}
	if mask != nil && len(mask) != batchSize {
		return nil, errors.Wrapf(ErrDimensionMismatch, "mask must have length %d, got %d", batchSize, len(mask))
	}

	var projection mat.Dense
	projection.Mul(hidden, c.State)
	projection.Add(&projection, inputs)

	out := &StepOutput{
		Hidden:     mat.NewDense(batchSize, dim, nil),
		Cells:      mat.NewDense(batchSize, dim, nil),
		InputGate:  mat.NewDense(batchSize, dim, nil),
		ForgetGate: mat.NewDense(batchSize, dim, nil),
		OutputGate: mat.NewDense(batchSize, dim, nil),
	}
	for b := range batchSize {
		for j := range dim {
			cell := cells.At(b, j)
			in := c.GateActivation(projection.At(b, j) + cell*c.CellToIn.AtVec(j))
			forget := c.GateActivation(projection.At(b, dim+j) + cell*c.CellToForget.AtVec(j))
			nextCell := forget*cell + in*c.Activation(projection.At(b, 2*dim+j))
			outGate := c.GateActivation(projection.At(b, 3*dim+j) + nextCell*c.CellToOut.AtVec(j))
			nextHidden := outGate * c.Activation(nextCell)
			if mask != nil {
				m := mask[b]
				nextHidden = m*nextHidden + (1-m)*hidden.At(b, j)
				nextCell = m*nextCell + (1-m)*cell
			}
			out.InputGate.Set(b, j, in)
			out.ForgetGate.Set(b, j, forget)
			out.OutputGate.Set(b, j, outGate)
			out.Cells.Set(b, j, nextCell)
			out.Hidden.Set(b, j, nextHidden)
		}
	}
	return out, nil
}
