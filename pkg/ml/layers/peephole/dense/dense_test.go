// Copyright 2026 The dictlearn Authors. SPDX-License-Identifier: Apache-2.0

package dense

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStepSingleUnit(t *testing.T) {
	params := NewParams(1)
	params.CellToOut.SetVec(0, 1)
	params.CellToIn.SetVec(0, 0.5)
	cell, err := New(params)
	require.NoError(t, err)

	inputs := mat.NewDense(1, 4, []float64{0, 0, 1, 0})
	hidden := mat.NewDense(1, 1, []float64{0.3})
	cells := mat.NewDense(1, 1, []float64{1})
	out, err := cell.Step(inputs, hidden, cells, nil)
	require.NoError(t, err)

	in := Sigmoid(0.5)
	forget := Sigmoid(0)
	nextCell := forget*1 + in*math.Tanh(1)
	outGate := Sigmoid(nextCell)
	assert.InDelta(t, in, out.InputGate.At(0, 0), 1e-12)
	assert.InDelta(t, forget, out.ForgetGate.At(0, 0), 1e-12)
	assert.InDelta(t, outGate, out.OutputGate.At(0, 0), 1e-12)
	assert.InDelta(t, nextCell, out.Cells.At(0, 0), 1e-12)
	assert.InDelta(t, outGate*math.Tanh(nextCell), out.Hidden.At(0, 0), 1e-12)
}

func TestStepRecurrentProjection(t *testing.T) {
	// Only the cell candidate receives the hidden state: W_state = [0, 0, 2, 0].
	params := NewParams(1)
	params.State.Set(0, 2, 2)
	cell, err := New(params)
	require.NoError(t, err)
	out, err := cell.Step(mat.NewDense(1, 4, nil), mat.NewDense(1, 1, []float64{0.25}), mat.NewDense(1, 1, nil), nil)
	require.NoError(t, err)
	wantCell := 0.5 * math.Tanh(0.5)
	assert.InDelta(t, wantCell, out.Cells.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5*math.Tanh(wantCell), out.Hidden.At(0, 0), 1e-12)
}

func TestStepMask(t *testing.T) {
	params := NewParams(2)
	for i := range 2 {
		for j := range 8 {
			params.State.Set(i, j, float64(i+j)/10)
		}
	}
	cell, err := New(params)
	require.NoError(t, err)
	inputs := mat.NewDense(2, 8, []float64{
		1, 2, 3, 4, 5, 6, 7, 8,
		-1, -2, -3, -4, -5, -6, -7, -8,
	})
	hidden := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.3, 0.4})
	cells := mat.NewDense(2, 2, []float64{-0.5, 0.5, 1, -1})

	masked, err := cell.Step(inputs, hidden, cells, []float64{0, 1})
	require.NoError(t, err)
	unmasked, err := cell.Step(inputs, hidden, cells, nil)
	require.NoError(t, err)

	assert.Equal(t, hidden.RawRowView(0), masked.Hidden.RawRowView(0))
	assert.Equal(t, cells.RawRowView(0), masked.Cells.RawRowView(0))
	assert.Equal(t, unmasked.Hidden.RawRowView(1), masked.Hidden.RawRowView(1))
	assert.Equal(t, unmasked.Cells.RawRowView(1), masked.Cells.RawRowView(1))
	// Gates are reported before masking.
	assert.Equal(t, unmasked.InputGate.RawRowView(0), masked.InputGate.RawRowView(0))
}

func TestInitialStates(t *testing.T) {
	params := NewParams(3)
	params.InitialState = mat.NewVecDense(3, []float64{1, 2, 3})
	params.InitialCells = mat.NewVecDense(3, []float64{-1, 0, 1})
	cell, err := New(params)
	require.NoError(t, err)
	hidden, cells := cell.InitialStates(4)
	for row := range 4 {
		assert.Equal(t, []float64{1, 2, 3}, hidden.RawRowView(row))
		assert.Equal(t, []float64{-1, 0, 1}, cells.RawRowView(row))
	}
}

func TestDimensionMismatch(t *testing.T) {
	params := NewParams(2)
	params.State = mat.NewDense(2, 6, nil)
	_, err := New(params)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	params = NewParams(2)
	params.CellToForget = mat.NewVecDense(3, nil)
	_, err = New(params)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	params = NewParams(2)
	params.InitialCells = nil
	_, err = New(params)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	cell, err := New(NewParams(2))
	require.NoError(t, err)
	_, err = cell.Step(mat.NewDense(3, 7, nil), mat.NewDense(3, 2, nil), mat.NewDense(3, 2, nil), nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = cell.Step(mat.NewDense(3, 8, nil), mat.NewDense(2, 2, nil), mat.NewDense(3, 2, nil), nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = cell.Step(mat.NewDense(3, 8, nil), mat.NewDense(3, 2, nil), mat.NewDense(3, 2, nil), []float64{1})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}
