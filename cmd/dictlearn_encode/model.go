package main

import (
	"github.com/dictlearn/dictlearn/pkg/config"
	"github.com/dictlearn/dictlearn/pkg/ml/layers/peephole"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// ParamVocabSize is the context hyperparameter with the size of the embedding table.
const ParamVocabSize = "vocab_size"

// Encoder types, from the "encoder" configuration.
const (
	EncoderLSTM   = "lstm"
	EncoderBiLSTM = "bilstm"
)

// Index of each of the outputs of encoderGraph.
const (
	StatInputGate = iota
	StatForgetGate
	StatOutputGate
	StatLastState
	NumStats
)

// encoderGraph embeds the tokens shaped [batch, maxLen], projects them to the gates' inputs and runs
// the peephole LSTM over them, skipping the padding positions (where mask is 0).
//
// It returns the scalar statistics indexed by StatInputGate, ..., StatLastState: the mean gate activations
// over the valid positions and the mean absolute value of the last hidden state.
func encoderGraph(ctx *context.Context, tokens, mask *Node) []*Node {
	cfg := config.FromContext(ctx, config.Root())
	vocabSize := context.GetParamOr(ctx, ParamVocabSize, 0)
	if vocabSize <= 0 {
		exceptions.Panicf("hyperparameter %q must be set to the size of the vocabulary", ParamVocabSize)
	}
	dtype := dtypes.Float32
	mask = ConvertDType(mask, dtype)

	embedded := layers.Embedding(ctx.In("embeddings"), tokens, dtype, vocabSize, cfg.EmbDim, false)
	projected := layers.Dense(ctx.In("projection"), embedded, true, peephole.NumGates*cfg.Dim)

	forward := peephole.New(ctx.In("encoder"), dtype, cfg.Dim).Sequence(projected).Mask(mask).Done()
	gates := forward.Gates
	lastState := forward.LastState
	switch cfg.Encoder {
	case EncoderLSTM:
	case EncoderBiLSTM:
		backwardProjected := layers.Dense(ctx.In("projection_bw"), embedded, true, peephole.NumGates*cfg.Dim)
		backward := peephole.New(ctx.In("encoder_bw"), dtype, cfg.Dim).
			Sequence(backwardProjected).Mask(mask).Reverse(true).Done()
		gates = peephole.Gates{
			Input:  Concatenate([]*Node{gates.Input, backward.Gates.Input}, -1),
			Forget: Concatenate([]*Node{gates.Forget, backward.Gates.Forget}, -1),
			Output: Concatenate([]*Node{gates.Output, backward.Gates.Output}, -1),
		}
		lastState = Concatenate([]*Node{lastState, backward.LastState}, -1)
	default:
		exceptions.Panicf("unknown encoder %q, valid values are %q and %q", cfg.Encoder, EncoderLSTM, EncoderBiLSTM)
	}

	stats := make([]*Node, NumStats)
	stats[StatInputGate] = maskedMean(gates.Input, mask)
	stats[StatForgetGate] = maskedMean(gates.Forget, mask)
	stats[StatOutputGate] = maskedMean(gates.Output, mask)
	stats[StatLastState] = ReduceAllMean(Abs(lastState))
	return stats
}

// maskedMean of x shaped [batch, seq, dim] over the positions where mask [batch, seq] is 1.
func maskedMean(x, mask *Node) *Node {
	dim := x.Shape().Dimensions[x.Rank()-1]
	total := ReduceAllSum(Mul(x, ExpandAxes(mask, -1)))
	count := MulScalar(ReduceAllSum(mask), float64(dim))
	return Div(total, Max(count, OnesLike(count)))
}
