// Package nn implements neural network modules.
//
// This package provides the building blocks of a transformer encoder:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters
//   - Linear, Embedding, LayerNorm, Dropout
//   - SelfAttention and EncoderLayer (post-norm, BERT/RoBERTa style)
//   - Loss functions: L1, MSE, Huber
package nn

import (
	"github.com/born-ml/seqreg/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures. Type parameter B
// must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module,
	// including nested modules. Modules without weights return nil.
	Parameters() []*Parameter[B]
}

// Trainable is implemented by modules whose behaviour differs between
// training and evaluation (dropout).
type Trainable interface {
	SetTraining(training bool)
}
