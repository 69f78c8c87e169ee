package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/seqreg/internal/tensor"
)

// ErrShapeMismatch is returned when loaded weights do not fit a parameter.
var ErrShapeMismatch = errors.New("shape mismatch")

// Parameter represents a trainable parameter in a neural network.
//
// Optimizers identify a parameter's gradient by the identity of its
// RawTensor, so the tensor must never be replaced, only updated in place.
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B]
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the last gradient stored by SetGrad, or nil.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad stores a gradient on the parameter.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// NumElements returns the number of scalar weights in the parameter.
func (p *Parameter[B]) NumElements() int {
	return p.tensor.NumElements()
}

// Load copies src into the parameter in place.
// Shape and dtype must match exactly.
func (p *Parameter[B]) Load(src *tensor.RawTensor) error {
	if !src.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("%w: expected %v, got %v", ErrShapeMismatch, p.tensor.Shape(), src.Shape())
	}
	if src.DType() != tensor.Float32 {
		return fmt.Errorf("dtype mismatch: expected float32, got %v", src.DType())
	}
	copy(p.tensor.Data(), src.AsFloat32())
	return nil
}

// CountParameters returns the total number of scalar weights in params.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	total := 0
	for _, p := range params {
		total += p.NumElements()
	}
	return total
}

// NamedParameter pairs a parameter with its fully qualified name inside a
// model, such as "encoder.layer.0.attention.self.query.weight".
type NamedParameter[B tensor.Backend] struct {
	Name  string
	Param *Parameter[B]
}

// Named qualifies the local names of params with prefix.
func Named[B tensor.Backend](prefix string, params []*Parameter[B]) []NamedParameter[B] {
	named := make([]NamedParameter[B], 0, len(params))
	for _, p := range params {
		named = append(named, NamedParameter[B]{Name: join(prefix, p.Name()), Param: p})
	}
	return named
}

// Prefix qualifies already-named parameters with an outer prefix.
func Prefix[B tensor.Backend](prefix string, named []NamedParameter[B]) []NamedParameter[B] {
	out := make([]NamedParameter[B], len(named))
	for i, np := range named {
		out[i] = NamedParameter[B]{Name: join(prefix, np.Name), Param: np.Param}
	}
	return out
}

// Unnamed strips names, keeping order.
func Unnamed[B tensor.Backend](named []NamedParameter[B]) []*Parameter[B] {
	params := make([]*Parameter[B], len(named))
	for i, np := range named {
		params[i] = np.Param
	}
	return params
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// StateDict maps qualified names to the parameters' raw tensors.
// Duplicate names panic, since they would silently overwrite each other.
func StateDict[B tensor.Backend](named []NamedParameter[B]) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(named))
	for _, np := range named {
		if _, dup := state[np.Name]; dup {
			panic(fmt.Sprintf("state dict: duplicate parameter name %q", np.Name))
		}
		state[np.Name] = np.Param.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies every entry of state into the parameter with the
// same qualified name. It returns the names with no entry in state.
// Entries that match no parameter are ignored.
func LoadStateDict[B tensor.Backend](named []NamedParameter[B], state map[string]*tensor.RawTensor) ([]string, error) {
	var missing []string
	for _, np := range named {
		src, ok := state[np.Name]
		if !ok {
			missing = append(missing, np.Name)
			continue
		}
		if err := np.Param.Load(src); err != nil {
			return missing, fmt.Errorf("%s: %w", np.Name, err)
		}
	}
	return missing, nil
}
