package translate

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/born-ml/graphlower/internal/ir"
)

// NamedOutput is one translator output, optionally published under an
// extra tensor name.
type NamedOutput struct {
	Name  string
	Value ir.Output
}

// NamedOutputs is the ordered result of a translator. Position i stands for
// the source node's i-th output.
type NamedOutputs []NamedOutput

// Values returns the outputs without their names.
func (n NamedOutputs) Values() []ir.Output {
	return lo.Map(n, func(o NamedOutput, _ int) ir.Output { return o.Value })
}

// Named wraps positional outputs.
func Named(outputs ...ir.Output) NamedOutputs {
	return lo.Map(outputs, func(o ir.Output, _ int) NamedOutput { return NamedOutput{Value: o} })
}

// Translator converts one source node into target IR outputs.
type Translator func(ctx *NodeContext) (NamedOutputs, error)

// Indexed is a translator whose outputs are addressed by position only.
type Indexed func(ctx *NodeContext) ([]ir.Output, error)

// FromIndexed adapts a positional translator to the named convention.
func FromIndexed(fn Indexed) Translator {
	return func(ctx *NodeContext) (NamedOutputs, error) {
		outs, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return Named(outs...), nil
	}
}

// Registry maps operation types to translators.
//
// Registrations overwrite earlier entries for the same type. There is no
// removal; a narrower registry is obtained with Restrict.
type Registry struct {
	mu          sync.RWMutex
	translators map[string]Translator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		translators: make(map[string]Translator),
	}
}

// Register adds or replaces the translator for opType.
func (r *Registry) Register(opType string, t Translator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[opType] = t
}

// RegisterIndexed adds or replaces a positional translator for opType.
func (r *Registry) RegisterIndexed(opType string, fn Indexed) {
	r.Register(opType, FromIndexed(fn))
}

// Lookup returns the translator for opType.
func (r *Registry) Lookup(opType string) (Translator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.translators[opType]
	return t, ok
}

// Clone returns an independent copy. Later registrations on either side do
// not affect the other.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for op, t := range r.translators {
		c.translators[op] = t
	}
	return c
}

// Restrict returns a copy holding only the listed operation types.
// Every listed type must be registered.
func (r *Registry) Restrict(opTypes ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for _, op := range opTypes {
		t, ok := r.translators[op]
		if !ok {
			return nil, fmt.Errorf("restrict registry: %w", newError(
				ErrOperationConversion, op, "%s", NoTranslatorMessage(op)))
		}
		c.translators[op] = t
	}
	return c, nil
}

// SupportedOps returns the registered operation types, sorted.
func (r *Registry) SupportedOps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := lo.Keys(r.translators)
	slices.Sort(ops)
	return ops
}

// Len returns the number of registered operation types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.translators)
}
