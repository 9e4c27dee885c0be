package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Poneaswaran/College-Management-System-Backend/authz"
	"github.com/Poneaswaran/College-Management-System-Backend/services"
)

// Kind is the GraphQL root type an operation belongs to
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// ResolveFunc produces an operation's result from its raw variables
type ResolveFunc func(ctx context.Context, variables json.RawMessage) (interface{}, error)

// Operation is a named entry point together with the capability it requires.
type Operation struct {
	Name       string
	Kind       Kind
	Capability authz.Capability
	Resolve    ResolveFunc
}

// Registry holds operations by name
type Registry struct {
	mu         sync.RWMutex
	operations map[string]Operation
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{operations: make(map[string]Operation)}
}

// Register adds op. Names are unique across queries and mutations.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	if op.Resolve == nil {
		return fmt.Errorf("operation %s has no resolver", op.Name)
	}
	if op.Kind != KindQuery && op.Kind != KindMutation {
		return fmt.Errorf("operation %s has unknown kind %q", op.Name, op.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[op.Name]; exists {
		return fmt.Errorf("operation %s already registered", op.Name)
	}
	r.operations[op.Name] = op
	return nil
}

// MustRegister is Register for static wiring; it panics on error
func (r *Registry) MustRegister(ops ...Operation) {
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			panic(err)
		}
	}
}

// Get looks up an operation by name
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operations[name]
	return op, ok
}

// Names lists registered operation names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Typed adapts a resolver taking decoded variables
func Typed[A, R any](fn func(ctx context.Context, args A) (R, error)) ResolveFunc {
	return func(ctx context.Context, variables json.RawMessage) (interface{}, error) {
		var args A
		if len(variables) > 0 && string(variables) != "null" {
			if err := json.Unmarshal(variables, &args); err != nil {
				return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid variables", err)
			}
		}
		return fn(ctx, args)
	}
}
