package expression

import (
	"sync"

	"github.com/mnohosten/laura-odm/pkg/codec"
)

// Operator is one of the fixed update operators.
type Operator string

const (
	OpSet      Operator = "$set"
	OpInc      Operator = "$inc"
	OpMul      Operator = "$mul"
	OpPush     Operator = "$push"
	OpPop      Operator = "$pop"
	OpPull     Operator = "$pull"
	OpAddToSet Operator = "$addToSet"
)

// MutationExpression is a single update operation: an operator, a
// target field path, and a value.
type MutationExpression struct {
	Operator Operator
	Path     string
	Value    any
}

// NewMutation creates a mutation expression.
func NewMutation(op Operator, path string, value any) *MutationExpression {
	return &MutationExpression{Operator: op, Path: path, Value: value}
}

// Serialize returns the update form {operator: {path: value}}. Schema
// struct values are flattened to their plain-map form first.
func (m *MutationExpression) Serialize() map[string]map[string]any {
	return map[string]map[string]any{
		string(m.Operator): {m.Path: codec.Normalize(m.Value)},
	}
}

// MutationContext accumulates mutation expressions for one query
// builder, keyed by operator. It is safe for concurrent use; isolation
// between builders is structural, since every builder owns its own
// context.
type MutationContext struct {
	mu        sync.Mutex
	mutations map[string]map[string]any
}

// NewMutationContext creates an empty context.
func NewMutationContext() *MutationContext {
	return &MutationContext{mutations: make(map[string]map[string]any)}
}

// Add merges a mutation into the accumulated state. Re-mutating the
// same field under the same operator overwrites the previous value
// (last write wins); entries under different operators for the same
// field coexist independently.
func (c *MutationContext) Add(m *MutationExpression) {
	serialized := m.Serialize()

	c.mu.Lock()
	defer c.mu.Unlock()

	for operator, fields := range serialized {
		existing, ok := c.mutations[operator]
		if !ok {
			existing = make(map[string]any, len(fields))
			c.mutations[operator] = existing
		}
		for path, value := range fields {
			existing[path] = value
		}
	}
}

// Mutations returns a snapshot of the accumulated
// {operator: {path: value}} structure.
func (c *MutationContext) Mutations() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]any, len(c.mutations))
	for operator, fields := range c.mutations {
		sub := make(map[string]any, len(fields))
		for path, value := range fields {
			sub[path] = value
		}
		out[operator] = sub
	}
	return out
}

// Len returns the number of accumulated operators.
func (c *MutationContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mutations)
}

// Clear resets the context to empty.
func (c *MutationContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutations = make(map[string]map[string]any)
}
