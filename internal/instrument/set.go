package instrument

// OperationSet is a straightforward Instrument implementation backed
// by a static list of operations. Driver packages build one in their
// constructor; anything needing custom lookup behaviour implements
// Instrument directly instead.
type OperationSet struct {
	name  string
	ops   []Operation
	index map[string]int
}

// NewOperationSet builds an instrument from its name and operations.
// Registration-time validation happens in Registry.Register, not here.
func NewOperationSet(name string, ops ...Operation) *OperationSet {
	index := make(map[string]int, len(ops))
	for i, op := range ops {
		index[op.Spec.Name] = i
	}
	return &OperationSet{name: name, ops: ops, index: index}
}

// Name returns the instrument's unique name.
func (s *OperationSet) Name() string { return s.name }

// Operations returns the declared operations in registration order.
func (s *OperationSet) Operations() []Operation {
	out := make([]Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

// Operation looks up one operation by name.
func (s *OperationSet) Operation(name string) (Operation, bool) {
	i, ok := s.index[name]
	if !ok {
		return Operation{}, false
	}
	return s.ops[i], true
}
