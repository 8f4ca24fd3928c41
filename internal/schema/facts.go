package schema

// Facts is the derived, non-persisted view of one snapshot.
// Type names are extracted once; fields are computed per request.
type Facts struct {
	text  string
	order []string
	types map[string]struct{}
}

// NewFacts parses the declared type names of text.
func NewFacts(text string) Facts {
	order := TypeNames(text)
	types := make(map[string]struct{}, len(order))
	for _, n := range order {
		types[n] = struct{}{}
	}
	return Facts{text: text, order: order, types: types}
}

// TypeNames returns the declared type names in declaration order.
func (f Facts) TypeNames() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// HasType reports whether name is declared.
func (f Facts) HasType(name string) bool {
	_, ok := f.types[name]
	return ok
}

// Fields returns the fields declared on the named object type.
func (f Facts) Fields(typeName string) []string {
	return Fields(f.text, typeName)
}
