package errclass

// Registration binds a category to a report label and its storage.
type Registration[E any] struct {
	Category  *Category
	Label     string
	IsFailing bool

	storage []E
}

// Append stores an entry.
func (r *Registration[E]) Append(e E) {
	r.storage = append(r.storage, e)
}

// Entries returns the stored entries in insertion order.
func (r *Registration[E]) Entries() []E {
	return append([]E(nil), r.storage...)
}

// Len returns the number of stored entries.
func (r *Registration[E]) Len() int {
	return len(r.storage)
}

// Registry maps categories to registrations. E is the entry type stored for
// matched outcomes.
type Registry[E any] struct {
	regs []*Registration[E]
}

// NewRegistry returns an empty registry. An empty registry matches nothing.
func NewRegistry[E any]() *Registry[E] {
	return &Registry[E]{}
}

// Register records a category with a fresh, empty storage.
func (r *Registry[E]) Register(cat *Category, label string, isFailing bool) *Registration[E] {
	reg := &Registration[E]{
		Category:  cat,
		Label:     label,
		IsFailing: isFailing,
	}
	r.regs = append(r.regs, reg)
	return reg
}

// Lookup returns the first registration whose category is cat or an ancestor
// of cat.
func (r *Registry[E]) Lookup(cat *Category) (*Registration[E], bool) {
	if cat == nil {
		return nil, false
	}
	for _, reg := range r.regs {
		if cat.Is(reg.Category) {
			return reg, true
		}
	}
	return nil, false
}

// Exact returns the registration made for cat itself, ignoring the hierarchy.
func (r *Registry[E]) Exact(cat *Category) (*Registration[E], bool) {
	for _, reg := range r.regs {
		if reg.Category == cat {
			return reg, true
		}
	}
	return nil, false
}

// All returns the registrations in registration order.
func (r *Registry[E]) All() []*Registration[E] {
	return append([]*Registration[E](nil), r.regs...)
}

// Len returns the number of registrations.
func (r *Registry[E]) Len() int {
	return len(r.regs)
}

// Reset drops every registration.
func (r *Registry[E]) Reset() {
	r.regs = nil
}
