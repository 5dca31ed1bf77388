package outstation

// Updates is an immutable batch of point writes applied atomically.
type Updates struct {
	items []Update
}

// Items returns a copy of the writes contained in the batch.
func (u Updates) Items() []Update {
	out := make([]Update, len(u.items))
	copy(out, u.items)
	return out
}

// Len returns the number of writes in the batch.
func (u Updates) Len() int {
	return len(u.items)
}

// UpdateBuilder accumulates point writes into an Updates batch.
type UpdateBuilder struct {
	items []Update
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{}
}

func (b *UpdateBuilder) Binary(value bool, index uint16, mode EventMode) *UpdateBuilder {
	b.items = append(b.items, Update{Type: Binary, Index: index, Binary: value, Mode: mode})
	return b
}

func (b *UpdateBuilder) Analog(value float64, index uint16, mode EventMode) *UpdateBuilder {
	b.items = append(b.items, Update{Type: Analog, Index: index, Analog: value, Mode: mode})
	return b
}

// Build returns the batch. The builder can be reused afterwards.
func (b *UpdateBuilder) Build() Updates {
	items := make([]Update, len(b.items))
	copy(items, b.items)
	b.items = b.items[:0]
	return Updates{items: items}
}
