package domain

// ColumnType enumerates the storable column types.
type ColumnType string

const (
	TypeVarchar   ColumnType = "VARCHAR"
	TypeBigint    ColumnType = "BIGINT"
	TypeDouble    ColumnType = "DOUBLE"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeDate      ColumnType = "DATE"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// ValidColumnType reports whether t is a recognized column type.
func ValidColumnType(t ColumnType) bool {
	switch t {
	case TypeVarchar, TypeBigint, TypeDouble, TypeBoolean, TypeDate, TypeTimestamp:
		return true
	}
	return false
}

// Column describes one column of a table schema.
type Column struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ColumnType `json:"type" yaml:"type"`
	Nullable bool       `json:"nullable" yaml:"nullable"`
}

// Schema is an ordered list of columns. Order is significant: rows are
// positional against it.
type Schema []Column

// ColumnIndex returns the position of the named column, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column and whether it exists.
func (s Schema) Column(name string) (Column, bool) {
	i := s.ColumnIndex(name)
	if i < 0 {
		return Column{}, false
	}
	return s[i], true
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Clone returns an independent copy of the schema.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// Equal reports whether two schemas are identical in order, names, types,
// and nullability.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate checks structural soundness: at least one column, non-empty
// unique names, recognized types.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return ErrValidation("schema must declare at least one column")
	}
	seen := make(map[string]bool, len(s))
	for _, c := range s {
		if c.Name == "" {
			return ErrValidation("schema column name cannot be empty")
		}
		if seen[c.Name] {
			return ErrValidation("schema declares column %q more than once", c.Name)
		}
		seen[c.Name] = true
		if !ValidColumnType(c.Type) {
			return ErrValidation("column %q has unknown type %q", c.Name, c.Type)
		}
	}
	return nil
}

// CompatibleSuperset reports whether next is an append-only evolution of s:
// every existing column keeps its position, name, and type; nullability may
// only widen (required to nullable); added columns are nullable and appended
// at the end. A nil error means next may replace s in a new schema revision.
func (s Schema) CompatibleSuperset(next Schema) error {
	if len(next) < len(s) {
		return ErrValidation("schema evolution cannot drop columns (%d -> %d)", len(s), len(next))
	}
	for i, c := range s {
		n := next[i]
		if n.Name != c.Name {
			return ErrValidation("schema evolution cannot rename or reorder column %q (got %q at position %d)", c.Name, n.Name, i)
		}
		if n.Type != c.Type {
			return ErrValidation("schema evolution cannot change column %q from %s to %s", c.Name, c.Type, n.Type)
		}
		if c.Nullable && !n.Nullable {
			return ErrValidation("schema evolution cannot make nullable column %q required", c.Name)
		}
	}
	for _, n := range next[len(s):] {
		if !n.Nullable {
			return ErrValidation("added column %q must be nullable", n.Name)
		}
	}
	return nil
}
