package catalog

import "encoding/json"

// Field is a column declaration. The type tag is stored verbatim
// and not enforced on insert.
type Field struct {
	Name      string          `json:"name"`
	FieldType json.RawMessage `json:"field_type"`
}

// Constraint references a field by name. Stored, not enforced.
type Constraint struct {
	Field string `json:"field"`
}

type Schema struct {
	Fields      []*Field      `json:"fields"`
	Constraints []*Constraint `json:"constraints"`
}

// Table is the descriptor persisted in the catalog file.
type Table struct {
	Name        string        `json:"name"`
	Fields      []*Field      `json:"fields"`
	Constraints []*Constraint `json:"constraints"`
}

func NewTable(name string, schema *Schema) *Table {
	table := &Table{
		Name:        name,
		Fields:      make([]*Field, 0),
		Constraints: make([]*Constraint, 0),
	}

	if schema != nil {
		table.Fields = append(table.Fields, schema.Fields...)
		table.Constraints = append(table.Constraints, schema.Constraints...)
	}

	return table
}
