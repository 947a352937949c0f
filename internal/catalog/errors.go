package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrTableAlreadyExists = errors.New("etch: table already exists")
	ErrInvalidTableName   = errors.New("etch: invalid table name")
)

func ErrTableWithNameExists(name string) error {
	return fmt.Errorf("%w: %s", ErrTableAlreadyExists, name)
}

func ErrBadTableName(name string) error {
	return fmt.Errorf(
		"%w: %q must be 1-%d characters of letters, digits, '_' or '-'",
		ErrInvalidTableName,
		name,
		maxTableNameLen,
	)
}

func ErrDuplicateTableInCatalog(name string) error {
	return fmt.Errorf("catalog file lists table %s more than once", name)
}
