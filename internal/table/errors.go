package table

import (
	"errors"
	"fmt"
)

var (
	ErrTableDoesntExist    = errors.New("etch: table does not exist")
	ErrRecordNotFound      = errors.New("etch: record not found")
	ErrMalformedIdentifier = errors.New("etch: malformed record identifier")
	ErrRecordTooLarge      = errors.New("etch: record too large")
)

func ErrTableWithNameDoesntExist(name string) error {
	return fmt.Errorf("%w: %s", ErrTableDoesntExist, name)
}

func ErrRecordWithIDNotFound(table, id string) error {
	return fmt.Errorf("%w: table %s id %s", ErrRecordNotFound, table, id)
}

func ErrBadIdentifier(id string, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrMalformedIdentifier, id, reason)
}

func ErrRecordNotObject() error {
	return fmt.Errorf("record is not a JSON object")
}

func ErrRecordWithoutID() error {
	return fmt.Errorf("record has no string %s field", IDField)
}

func ErrRecordExceedsLimit(size, limit int) error {
	return fmt.Errorf("%w: %d bytes, limit %d", ErrRecordTooLarge, size, limit)
}
