package shard

import (
	"errors"
	"fmt"
)

var (
	ErrShardAlreadyExists   = errors.New("etch: shard already exists")
	ErrCorruptShard         = errors.New("etch: corrupt shard")
	ErrInconsistentMetadata = errors.New("etch: shard metadata is inconsistent")
)

func ErrShardExists(table string, index int) error {
	return fmt.Errorf("%w: table %s shard %d", ErrShardAlreadyExists, table, index)
}

func ErrShardCorrupted(table string, index int, reason string) error {
	return fmt.Errorf("%w: table %s shard %d: %s", ErrCorruptShard, table, index, reason)
}

func ErrMetadataInconsistent(table string, reason string) error {
	return fmt.Errorf("%w: table %s: %s", ErrInconsistentMetadata, table, reason)
}

func ErrFillCountMismatch(table string, index, fillCount, recordsCount int) error {
	return ErrMetadataInconsistent(
		table,
		fmt.Sprintf(
			"shard %d has %d records, metadata says %d",
			index,
			recordsCount,
			fillCount,
		),
	)
}
