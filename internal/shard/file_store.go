package shard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kyleoneill/etch/internal/consts"
	"github.com/kyleoneill/etch/internal/fsutil"
)

const recordSeparator = ", "

// FileStore keeps every shard as a JSON array of records in its own file.
type FileStore struct {
	rootDir string
}

func NewFileStore(rootDir string) *FileStore {
	return &FileStore{rootDir: rootDir}
}

// CreateShard creates an empty shard file.
func (s *FileStore) CreateShard(table string, index int) error {
	return s.CreateShardIn(TableDir(s.rootDir, table), table, index)
}

func (s *FileStore) CreateShardIn(tableDir string, table string, index int) error {
	err := fsutil.CreateIfNotExists(
		ShardFilePath(tableDir, index),
		[]byte(consts.EmptyList),
	)
	if errors.Is(err, os.ErrExist) {
		return ErrShardExists(table, index)
	} else if err != nil {
		return fmt.Errorf("fsutil.CreateIfNotExists: %w", err)
	}

	return nil
}

// AppendRecord adds record to the end of the shard. The shard must hold
// exactly expectedCount records, otherwise nothing is written. Prior
// records keep their bytes; the new file is staged and renamed in place.
// The previous content is returned so the caller can roll back.
func (s *FileStore) AppendRecord(
	table string,
	index int,
	record []byte,
	expectedCount int,
) ([]byte, error) {
	path := ShardFilePath(TableDir(s.rootDir, table), index)

	previous, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}

	records, err := parseShard(table, index, previous)
	if err != nil {
		return nil, err
	}

	if len(records) != expectedCount {
		return nil, ErrFillCountMismatch(table, index, expectedCount, len(records))
	}

	// отрезаем закрывающую скобку и дописываем запись перед ней
	trimmed := bytes.TrimRight(previous, " \t\r\n")
	body := trimmed[:len(trimmed)-1]

	updated := make([]byte, 0, len(body)+len(recordSeparator)+len(record)+1)
	updated = append(updated, body...)
	if len(records) != 0 {
		updated = append(updated, recordSeparator...)
	}
	updated = append(updated, record...)
	updated = append(updated, ']')

	if err := fsutil.AtomicWriteFile(path, updated); err != nil {
		return nil, fmt.Errorf("fsutil.AtomicWriteFile: %w", err)
	}

	return previous, nil
}

// Restore puts back content returned by AppendRecord.
func (s *FileStore) Restore(table string, index int, content []byte) error {
	path := ShardFilePath(TableDir(s.rootDir, table), index)
	if err := fsutil.AtomicWriteFile(path, content); err != nil {
		return fmt.Errorf("fsutil.AtomicWriteFile: %w", err)
	}
	return nil
}

// ReadShard reads the whole shard.
func (s *FileStore) ReadShard(table string, index int) ([]json.RawMessage, error) {
	rawData, err := os.ReadFile(ShardFilePath(TableDir(s.rootDir, table), index))
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}

	return parseShard(table, index, rawData)
}

func (s *FileStore) CountRecords(table string, index int) (int, error) {
	records, err := s.ReadShard(table, index)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func parseShard(table string, index int, rawData []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(rawData)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, ErrShardCorrupted(table, index, "not a JSON array")
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, ErrShardCorrupted(table, index, err.Error())
	}

	return records, nil
}

func ShardFilePath(tableDir string, index int) string {
	return filepath.Join(
		tableDir,
		consts.ShardFilePrefix+strconv.Itoa(index)+consts.EtchExtension,
	)
}
