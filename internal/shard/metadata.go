package shard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kyleoneill/etch/internal/consts"
	"github.com/kyleoneill/etch/internal/fsutil"
	"github.com/kyleoneill/etch/internal/jsonutil"
)

const DefaultRecordsPerShard = 1000

// Metadata tracks how full each shard of a table is.
// FillCounts[i] is the number of records in shard i.
type Metadata struct {
	RecordsPerShard int   `json:"records_per_sub_table"`
	FillCounts      []int `json:"sub_tables"`
}

// NewMetadata describes a fresh table with a single empty shard.
func NewMetadata(recordsPerShard int) *Metadata {
	if recordsPerShard <= 0 {
		recordsPerShard = DefaultRecordsPerShard
	}

	return &Metadata{
		RecordsPerShard: recordsPerShard,
		FillCounts:      []int{0},
	}
}

func (m *Metadata) Clone() *Metadata {
	fillCounts := make([]int, len(m.FillCounts))
	copy(fillCounts, m.FillCounts)

	return &Metadata{
		RecordsPerShard: m.RecordsPerShard,
		FillCounts:      fillCounts,
	}
}

func (m *Metadata) NumShards() int {
	return len(m.FillCounts)
}

// FirstAvailable returns the lowest shard index that still has room.
func (m *Metadata) FirstAvailable() (int, bool) {
	for index, count := range m.FillCounts {
		if count < m.RecordsPerShard {
			return index, true
		}
	}
	return 0, false
}

func (m *Metadata) HasShard(index int) bool {
	return index >= 0 && index < len(m.FillCounts)
}

// Validate checks the rules a metadata record must follow
// regardless of what is on disk.
func (m *Metadata) Validate(table string) error {
	if m.RecordsPerShard <= 0 {
		return ErrMetadataInconsistent(
			table,
			fmt.Sprintf("records_per_sub_table is %d", m.RecordsPerShard),
		)
	}

	if len(m.FillCounts) == 0 {
		return ErrMetadataInconsistent(table, "no shards")
	}

	for index, count := range m.FillCounts {
		if count < 0 || count > m.RecordsPerShard {
			return ErrMetadataInconsistent(
				table,
				fmt.Sprintf(
					"shard %d fill count %d outside [0, %d]",
					index,
					count,
					m.RecordsPerShard,
				),
			)
		}
	}

	return nil
}

type MetadataStore struct {
	rootDir string
}

func NewMetadataStore(rootDir string) *MetadataStore {
	return &MetadataStore{rootDir: rootDir}
}

// Load reads and validates the metadata of table.
func (s *MetadataStore) Load(table string) (*Metadata, error) {
	rawData, err := os.ReadFile(s.metadataFilePath(TableDir(s.rootDir, table)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMetadataInconsistent(table, "metadata file is missing")
	} else if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(rawData, &metadata); err != nil {
		return nil, ErrMetadataInconsistent(table, fmt.Sprintf("json.Unmarshal: %s", err))
	}

	if err := metadata.Validate(table); err != nil {
		return nil, err
	}

	return &metadata, nil
}

// Save atomically replaces the metadata of table.
func (s *MetadataStore) Save(table string, metadata *Metadata) error {
	return s.SaveIn(TableDir(s.rootDir, table), metadata)
}

// SaveIn writes metadata into an arbitrary table directory,
// used while a new table is staged.
func (s *MetadataStore) SaveIn(tableDir string, metadata *Metadata) error {
	marshalled, err := jsonutil.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("jsonutil.Marshal: %w", err)
	}

	if err := fsutil.AtomicWriteFile(s.metadataFilePath(tableDir), marshalled); err != nil {
		return fmt.Errorf("fsutil.AtomicWriteFile: %w", err)
	}

	return nil
}

func (s *MetadataStore) metadataFilePath(tableDir string) string {
	return filepath.Join(tableDir, consts.MetadataFileName)
}

func TableDir(rootDir, table string) string {
	return filepath.Join(rootDir, table)
}
