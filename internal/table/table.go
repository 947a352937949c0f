package table

import (
	"github.com/kyleoneill/etch/internal/catalog"
	"github.com/kyleoneill/etch/internal/logger"
	"github.com/kyleoneill/etch/internal/shard"
)

// Table is a point in time view of a table: its catalog
// descriptor plus current shard metadata.
type Table struct {
	Descriptor *catalog.Table
	Metadata   *shard.Metadata
}

type Option interface {
	Apply(*TableManager)
}

// RecordsPerShardOpt sets the capacity used when create-table
// does not ask for one.
type RecordsPerShardOpt struct {
	RecordsPerShard int
}

func (opt *RecordsPerShardOpt) Apply(m *TableManager) {
	if opt.RecordsPerShard > 0 {
		m.recordsPerShard = opt.RecordsPerShard
	}
}

// IndexCacheOpt enables the in-memory id index. Size 0 disables it.
type IndexCacheOpt struct {
	Size int
}

func (opt *IndexCacheOpt) Apply(m *TableManager) {
	m.indexCacheSize = opt.Size
}

type LoggerOpt struct {
	Logger logger.Logger
}

func (opt *LoggerOpt) Apply(m *TableManager) {
	if opt.Logger != nil {
		m.log = opt.Logger
	}
}

// MaxRecordSizeOpt caps the serialized size of a record, _id included.
// Size 0 removes the cap.
type MaxRecordSizeOpt struct {
	Size int
}

func (opt *MaxRecordSizeOpt) Apply(m *TableManager) {
	m.maxRecordSize = opt.Size
}
