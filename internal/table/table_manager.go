package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kyleoneill/etch/internal/catalog"
	"github.com/kyleoneill/etch/internal/consts"
	"github.com/kyleoneill/etch/internal/fsutil"
	"github.com/kyleoneill/etch/internal/logger"
	"github.com/kyleoneill/etch/internal/shard"
	"github.com/kyleoneill/etch/internal/wire"
)

// TableManager is the storage engine. It owns the catalog, the shard
// metadata and the shard files under rootDir and the record id scheme.
//
// Inserts into one table are serialized by a per-table lock, reads take
// the same lock shared. Table creation is serialized process wide.
type TableManager struct {
	rootDir         string
	recordsPerShard int
	indexCacheSize  int
	maxRecordSize   int
	log             logger.Logger

	catalog  *catalog.Catalog
	metadata *shard.MetadataStore
	shards   *shard.FileStore

	createMu sync.Mutex
	locks    *xsync.MapOf[string, *sync.RWMutex]
	index    *lru.Cache[string, json.RawMessage]

	// сохранение метаданных после append, подменяется в тестах
	saveMetadata func(tableName string, metadata *shard.Metadata) error
}

// InitTableManager prepares rootDir and loads the catalog. Any error
// here is a startup failure.
func InitTableManager(rootDir string, opts ...Option) (*TableManager, error) {
	if err := os.MkdirAll(rootDir, consts.DirAccessRight); err != nil {
		return nil, fmt.Errorf("os.MkdirAll: %w", err)
	}

	m := &TableManager{
		rootDir:         rootDir,
		recordsPerShard: shard.DefaultRecordsPerShard,
		maxRecordSize:   wire.MaxRecordSize,
		log:             logger.NewNopLogger(),
		metadata:        shard.NewMetadataStore(rootDir),
		shards:          shard.NewFileStore(rootDir),
		locks:           xsync.NewMapOf[string, *sync.RWMutex](),
	}
	for _, o := range opts {
		o.Apply(m)
	}
	m.saveMetadata = m.metadata.Save

	if m.indexCacheSize > 0 {
		index, err := lru.New[string, json.RawMessage](m.indexCacheSize)
		if err != nil {
			return nil, fmt.Errorf("lru.New: %w", err)
		}
		m.index = index
	}

	if err := m.removeStagedLeftovers(); err != nil {
		return nil, fmt.Errorf("TableManager.removeStagedLeftovers: %w", err)
	}

	tablesCatalog, err := catalog.InitCatalog(filepath.Join(rootDir, consts.CatalogFileName))
	if err != nil {
		return nil, fmt.Errorf("catalog.InitCatalog: %w", err)
	}
	m.catalog = tablesCatalog

	m.log.Info("table manager: loaded catalog", "root", rootDir, "tables", len(tablesCatalog.Tables()))

	return m, nil
}

func (m *TableManager) Catalog() *catalog.Catalog {
	return m.catalog
}

// CreateNewTable creates an active table with one empty shard.
// recordsPerShard <= 0 means the manager default.
//
// The table directory is staged under a temporary name and renamed into
// place, then the catalog file is rewritten, then the table becomes
// visible in memory. The catalog file is the commit point.
func (m *TableManager) CreateNewTable(
	tableName string,
	schema *catalog.Schema,
	recordsPerShard int,
) (*catalog.Table, error) {
	if err := catalog.ValidateName(tableName); err != nil {
		return nil, err
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if m.catalog.Contains(tableName) {
		return nil, catalog.ErrTableWithNameExists(tableName)
	}

	if recordsPerShard <= 0 {
		recordsPerShard = m.recordsPerShard
	}

	stagingDir, err := os.MkdirTemp(m.rootDir, "."+tableName+".*"+consts.TmpSuffix)
	if err != nil {
		return nil, fmt.Errorf("os.MkdirTemp: %w", err)
	}
	staged := true
	defer func() {
		if staged {
			os.RemoveAll(stagingDir)
		}
	}()

	if err := os.Chmod(stagingDir, consts.DirAccessRight); err != nil {
		return nil, fmt.Errorf("os.Chmod: %w", err)
	}

	if err := m.shards.CreateShardIn(stagingDir, tableName, 0); err != nil {
		return nil, fmt.Errorf("FileStore.CreateShardIn: %w", err)
	}

	if err := m.metadata.SaveIn(stagingDir, shard.NewMetadata(recordsPerShard)); err != nil {
		return nil, fmt.Errorf("MetadataStore.SaveIn: %w", err)
	}

	tableDir := shard.TableDir(m.rootDir, tableName)

	// директория есть, а таблицы в каталоге нет: прошлое создание
	// упало до записи каталога
	if _, err := os.Stat(tableDir); err == nil {
		m.log.Warn("table manager: removing leftover table directory", "table", tableName)
		if err := os.RemoveAll(tableDir); err != nil {
			return nil, fmt.Errorf("os.RemoveAll: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("os.Stat: %w", err)
	}

	if err := os.Rename(stagingDir, tableDir); err != nil {
		return nil, fmt.Errorf("os.Rename: %w", err)
	}
	staged = false

	if err := fsutil.SyncDir(m.rootDir); err != nil {
		return nil, fmt.Errorf("fsutil.SyncDir: %w", err)
	}

	table := catalog.NewTable(tableName, schema)
	if err := m.catalog.Commit(table); err != nil {
		os.RemoveAll(tableDir)
		return nil, fmt.Errorf("Catalog.Commit: %w", err)
	}

	TablesCreated.Inc()
	m.log.Info(
		"table manager: table created",
		"table", tableName,
		"records_per_shard", recordsPerShard,
	)

	return table, nil
}

// Insert stores rawRecord in the first shard that has room and returns
// the identifier assigned to it. A record too large to be read back in
// one frame is rejected before anything is written.
//
// The record is appended to the shard file before the fill count is
// saved. If saving metadata fails the append is rolled back, so metadata
// never counts a record that is not in the shard.
func (m *TableManager) Insert(tableName string, rawRecord map[string]json.RawMessage) (string, error) {
	if !m.catalog.Contains(tableName) {
		return "", ErrTableWithNameDoesntExist(tableName)
	}

	lock := m.tableLock(tableName)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.metadata.Load(tableName)
	if err != nil {
		return "", fmt.Errorf("MetadataStore.Load: %w", err)
	}

	metadata := current.Clone()

	shardIndex, found := metadata.FirstAvailable()
	if !found {
		// все шарды заполнены, запись уйдёт в следующий
		shardIndex = metadata.NumShards()
	}

	id, err := NewRecordID(shardIndex)
	if err != nil {
		return "", fmt.Errorf("NewRecordID: %w", err)
	}

	record, err := NewRecordWithID(rawRecord, id)
	if err != nil {
		return "", fmt.Errorf("NewRecordWithID: %w", err)
	}

	serialized, err := record.Serialize()
	if err != nil {
		return "", fmt.Errorf("Record.Serialize: %w", err)
	}

	if m.maxRecordSize > 0 && len(serialized) > m.maxRecordSize {
		return "", ErrRecordExceedsLimit(len(serialized), m.maxRecordSize)
	}

	if !found {
		if err := m.createRolloverShard(tableName, shardIndex); err != nil {
			return "", fmt.Errorf("TableManager.createRolloverShard: %w", err)
		}
		metadata.FillCounts = append(metadata.FillCounts, 0)
	}

	previous, err := m.shards.AppendRecord(
		tableName,
		shardIndex,
		serialized,
		metadata.FillCounts[shardIndex],
	)
	if err != nil {
		return "", fmt.Errorf("FileStore.AppendRecord: %w", err)
	}

	metadata.FillCounts[shardIndex]++
	if err := m.saveMetadata(tableName, metadata); err != nil {
		if restoreErr := m.shards.Restore(tableName, shardIndex, previous); restoreErr != nil {
			return "", fmt.Errorf(
				"MetadataStore.Save: %w",
				errors.Join(err, fmt.Errorf("FileStore.Restore: %w", restoreErr)),
			)
		}
		return "", fmt.Errorf("MetadataStore.Save: %w", err)
	}

	if m.index != nil {
		m.index.Add(indexKey(tableName, id), serialized)
	}

	RecordsInserted.WithLabelValues(tableName).Inc()

	return id, nil
}

// createRolloverShard creates shard index for a table whose shards are
// all full. An empty file left by an interrupted rollover is reused.
func (m *TableManager) createRolloverShard(tableName string, index int) error {
	err := m.shards.CreateShard(tableName, index)
	if err == nil {
		ShardRollovers.WithLabelValues(tableName).Inc()
		m.log.Info("table manager: shard rollover", "table", tableName, "shard", index)
		return nil
	}

	if !errors.Is(err, shard.ErrShardAlreadyExists) {
		return fmt.Errorf("FileStore.CreateShard: %w", err)
	}

	count, err := m.shards.CountRecords(tableName, index)
	if err != nil {
		return fmt.Errorf("FileStore.CountRecords: %w", err)
	}

	if count != 0 {
		return shard.ErrMetadataInconsistent(
			tableName,
			fmt.Sprintf("shard %d is not in metadata but holds %d records", index, count),
		)
	}

	m.log.Warn("table manager: reusing empty orphan shard", "table", tableName, "shard", index)
	return nil
}

// FindByID returns the record with the given identifier. The shard
// named by the id prefix is scanned in full.
func (m *TableManager) FindByID(tableName string, id string) (Record, error) {
	if !m.catalog.Contains(tableName) {
		return nil, ErrTableWithNameDoesntExist(tableName)
	}

	shardIndex, err := ParseRecordID(id)
	if err != nil {
		return nil, err
	}

	if m.index != nil {
		if cached, ok := m.index.Get(indexKey(tableName, id)); ok {
			IndexLookups.WithLabelValues("hit").Inc()
			return DecodeRecord(cached)
		}
		IndexLookups.WithLabelValues("miss").Inc()
	}

	lock := m.tableLock(tableName)
	lock.RLock()
	defer lock.RUnlock()

	metadata, err := m.metadata.Load(tableName)
	if err != nil {
		return nil, fmt.Errorf("MetadataStore.Load: %w", err)
	}

	if !metadata.HasShard(shardIndex) {
		return nil, ErrRecordWithIDNotFound(tableName, id)
	}

	startedAt := time.Now()
	defer func() {
		ShardScanDuration.Observe(time.Since(startedAt).Seconds())
	}()

	records, err := m.shards.ReadShard(tableName, shardIndex)
	if err != nil {
		return nil, fmt.Errorf("FileStore.ReadShard: %w", err)
	}

	for position, raw := range records {
		record, err := DecodeRecord(raw)
		if err != nil {
			return nil, shard.ErrShardCorrupted(
				tableName,
				shardIndex,
				fmt.Sprintf("record %d: %s", position, err),
			)
		}

		recordID, err := record.ID()
		if err != nil {
			return nil, shard.ErrShardCorrupted(
				tableName,
				shardIndex,
				fmt.Sprintf("record %d: %s", position, err),
			)
		}

		if recordID == id {
			if m.index != nil {
				m.index.Add(indexKey(tableName, id), raw)
			}
			return record, nil
		}
	}

	return nil, ErrRecordWithIDNotFound(tableName, id)
}

// Describe returns the descriptor and current shard metadata of a table.
func (m *TableManager) Describe(tableName string) (*Table, error) {
	descriptor, exists := m.catalog.Get(tableName)
	if !exists {
		return nil, ErrTableWithNameDoesntExist(tableName)
	}

	lock := m.tableLock(tableName)
	lock.RLock()
	defer lock.RUnlock()

	metadata, err := m.metadata.Load(tableName)
	if err != nil {
		return nil, fmt.Errorf("MetadataStore.Load: %w", err)
	}

	return &Table{
		Descriptor: descriptor,
		Metadata:   metadata,
	}, nil
}

func (m *TableManager) tableLock(tableName string) *sync.RWMutex {
	lock, _ := m.locks.LoadOrCompute(tableName, func() *sync.RWMutex {
		return &sync.RWMutex{}
	})
	return lock
}

// removeStagedLeftovers drops temp files and staging directories left
// behind by a crash. None of them is referenced by committed state.
func (m *TableManager) removeStagedLeftovers() error {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return fmt.Errorf("os.ReadDir: %w", err)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(m.rootDir, entry.Name())

		if strings.HasSuffix(entry.Name(), consts.TmpSuffix) {
			m.log.Warn("table manager: removing staged leftover", "path", entryPath)
			if err := os.RemoveAll(entryPath); err != nil {
				return fmt.Errorf("os.RemoveAll: %w", err)
			}
			continue
		}

		if !entry.IsDir() {
			continue
		}

		tableEntries, err := os.ReadDir(entryPath)
		if err != nil {
			return fmt.Errorf("os.ReadDir: %w", err)
		}

		for _, tableEntry := range tableEntries {
			if !strings.HasSuffix(tableEntry.Name(), consts.TmpSuffix) {
				continue
			}

			tmpPath := filepath.Join(entryPath, tableEntry.Name())
			m.log.Warn("table manager: removing staged leftover", "path", tmpPath)
			if err := os.Remove(tmpPath); err != nil {
				return fmt.Errorf("os.Remove: %w", err)
			}
		}
	}

	return nil
}

func indexKey(tableName, id string) string {
	return tableName + "/" + id
}
