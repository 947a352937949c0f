package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/kyleoneill/etch/internal/consts"
	"github.com/kyleoneill/etch/internal/fsutil"
	"github.com/kyleoneill/etch/internal/jsonutil"
)

const maxTableNameLen = 64

// имя таблицы становится именем директории на диске
var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidateName(name string) error {
	if !tableNameRe.MatchString(name) {
		return ErrBadTableName(name)
	}
	return nil
}

// Catalog maps table names to descriptors. It is the single source of
// truth for whether a table exists.
type Catalog struct {
	mu          sync.RWMutex
	filePath    string
	tables      []*Table
	nameToTable map[string]*Table
}

// InitCatalog loads the catalog file, creating it as an empty list
// when it does not exist yet.
func InitCatalog(filePath string) (*Catalog, error) {
	rawData, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		if err := fsutil.CreateIfNotExists(filePath, []byte(consts.EmptyList)); err != nil {
			return nil, fmt.Errorf("fsutil.CreateIfNotExists: %w", err)
		}
		rawData = []byte(consts.EmptyList)
	} else if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}

	var tables []*Table
	if err := json.Unmarshal(rawData, &tables); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	nameToTable := make(map[string]*Table, len(tables))
	for _, table := range tables {
		if table == nil {
			return nil, fmt.Errorf("catalog file contains a null table")
		}
		if _, exists := nameToTable[table.Name]; exists {
			return nil, ErrDuplicateTableInCatalog(table.Name)
		}
		nameToTable[table.Name] = table
	}

	return &Catalog{
		filePath:    filePath,
		tables:      tables,
		nameToTable: nameToTable,
	}, nil
}

func (c *Catalog) Contains(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.nameToTable[name]
	return exists
}

func (c *Catalog) Get(name string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	table, exists := c.nameToTable[name]
	return table, exists
}

// Tables returns descriptors in creation order.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Table, len(c.tables))
	copy(result, c.tables)
	return result
}

// Commit persists the catalog file with table appended and then
// registers table in memory. On a write failure memory is untouched.
func (c *Catalog) Commit(table *Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.nameToTable[table.Name]; exists {
		return ErrTableWithNameExists(table.Name)
	}

	pending := make([]*Table, 0, len(c.tables)+1)
	pending = append(pending, c.tables...)
	pending = append(pending, table)

	marshalled, err := jsonutil.Marshal(pending)
	if err != nil {
		return fmt.Errorf("jsonutil.Marshal: %w", err)
	}

	if err := fsutil.AtomicWriteFile(c.filePath, marshalled); err != nil {
		return fmt.Errorf("fsutil.AtomicWriteFile: %w", err)
	}

	c.tables = pending
	c.nameToTable[table.Name] = table
	return nil
}
