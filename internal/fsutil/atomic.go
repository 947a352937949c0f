package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kyleoneill/etch/internal/consts"
)

// writeAndSync пишет data и сбрасывает файл на диск, подменяется в тестах
var writeAndSync = func(descriptor *os.File, data []byte) error {
	if _, err := descriptor.Write(data); err != nil {
		return fmt.Errorf("File.Write: %w", err)
	}

	if err := descriptor.Sync(); err != nil {
		return fmt.Errorf("File.Sync: %w", err)
	}

	return nil
}

// AtomicWriteFile replaces path with data so that a reader sees either
// the old or the new content, never a partial write.
func AtomicWriteFile(path string, data []byte) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	descriptor, err := os.CreateTemp(dir, name+".*"+consts.TmpSuffix)
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}

	tmpPath := descriptor.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := writeAndSync(descriptor, data); err != nil {
		descriptor.Close()
		return err
	}

	if err := descriptor.Close(); err != nil {
		return fmt.Errorf("File.Close: %w", err)
	}

	if err := os.Chmod(tmpPath, consts.PosixAccessRight); err != nil {
		return fmt.Errorf("os.Chmod: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	committed = true

	return SyncDir(dir)
}

// SyncDir flushes directory entries after a rename.
func SyncDir(dir string) error {
	descriptor, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("os.Open: %w", err)
	}
	defer descriptor.Close()

	if err := descriptor.Sync(); err != nil {
		return fmt.Errorf("File.Sync: %w", err)
	}

	return nil
}

// CreateIfNotExists creates path with data, failing with os.ErrExist
// if the file is already there. A failed write leaves no file behind.
func CreateIfNotExists(path string, data []byte) error {
	descriptor, err := os.OpenFile(
		path,
		consts.CreateIfNotExists,
		consts.PosixAccessRight,
	)
	if err != nil {
		return fmt.Errorf("os.OpenFile: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			descriptor.Close()
			os.Remove(path)
		}
	}()

	if err := writeAndSync(descriptor, data); err != nil {
		return err
	}

	committed = true
	if err := descriptor.Close(); err != nil {
		return fmt.Errorf("File.Close: %w", err)
	}

	return nil
}
