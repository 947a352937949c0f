package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.etch")

	require.NoError(t, AtomicWriteFile(path, []byte(`{"v":1}`)))
	require.NoError(t, AtomicWriteFile(path, []byte(`{"v":2}`)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	// временные файлы не остаются в директории
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}

func TestAtomicWriteFile_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "metadata.etch")
	assert.Error(t, AtomicWriteFile(path, []byte(`{}`)))
}

func TestCreateIfNotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub_table_0.etch")

	require.NoError(t, CreateIfNotExists(path, []byte(`[]`)))

	err := CreateIfNotExists(path, []byte(`[]`))
	assert.ErrorIs(t, err, os.ErrExist)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func failWrites(t *testing.T) error {
	t.Helper()

	errWrite := errors.New("no space left on device")
	original := writeAndSync
	writeAndSync = func(descriptor *os.File, data []byte) error {
		// половина данных успевает попасть в файл
		descriptor.Write(data[:len(data)/2])
		return errWrite
	}
	t.Cleanup(func() { writeAndSync = original })

	return errWrite
}

func TestCreateIfNotExists_WriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub_table_1.etch")

	errWrite := failWrites(t)
	err := CreateIfNotExists(path, []byte(`[]`))
	assert.ErrorIs(t, err, errWrite)

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	writeAndSync = func(descriptor *os.File, data []byte) error {
		_, err := descriptor.Write(data)
		return err
	}

	require.NoError(t, CreateIfNotExists(path, []byte(`[]`)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestAtomicWriteFile_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.etch")
	require.NoError(t, AtomicWriteFile(path, []byte(`{"v":1}`)))

	errWrite := failWrites(t)
	err := AtomicWriteFile(path, []byte(`{"v":2}`))
	assert.ErrorIs(t, err, errWrite)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}
