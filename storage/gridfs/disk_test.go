package gridfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/uploads/")
	require.NoError(t, err)

	p, err := store.Save([]byte("hello"), "report.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "/uploads/"))
	assert.True(t, strings.HasSuffix(p, ".pdf"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(p)))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Remove(p))
	_, err = os.Stat(filepath.Join(dir, filepath.Base(p)))
	assert.True(t, os.IsNotExist(err))

	// removing an already-gone file is not an error
	assert.NoError(t, store.Remove(p))
}
