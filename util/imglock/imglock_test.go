package imglock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	l, err := Acquire(path)
	require.NoError(t, err)

	_, err = Acquire(path)
	assert.Error(t, err, "second lock on the same image")

	l.Release()
	l2, err := Acquire(path)
	require.NoError(t, err)
	l2.Release()
}
