//go:build unix

package shmem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRegion(t *testing.T) {
	t.Run("create and open share memory", func(t *testing.T) {
		r := require.New(t)

		path := filepath.Join(t.TempDir(), "buf")

		a, err := Create(path, 8192)
		r.NoError(err)
		defer a.Close()

		r.Len(a.Mem, 8192)

		b, err := Open(path)
		r.NoError(err)
		defer b.Close()

		r.Len(b.Mem, 8192)

		a.Mem[100] = 42
		r.Equal(byte(42), b.Mem[100])

		b.Mem[8191] = 7
		r.Equal(byte(7), a.Mem[8191])

		r.NoError(a.Sync())
	})

	t.Run("create refuses an existing file", func(t *testing.T) {
		r := require.New(t)

		path := filepath.Join(t.TempDir(), "buf")
		r.NoError(os.WriteFile(path, []byte("x"), 0600))

		_, err := Create(path, 4096)
		r.Error(err)
		r.True(os.IsExist(errors.Cause(err)))
	})

	t.Run("open refuses an empty file", func(t *testing.T) {
		r := require.New(t)

		path := filepath.Join(t.TempDir(), "buf")
		r.NoError(os.WriteFile(path, nil, 0600))

		_, err := Open(path)
		r.Error(err)
	})

	t.Run("remove deletes the file", func(t *testing.T) {
		r := require.New(t)

		path := filepath.Join(t.TempDir(), "buf")

		a, err := Create(path, 4096)
		r.NoError(err)

		r.NoError(a.Remove())

		_, err = os.Stat(path)
		r.True(os.IsNotExist(err))

		r.NoError(a.Close())
	})
}
