//go:build unix

// Package shmem maps a file so that two processes can share an intnet
// buffer.
package shmem

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Region is a file mapped MAP_SHARED into this process.
type Region struct {
	Path string
	Mem  []byte

	f *os.File
}

// Create makes a new file of size bytes at path and maps it. It fails if the
// file already exists.
func Create(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid region size %d", size)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "creating region %s", path)
	}

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "resizing region %s", path)
	}

	r, err := mapFile(path, f, size)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return r, nil
}

// Open maps an existing file in its entirety.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening region %s", path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat of region %s", path)
	}

	if fi.Size() <= 0 || fi.Size() > int64(^uint32(0)) {
		f.Close()
		return nil, errors.Errorf("region %s has unusable size %d", path, fi.Size())
	}

	return mapFile(path, f, int(fi.Size()))
}

func mapFile(path string, f *os.File, size int) (*Region, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mapping region %s", path)
	}

	return &Region{
		Path: path,
		Mem:  mem,
		f:    f,
	}, nil
}

// Sync flushes the mapping to the backing file.
func (r *Region) Sync() error {
	return errors.Wrap(unix.Msync(r.Mem, unix.MS_SYNC), "syncing region")
}

// Close unmaps the region. Mem must not be used afterwards.
func (r *Region) Close() error {
	if r.Mem == nil {
		return nil
	}

	err := unix.Munmap(r.Mem)
	r.Mem = nil

	if cerr := r.f.Close(); err == nil {
		err = cerr
	}

	return errors.Wrapf(err, "closing region %s", r.Path)
}

// Remove closes the region and deletes its file.
func (r *Region) Remove() error {
	if err := r.Close(); err != nil {
		return err
	}

	return errors.Wrapf(os.Remove(r.Path), "removing region %s", r.Path)
}
