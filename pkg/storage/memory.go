package storage

import (
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	"github.com/go-git/go-billy/v5/memfs"
)

// NewMemory returns an in-memory filesystem that is safe for concurrent
// use. memfs keeps its directory tree in unguarded maps, so every call that
// touches the tree is serialized. Reads and writes on an open file are not,
// since each download owns its file.
func NewMemory() billy.Filesystem {
	return &lockedFS{fs: memfs.New()}
}

type lockedFS struct {
	mu sync.Mutex
	fs billy.Filesystem
}

func (l *lockedFS) Create(filename string) (billy.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Create(filename)
}

func (l *lockedFS) Open(filename string) (billy.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Open(filename)
}

func (l *lockedFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.OpenFile(filename, flag, perm)
}

func (l *lockedFS) Stat(filename string) (os.FileInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Stat(filename)
}

func (l *lockedFS) Lstat(filename string) (os.FileInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Lstat(filename)
}

func (l *lockedFS) Rename(oldpath, newpath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Rename(oldpath, newpath)
}

func (l *lockedFS) Remove(filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Remove(filename)
}

func (l *lockedFS) MkdirAll(filename string, perm os.FileMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.MkdirAll(filename, perm)
}

func (l *lockedFS) ReadDir(path string) ([]os.FileInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.ReadDir(path)
}

func (l *lockedFS) TempFile(dir, prefix string) (billy.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.TempFile(dir, prefix)
}

func (l *lockedFS) Symlink(target, link string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Symlink(target, link)
}

func (l *lockedFS) Readlink(link string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fs.Readlink(link)
}

func (l *lockedFS) Join(elem ...string) string {
	return l.fs.Join(elem...)
}

func (l *lockedFS) Root() string {
	return l.fs.Root()
}

// Chroot goes through the lock as well, the underlying tree is shared.
func (l *lockedFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(l, l.Join(l.Root(), path)), nil
}

func (l *lockedFS) Capabilities() billy.Capability {
	return billy.Capabilities(l.fs)
}
