// Package storage writes harvest output through a go-billy filesystem so the
// same code targets the local disk in production and memfs in tests.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// PartSuffix marks a file that is still being written.
const PartSuffix = ".part"

// NewOS returns a filesystem rooted at dir on the local disk.
func NewOS(dir string) billy.Filesystem {
	return osfs.New(dir)
}

// EnsureDirs creates every directory in dirs. Existing directories are left
// alone, so the call is idempotent.
func EnsureDirs(fs billy.Filesystem, dirs ...string) error {
	for _, dir := range dirs {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateAtomic streams r into path. Data goes to path+PartSuffix first and
// is renamed over path only once fully written, so a failed copy never
// leaves a truncated file at path. Errors returned by r are wrapped in a
// *SourceError so callers can tell them apart from local write failures.
func CreateAtomic(fs billy.Filesystem, path string, r io.Reader) (int64, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}

	tmp := path + PartSuffix
	f, err := fs.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	src := &sourceReader{r: r}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		_ = fs.Remove(tmp)
		if copyErr != nil {
			if src.err != nil {
				return n, &SourceError{Err: copyErr}
			}
			return n, fmt.Errorf("write %s: %w", tmp, copyErr)
		}
		return n, fmt.Errorf("close %s: %w", tmp, closeErr)
	}

	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return n, fmt.Errorf("rename %s: %w", tmp, err)
	}

	return n, nil
}

// WriteFileAtomic replaces path with data.
func WriteFileAtomic(fs billy.Filesystem, path string, data []byte) error {
	_, err := CreateAtomic(fs, path, bytes.NewReader(data))
	return err
}

// ReadFile reads the whole file at path.
func ReadFile(fs billy.Filesystem, path string) ([]byte, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether path exists.
func Exists(fs billy.Filesystem, path string) (bool, error) {
	_, err := fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}

// SourceError reports that reading the source stream failed, as opposed to
// writing the destination.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return "read source: " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
