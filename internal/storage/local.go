package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores artifacts as flat files in a directory named by settings.
type Local struct{}

// ContentType is the MIME type served for a stored artifact.
func ContentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".apk") {
		return "application/vnd.android.package-archive"
	}
	return "application/octet-stream"
}

func (l *Local) Write(dir, name string, r io.Reader) (int64, error) {
	if err := ValidateStoredName(name); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create storage dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write file: %w", err)
	}
	return n, nil
}

// Open returns the named artifact for reading. The name is validated before
// the filesystem is touched.
func (l *Local) Open(dir, name string) (*os.File, fs.FileInfo, error) {
	if err := ValidateStoredName(name); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fs.ErrNotExist
	}
	return f, info, nil
}

func (l *Local) Remove(dir, name string) error {
	if err := ValidateStoredName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
