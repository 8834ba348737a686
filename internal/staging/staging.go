// Package staging holds uploaded images on local disk for the duration of
// one request.
package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Area is a directory under which each request gets its own uuid-named
// subdirectory, so concurrent uploads of the same filename never collide.
type Area struct {
	root string
}

func NewArea(root string) (*Area, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Area{root: root}, nil
}

// File is one staged upload. Release removes it.
type File struct {
	ID   uuid.UUID
	Path string
	dir  string
}

// Stage writes data to <root>/<uuid>/<base of name>.
func (a *Area) Stage(name string, data []byte) (*File, error) {
	id := uuid.New()
	dir := filepath.Join(a.root, id.String())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		base = "upload"
	}
	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write staged file: %w", err)
	}

	return &File{ID: id, Path: path, dir: dir}, nil
}

// Read returns the staged bytes.
func (f *File) Read() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read staged file: %w", err)
	}
	return data, nil
}

// Release deletes the staged file and its directory. Safe to call twice.
func (f *File) Release() error {
	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("release staged file: %w", err)
	}
	return nil
}
