package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"moodlog-go/internal/moodlog"
)

// FileSystemArchive is a filesystem-based implementation of the Archive
// interface. Exports are stored as files under a single directory:
//
//	<root>/
//	  exports/
//	    <id>.age    (sealed export files)
type FileSystemArchive struct {
	name       string
	root       string
	exportsDir string
}

var _ moodlog.Archive = (*FileSystemArchive)(nil)

// NewFileSystemArchive creates a new filesystem archive rooted at the given path.
func NewFileSystemArchive(name, root string) (*FileSystemArchive, error) {
	exportsDir := filepath.Join(root, "exports")

	if err := os.MkdirAll(exportsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}

	return &FileSystemArchive{
		name:       name,
		root:       root,
		exportsDir: exportsDir,
	}, nil
}

func (a *FileSystemArchive) exportPath(id string) string {
	return filepath.Join(a.exportsDir, id+".age")
}

// Put stores an export identified by id, overwriting any previous one.
func (a *FileSystemArchive) Put(id string, r io.Reader, size int64) error {
	// Write to a temp file first so a failed write never leaves a
	// truncated export behind.
	tmp, err := os.CreateTemp(a.exportsDir, id+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write export: %w", err)
	}
	if written != size {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, a.exportPath(id)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize export: %w", err)
	}
	return nil
}

// Get retrieves an export by id and writes it to w.
func (a *FileSystemArchive) Get(id string, w io.Writer) error {
	f, err := os.Open(a.exportPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("export not found: %s", id)
		}
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	return nil
}

// List returns the ids of all stored exports, sorted.
func (a *FileSystemArchive) List() ([]string, error) {
	entries, err := os.ReadDir(a.exportsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read exports directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".age" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".age")])
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup verifies the exports directory is accessible.
func (a *FileSystemArchive) ValidateSetup() error {
	info, err := os.Stat(a.exportsDir)
	if err != nil {
		return fmt.Errorf("exports directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exports path is not a directory: %s", a.exportsDir)
	}
	return nil
}
