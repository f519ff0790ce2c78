// Package files lists and resolves the frame files written to the exports
// directory by downloads and the CLIs.
package files

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
)

// Frame file formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// FileInfo describes one exported frame file.
type FileInfo struct {
	Name    string    `json:"name"`
	Format  string    `json:"format"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// Catalogue lists frame files in a single directory. Subdirectories are not
// walked.
type Catalogue struct {
	dir string
}

// NewCatalogue creates a catalogue over dir.
func NewCatalogue(dir string) *Catalogue {
	return &Catalogue{dir: dir}
}

// Dir returns the catalogue directory.
func (c *Catalogue) Dir() string { return c.dir }

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	}
	return ""
}

// List returns the frame files, newest first. An empty format lists both; a
// missing directory lists nothing.
func (c *Catalogue) List(format string) ([]FileInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list "+c.dir, err)
	}

	files := []FileInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f := formatOf(entry.Name())
		if f == "" || (format != "" && f != format) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Format:  f,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Resolve returns the path of a listed file. Names that escape the directory
// or are not frame files are rejected.
func (c *Catalogue) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", apperrors.Validationf("invalid file name %q", name)
	}
	if formatOf(name) == "" {
		return "", apperrors.Validationf("%s is not a csv or xlsx file", name)
	}
	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", apperrors.NewNotFoundError("export " + name)
	}
	return path, nil
}

// Latest returns the most recently modified file.
func Latest(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}
	latest := files[0]
	for _, f := range files[1:] {
		if f.ModTime.After(latest.ModTime) {
			latest = f
		}
	}
	return latest, true
}
