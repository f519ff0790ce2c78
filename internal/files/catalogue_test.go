package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "macrosynergy/internal/errors"
)

func writeFile(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("cid,xcat,real_date,value\n"), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestCatalogue_List(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, dir, "old.csv", now.Add(-2*time.Hour))
	writeFile(t, dir, "new.xlsx", now)
	writeFile(t, dir, "mid.CSV", now.Add(-time.Hour))
	writeFile(t, dir, "notes.txt", now)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0755))

	c := NewCatalogue(dir)
	all, err := c.List("")
	require.NoError(t, err)
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"new.xlsx", "mid.CSV", "old.csv"}, names)
	assert.Equal(t, FormatCSV, all[1].Format)
	assert.Positive(t, all[0].Size)

	csvs, err := c.List(FormatCSV)
	require.NoError(t, err)
	assert.Len(t, csvs, 2)

	latest, ok := Latest(all)
	require.True(t, ok)
	assert.Equal(t, "new.xlsx", latest.Name)
}

func TestCatalogue_MissingDir(t *testing.T) {
	files, err := NewCatalogue(filepath.Join(t.TempDir(), "absent")).List("")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, ok := Latest(files)
	assert.False(t, ok)
}

func TestCatalogue_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fx.csv", time.Now())
	writeFile(t, dir, "notes.txt", time.Now())
	c := NewCatalogue(dir)

	path, err := c.Resolve("fx.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fx.csv"), path)

	tests := []struct {
		name     string
		notFound bool
	}{
		{"", false},
		{"../fx.csv", false},
		{"sub/fx.csv", false},
		{`sub\fx.csv`, false},
		{"notes.txt", false},
		{"absent.csv", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Resolve(tt.name)
			require.Error(t, err)
			if tt.notFound {
				assert.True(t, apperrors.IsNotFoundError(err))
			} else {
				assert.True(t, apperrors.IsValidationError(err))
			}
		})
	}
}
