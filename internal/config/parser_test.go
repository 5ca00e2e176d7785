package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3tro1d/pybackup/internal/models"
)

func TestParser_LoadReader_PreservesOrder(t *testing.T) {
	ini := `
compression_method = 2
compression_level = 9

[archive1]
name = /backups/docs.zip

[directories1]
a = /home/user/docs
b = /home/user/notes

[archive2]
name = /backups/photos.zip

[directories2]
photos = /srv/photos
`
	parser := NewParser()
	sections, err := parser.LoadReader(ini)

	require.NoError(t, err)
	require.Len(t, sections, 5)

	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.Name
	}
	assert.Equal(t, []string{DefaultSection, "archive1", "directories1", "archive2", "directories2"}, names)

	assert.Equal(t, []models.KeyValue{
		{Key: "a", Value: "/home/user/docs"},
		{Key: "b", Value: "/home/user/notes"},
	}, sections[2].Keys)

	method, ok := sections[0].Get("compression_method")
	assert.True(t, ok)
	assert.Equal(t, "2", method)
}

func TestParser_LoadReader_DropsEmptyDefaultSection(t *testing.T) {
	parser := NewParser()
	sections, err := parser.LoadReader("[archive]\nname = out.zip\n")

	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "archive", sections[0].Name)
}

func TestParser_LoadReader_KeepsHashInPaths(t *testing.T) {
	parser := NewParser()
	sections, err := parser.LoadReader("[directories]\nd = /data/c#/projects\n")

	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "/data/c#/projects", sections[0].Keys[0].Value)
}

func TestParser_LoadReader_Empty(t *testing.T) {
	parser := NewParser()
	sections, err := parser.LoadReader("")

	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestParser_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("[general]\ncompression_method = lzma\n"), 0o600))

	parser := NewParser()
	sections, err := parser.LoadFile(path)

	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "general", sections[0].Name)
}

func TestParser_LoadFile_Missing(t *testing.T) {
	parser := NewParser()
	_, err := parser.LoadFile(filepath.Join(t.TempDir(), "nope.ini"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLocate_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.ini")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	got, err := Locate(path)

	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestLocate_ExplicitMissing(t *testing.T) {
	_, err := Locate(filepath.Join(t.TempDir(), "missing.ini"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocate_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), nil, 0o600))
	t.Chdir(dir)

	got, err := Locate("")

	require.NoError(t, err)
	assert.Equal(t, FileName, got)
}
