// Package config loads the backup configuration and resolves it into a plan.
package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"gopkg.in/ini.v1"

	"github.com/m3tro1d/pybackup/internal/models"
)

// FileName is the configuration file name looked up by Locate.
const FileName = "pybackup.ini"

// DefaultSection is the name of the unnamed top area of the file.
const DefaultSection = "DEFAULT"

// ErrNotFound is returned by Locate when no configuration file exists.
var ErrNotFound = errors.New("configuration file not found")

// Parser handles configuration file parsing.
type Parser struct {
	opts ini.LoadOptions
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	// Paths may contain '#' or ';', so inline comments are not stripped.
	return &Parser{
		opts: ini.LoadOptions{
			IgnoreInlineComment:        true,
			AllowPythonMultilineValues: true,
		},
	}
}

// LoadFile loads the sections of the file at path.
func (p *Parser) LoadFile(path string) ([]models.Section, error) {
	f, err := ini.LoadSources(p.opts, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	return sections(f), nil
}

// LoadReader loads sections from content (useful for testing).
func (p *Parser) LoadReader(content string) ([]models.Section, error) {
	f, err := ini.LoadSources(p.opts, []byte(content))
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	return sections(f), nil
}

// sections flattens f keeping section and key order. The default section is
// dropped when it holds no keys.
func sections(f *ini.File) []models.Section {
	var out []models.Section
	for _, sec := range f.Sections() {
		if sec.Name() == DefaultSection && len(sec.Keys()) == 0 {
			continue
		}
		s := models.Section{Name: sec.Name()}
		for _, key := range sec.Keys() {
			s.Keys = append(s.Keys, models.KeyValue{Key: key.Name(), Value: key.String()})
		}
		out = append(out, s)
	}
	return out
}

// Locate returns the configuration file to use. An explicit path always
// wins; otherwise the working directory, the executable's directory and the
// XDG config directory are searched in that order.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Mark(errors.Wrapf(err, "config file %s", explicit), ErrNotFound)
		}
		return explicit, nil
	}

	candidates := []string{FileName}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), FileName))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	path, err := xdg.SearchConfigFile(filepath.Join("pybackup", FileName))
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "searching config directories"), ErrNotFound)
	}
	return path, nil
}
