package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"

	"github.com/m3tro1d/pybackup/internal/models"
)

// Section name prefixes and keys understood by the resolver.
const (
	GeneralSection    = "general"
	archivePrefix     = "archive"
	directoriesPrefix = "directories"

	keyName    = "name"
	keyMethod  = "compression_method"
	keyLevel   = "compression_level"
	keyPairing = "pairing"
)

// DateLayout is the format of the date inserted by AppendDate (DD-MM-YY).
const DateLayout = "02-01-06"

// ErrEmptyConfig is returned by Resolve when the configuration holds nothing at all.
var ErrEmptyConfig = errors.New("configuration is empty")

// Options controls how archive targets are resolved.
type Options struct {
	AppendDate bool
	Now        func() time.Time   // defaults to time.Now
	Pairing    models.PairingMode // overrides the "pairing" key when set
}

// Resolve turns the sections of a configuration file into a backup plan.
// Recoverable problems are collected in plan.Warnings.
func Resolve(sections []models.Section, opts Options) (*models.BackupPlan, error) {
	if len(sections) == 0 {
		return nil, ErrEmptyConfig
	}

	general := GeneralSettings(sections)
	compression, warnings := ResolveCompressionSettings(general)

	if opts.Pairing == "" {
		mode, warning := resolvePairing(general)
		if warning != "" {
			warnings = append(warnings, warning)
		}
		opts.Pairing = mode
	}

	plan := ResolveArchiveTargets(sections, opts)
	plan.Compression = compression
	plan.Warnings = append(warnings, plan.Warnings...)
	for i := range plan.Targets {
		plan.Targets[i].Compression = compression
	}

	return &plan, nil
}

// GeneralSettings merges the default and "general" sections. Keys of the
// "general" section take precedence.
func GeneralSettings(sections []models.Section) models.Section {
	merged := models.Section{Name: GeneralSection}
	var defaults []models.KeyValue
	for _, sec := range sections {
		switch {
		case strings.EqualFold(sec.Name, GeneralSection):
			merged.Keys = append(merged.Keys, sec.Keys...)
		case sec.Name == DefaultSection:
			defaults = append(defaults, sec.Keys...)
		}
	}
	merged.Keys = append(merged.Keys, defaults...)
	return merged
}

func isGeneral(name string) bool {
	return name == DefaultSection || strings.EqualFold(name, GeneralSection)
}

// ResolveCompressionSettings reads compression_method and compression_level.
// Absent keys keep their defaults. Any invalid value makes the whole result
// fall back to deflated/5 and is reported as a warning; it never fails.
func ResolveCompressionSettings(general models.Section) (models.CompressionSettings, []string) {
	settings := models.DefaultCompression()

	if raw, ok := general.Get(keyMethod); ok {
		method, err := parseMethod(raw)
		if err != nil {
			return models.DefaultCompression(), []string{fallbackWarning(err)}
		}
		settings.Method = method
	}

	if raw, ok := general.Get(keyLevel); ok {
		level, err := parseDecimal(raw)
		if err != nil {
			return models.DefaultCompression(), []string{
				fallbackWarning(errors.Newf("%s %q is not an integer", keyLevel, raw)),
			}
		}
		settings.Level = level
	}

	lo, hi := settings.Method.LevelRange()
	if settings.Level < lo || settings.Level > hi {
		return models.DefaultCompression(), []string{
			fallbackWarning(errors.Newf("%s %d is outside %d-%d for %s",
				keyLevel, settings.Level, lo, hi, settings.Method)),
		}
	}

	return settings, nil
}

func parseMethod(raw string) (models.CompressionMethod, error) {
	value := strings.ToLower(strings.TrimSpace(raw))

	if idx, err := parseDecimal(value); err == nil {
		method := models.CompressionMethod(idx)
		if !method.Valid() {
			return 0, errors.Newf("%s %q is out of range %d-%d",
				keyMethod, raw, int(models.Stored), int(models.LZMA))
		}
		return method, nil
	}

	value = strings.TrimPrefix(value, "zip_")
	for m := models.Stored; m <= models.LZMA; m++ {
		if value == m.String() {
			return m, nil
		}
	}
	return 0, errors.Newf("%s %q is not a known method", keyMethod, raw)
}

// parseDecimal reads raw as a base-10 integer. Leading zeros are allowed and
// base prefixes such as 0x or 0o are not.
func parseDecimal(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	sign := ""
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return 0, errors.Newf("%q is not a decimal integer", raw)
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return cast.ToIntE(sign + s)
}

func fallbackWarning(err error) string {
	return fmt.Sprintf("%v; falling back to %s", err, models.DefaultCompression())
}

func resolvePairing(general models.Section) (models.PairingMode, string) {
	raw, ok := general.Get(keyPairing)
	if !ok {
		return models.PairPositional, ""
	}
	switch mode := models.PairingMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case models.PairPositional, models.PairSuffix:
		return mode, ""
	default:
		return models.PairPositional, fmt.Sprintf("unknown %s %q; using %s", keyPairing, raw, models.PairPositional)
	}
}

type archiveSection struct {
	section string
	suffix  string
	name    string // empty when the section has no usable destination
}

type directoryGroup struct {
	section string
	suffix  string
	dirs    []string
}

// ResolveArchiveTargets pairs archive sections with directories sections.
// With positional pairing (the default) the Nth archive section gets the Nth
// directories section regardless of their names, so both kinds must be kept
// in matching order. A malformed archive section still consumes its slot.
func ResolveArchiveTargets(sections []models.Section, opts Options) models.BackupPlan {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pairing := opts.Pairing
	if pairing == "" {
		pairing = models.PairPositional
	}

	plan := models.BackupPlan{Pairing: pairing}
	warn := func(format string, args ...any) {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf(format, args...))
	}

	var archives []archiveSection
	var groups []directoryGroup
	for _, sec := range sections {
		switch {
		case isGeneral(sec.Name):
			continue
		case strings.HasPrefix(sec.Name, archivePrefix):
			a := archiveSection{section: sec.Name, suffix: strings.TrimPrefix(sec.Name, archivePrefix)}
			name, problem := archiveName(sec)
			if problem != "" {
				warn("section %q: %s", sec.Name, problem)
			}
			if name != "" && opts.AppendDate {
				name = AppendDate(name, now())
			}
			a.name = name
			archives = append(archives, a)
		case strings.HasPrefix(sec.Name, directoriesPrefix):
			g := directoryGroup{section: sec.Name, suffix: strings.TrimPrefix(sec.Name, directoriesPrefix)}
			for _, kv := range sec.Keys {
				g.dirs = append(g.dirs, expandEnv(kv.Value))
			}
			groups = append(groups, g)
		default:
			warn("ignoring section %q: not an archive or directories section", sec.Name)
		}
	}

	addTarget := func(a archiveSection, g directoryGroup) {
		if a.name == "" {
			warn("skipping section %q: section %q has no destination", g.section, a.section)
			return
		}
		plan.Targets = append(plan.Targets, models.ArchiveTarget{Name: a.name, SourceDirs: g.dirs})
	}

	switch pairing {
	case models.PairSuffix:
		bySuffix := make(map[string]int, len(groups))
		for i, g := range groups {
			if _, dup := bySuffix[g.suffix]; dup {
				warn("ignoring section %q: duplicate suffix %q", g.section, g.suffix)
				continue
			}
			bySuffix[g.suffix] = i
		}
		used := make(map[int]bool, len(groups))
		for _, a := range archives {
			i, ok := bySuffix[a.suffix]
			if !ok {
				warn("section %q has no matching %s%s section", a.section, directoriesPrefix, a.suffix)
				continue
			}
			used[i] = true
			addTarget(a, groups[i])
		}
		for i, g := range groups {
			if bySuffix[g.suffix] == i && !used[i] {
				warn("section %q has no matching %s%s section", g.section, archivePrefix, g.suffix)
			}
		}
	default:
		n := min(len(archives), len(groups))
		for i := 0; i < n; i++ {
			addTarget(archives[i], groups[i])
		}
		for _, a := range archives[n:] {
			warn("section %q has no directories section to pair with", a.section)
		}
		for _, g := range groups[n:] {
			warn("section %q has no archive section to pair with", g.section)
		}
	}

	return plan
}

// archiveName returns the destination of an archive section and a problem
// description when the section is not exactly one "name" key.
func archiveName(sec models.Section) (string, string) {
	if name, ok := sec.Get(keyName); ok {
		name = expandEnv(strings.TrimSpace(name))
		if name == "" {
			return "", "empty name"
		}
		if len(sec.Keys) > 1 {
			return name, fmt.Sprintf("ignoring %d keys besides %q", len(sec.Keys)-1, keyName)
		}
		return name, ""
	}

	switch len(sec.Keys) {
	case 0:
		return "", "no destination key"
	case 1:
		name := expandEnv(strings.TrimSpace(sec.Keys[0].Value))
		if name == "" {
			return "", "empty destination"
		}
		return name, ""
	default:
		return "", fmt.Sprintf("%d keys and none is %q", len(sec.Keys), keyName)
	}
}

// AppendDate inserts now as DD-MM-YY right before the extension of the file
// name: "backup.zip" becomes "backup-05-03-24.zip". Only the last extension
// of the base name is considered; a name without one gets the date appended.
func AppendDate(name string, now time.Time) string {
	dir, base := filepath.Split(name)
	stamp := now.Format(DateLayout)

	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return name + "-" + stamp
	}
	return dir + base[:idx] + "-" + stamp + base[idx:]
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
