// Package archive builds zip archives from source directories.
package archive

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/m3tro1d/pybackup/internal/models"
)

// ErrMissingDirectory marks a source directory that does not exist or is not a directory.
var ErrMissingDirectory = errors.New("source directory missing")

// Service defines the interface for archive operations.
type Service interface {
	Build(ctx context.Context, target models.ArchiveTarget, opts BuildOptions) (*models.ArchiveResult, error)
}

// BuildOptions controls a single Build call.
type BuildOptions struct {
	Verbose bool // log every file added
	Verify  bool // read the archive back after closing it
}

// Impl implements the archive Service interface.
type Impl struct {
	fs     afero.Fs
	opener Opener
	logger zerolog.Logger
}

// New creates a new archive service on the OS filesystem.
func New(logger zerolog.Logger) *Impl {
	fs := afero.NewOsFs()
	return &Impl{
		fs:     fs,
		opener: NewZipOpener(fs),
		logger: logger,
	}
}

// NewWithFs creates a new archive service with a custom filesystem and
// opener (for testing). A nil opener writes zip files on fs.
func NewWithFs(logger zerolog.Logger, fs afero.Fs, opener Opener) *Impl {
	if opener == nil {
		opener = NewZipOpener(fs)
	}
	return &Impl{
		fs:     fs,
		opener: opener,
		logger: logger,
	}
}

// Build writes one archive containing every file below each source
// directory. Entries are named relative to the parent of their source
// directory, so each directory's basename is the root inside the archive.
// Missing source directories are skipped with a warning. Failures to write
// the archive are reported in the result's Error.
func (s *Impl) Build(ctx context.Context, target models.ArchiveTarget, opts BuildOptions) (*models.ArchiveResult, error) {
	if target.Name == "" {
		return nil, errors.New("archive target has no destination")
	}

	logger := s.logger.With().Str("archive", target.Name).Logger()
	logger.Info().
		Str("compression", target.Compression.String()).
		Strs("directories", target.SourceDirs).
		Msg("creating archive")

	start := time.Now()
	result := &models.ArchiveResult{Name: target.Name}

	if err := s.write(ctx, logger, target, opts, result); err != nil {
		result.Duration = time.Since(start)
		result.Error = err
		return result, nil
	}

	if info, err := s.fs.Stat(target.Name); err == nil {
		result.SizeBytes = info.Size()
	}

	sum, err := Checksum(s.fs, target.Name)
	if err != nil {
		logger.Warn().Err(err).Msg("could not checksum archive")
	}
	result.Checksum = sum

	if opts.Verify {
		entries, err := Verify(s.fs, target.Name)
		if err == nil && entries != result.FilesAdded {
			err = errors.Newf("archive holds %d entries, expected %d", entries, result.FilesAdded)
		}
		if err != nil {
			result.Duration = time.Since(start)
			result.Error = errors.Wrapf(err, "verifying %s", target.Name)
			return result, nil
		}
		result.Verified = true
	}

	result.Duration = time.Since(start)
	logger.Info().
		Int("files", result.FilesAdded).
		Int64("bytes_read", result.BytesRead).
		Int64("size", result.SizeBytes).
		Str("blake2b", result.Checksum).
		Dur("duration", result.Duration).
		Msg("archive created")

	return result, nil
}

// write owns the archive writer from open to close; the writer is closed on
// every return path.
func (s *Impl) write(
	ctx context.Context,
	logger zerolog.Logger,
	target models.ArchiveTarget,
	opts BuildOptions,
	result *models.ArchiveResult,
) (err error) {
	w, err := s.opener.Open(target.Name, target.Compression)
	if err != nil {
		return errors.Wrapf(err, "opening archive %s", target.Name)
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "closing archive %s", target.Name)
		}
	}()

	self, absErr := filepath.Abs(target.Name)
	if absErr != nil {
		logger.Warn().Err(absErr).Msg("cannot resolve archive path; it will not be excluded from its source directories")
		self = ""
	}

	for _, dir := range target.SourceDirs {
		if err := s.checkDir(dir); err != nil {
			logger.Warn().Err(err).Str("directory", dir).Msg("skipping source directory")
			result.SkippedDirs = append(result.SkippedDirs, dir)
			continue
		}

		walk := walker{fs: s.fs, writer: w, logger: logger, verbose: opts.Verbose, self: self, result: result}
		if err := walk.addDirectory(ctx, dir); err != nil {
			return err
		}
	}

	return nil
}

func (s *Impl) checkDir(dir string) error {
	info, err := s.fs.Stat(dir)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "source directory %s", dir), ErrMissingDirectory)
	}
	if !info.IsDir() {
		return errors.Mark(errors.Newf("%s is not a directory", dir), ErrMissingDirectory)
	}
	return nil
}

type walker struct {
	fs      afero.Fs
	writer  Writer
	logger  zerolog.Logger
	verbose bool
	self    string // absolute path of the archive being written
	result  *models.ArchiveResult
}

type node struct {
	path  string // filesystem path
	entry string // archive path, slash separated
}

// addDirectory walks root with an explicit stack. Each frame carries the
// archive path next to the filesystem path, so entry names never depend on
// the process working directory.
func (w *walker) addDirectory(ctx context.Context, root string) error {
	root = filepath.Clean(root)

	// "." and ".." name no directory, so the entry root comes from the
	// absolute path.
	named := root
	if abs, err := filepath.Abs(root); err == nil {
		named = abs
	} else {
		w.logger.Warn().Err(err).Str("directory", root).Msg("cannot resolve source directory path")
	}
	stack := []node{{path: root, entry: rootEntry(named)}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "archiving interrupted")
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := afero.ReadDir(w.fs, dir.path)
		if err != nil {
			w.logger.Warn().Err(err).Str("directory", dir.path).Msg("skipping unreadable directory")
			continue
		}

		var subdirs []node
		for _, info := range entries {
			next := node{
				path:  filepath.Join(dir.path, info.Name()),
				entry: path.Join(dir.entry, info.Name()),
			}

			if info.Mode()&os.ModeSymlink != 0 {
				resolved, err := w.fs.Stat(next.path)
				if err != nil {
					w.logger.Warn().Err(err).Str("file", next.path).Msg("skipping broken symlink")
					continue
				}
				if resolved.IsDir() {
					w.logger.Warn().Str("directory", next.path).Msg("not following symlinked directory")
					continue
				}
				info = resolved
			}

			switch {
			case info.IsDir():
				subdirs = append(subdirs, next)
			case info.Mode().IsRegular():
				if err := w.addFile(next, info); err != nil {
					return err
				}
			default:
				w.logger.Debug().Str("file", next.path).Msg("skipping special file")
			}
		}

		// Reverse push keeps subdirectories in listing order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return nil
}

func (w *walker) addFile(file node, info os.FileInfo) error {
	if abs, err := filepath.Abs(file.path); err == nil && abs == w.self {
		w.logger.Debug().Str("file", file.path).Msg("skipping the archive itself")
		return nil
	}

	f, err := w.fs.Open(file.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("file", file.path).Msg("skipping unreadable file")
		return nil
	}
	defer func() { _ = f.Close() }()

	if err := w.writer.WriteEntry(file.entry, info, f); err != nil {
		return errors.Wrapf(err, "adding %s", file.path)
	}

	w.result.FilesAdded++
	w.result.BytesRead += info.Size()

	if w.verbose {
		w.logger.Info().Str("file", file.path).Str("entry", file.entry).Msg("added")
	}
	return nil
}

// rootEntry is the archive name of a source directory: its basename, or
// nothing for a filesystem root or an unresolved "." or "..".
func rootEntry(root string) string {
	base := filepath.Base(root)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return ""
	}
	return filepath.ToSlash(base)
}
