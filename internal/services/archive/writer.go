package archive

import (
	"archive/zip"
	"encoding/hex"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/m3tro1d/pybackup/internal/models"
)

// Writer is an open archive accepting file entries.
type Writer interface {
	// WriteEntry stores the content of r under name.
	WriteEntry(name string, info os.FileInfo, r io.Reader) error
	// Close finalizes the archive and releases the destination.
	Close() error
}

// Opener creates archive writers.
type Opener interface {
	Open(dest string, settings models.CompressionSettings) (Writer, error)
}

// ZipOpener writes zip archives on a filesystem.
type ZipOpener struct {
	fs afero.Fs
}

// NewZipOpener creates a ZipOpener on fs.
func NewZipOpener(fs afero.Fs) *ZipOpener {
	return &ZipOpener{fs: fs}
}

// Open creates or truncates dest. It fails when the parent directory of
// dest does not exist or is not writable.
func (o *ZipOpener) Open(dest string, settings models.CompressionSettings) (Writer, error) {
	c, err := codecFor(settings)
	if err != nil {
		return nil, err
	}

	file, err := o.fs.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", dest)
	}

	zw := zip.NewWriter(file)
	if c.compressor != nil {
		zw.RegisterCompressor(c.method, c.compressor)
	}

	return &zipWriter{file: file, zw: zw, method: c.method, flags: c.flags}, nil
}

type zipWriter struct {
	file   afero.File
	zw     *zip.Writer
	method uint16
	flags  uint16
}

func (w *zipWriter) WriteEntry(name string, info os.FileInfo, r io.Reader) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.Wrapf(err, "building header for %s", name)
	}
	header.Name = name
	header.Method = w.method
	header.Flags |= w.flags

	dst, err := w.zw.CreateHeader(header)
	if err != nil {
		return errors.Wrapf(err, "creating entry %s", name)
	}
	if _, err := io.Copy(dst, r); err != nil {
		return errors.Wrapf(err, "writing entry %s", name)
	}
	return nil
}

func (w *zipWriter) Close() error {
	zipErr := w.zw.Close()
	fileErr := w.file.Close()
	return errors.CombineErrors(zipErr, fileErr)
}

// Checksum returns the hex BLAKE2b-256 digest of the file at path.
func Checksum(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reads back every entry of the zip archive at path; the zip reader
// checks each entry's CRC-32. It returns the number of entries read.
func Verify(fs afero.Fs, path string) (int, error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", path)
	}
	registerDecompressors(zr)

	for _, entry := range zr.File {
		if err := readEntry(entry); err != nil {
			return 0, err
		}
	}
	return len(zr.File), nil
}

func readEntry(entry *zip.File) error {
	rc, err := entry.Open()
	if err != nil {
		return errors.Wrapf(err, "opening entry %s", entry.Name)
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return errors.Wrapf(err, "reading entry %s", entry.Name)
	}
	return nil
}
