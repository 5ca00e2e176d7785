package archive

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/ulikunitz/xz/lzma"

	"github.com/m3tro1d/pybackup/internal/models"
)

// Zip method identifiers (APPNOTE 4.4.5).
const (
	methodBZIP2 uint16 = 12
	methodLZMA  uint16 = 14
)

// flagLZMAEOS marks LZMA entries whose stream ends with an end-of-stream marker.
const flagLZMAEOS uint16 = 0x2

const (
	lzmaVersionMajor = 9
	lzmaVersionMinor = 20
	lzmaPropsLen     = 5
	lzmaHeaderLen    = 13 // .lzma header: properties, dictionary size, uncompressed size
)

// lzmaDictCaps maps levels 0-9 to dictionary sizes, following the xz presets.
var lzmaDictCaps = [10]int{
	256 << 10, 1 << 20, 2 << 20, 4 << 20, 4 << 20,
	8 << 20, 8 << 20, 16 << 20, 32 << 20, 64 << 20,
}

type codec struct {
	method     uint16
	flags      uint16
	compressor zip.Compressor // nil for methods archive/zip handles itself
}

func codecFor(settings models.CompressionSettings) (codec, error) {
	lo, hi := settings.Method.LevelRange()
	if settings.Level < lo || settings.Level > hi {
		return codec{}, errors.Newf("compression level %d outside %d-%d for %s", settings.Level, lo, hi, settings.Method)
	}
	level := settings.Level

	switch settings.Method {
	case models.Stored:
		return codec{method: zip.Store}, nil
	case models.Deflated:
		return codec{
			method: zip.Deflate,
			compressor: func(out io.Writer) (io.WriteCloser, error) {
				return flate.NewWriter(out, level)
			},
		}, nil
	case models.BZIP2:
		return codec{
			method: methodBZIP2,
			compressor: func(out io.Writer) (io.WriteCloser, error) {
				return bzip2.NewWriter(out, &bzip2.WriterConfig{Level: level})
			},
		}, nil
	case models.LZMA:
		return codec{
			method: methodLZMA,
			flags:  flagLZMAEOS,
			compressor: func(out io.Writer) (io.WriteCloser, error) {
				cfg := lzma.WriterConfig{DictCap: lzmaDictCaps[level], EOSMarker: true}
				return cfg.NewWriter(&lzmaFramer{w: out})
			},
		}, nil
	default:
		return codec{}, errors.Newf("unsupported compression method %s", settings.Method)
	}
}

// registerDecompressors makes r able to read every method codecFor writes.
func registerDecompressors(r *zip.Reader) {
	r.RegisterDecompressor(zip.Deflate, flate.NewReader)
	r.RegisterDecompressor(methodBZIP2, func(in io.Reader) io.ReadCloser {
		rd, err := bzip2.NewReader(in, nil)
		if err != nil {
			return errReadCloser{err: err}
		}
		return rd
	})
	r.RegisterDecompressor(methodLZMA, func(in io.Reader) io.ReadCloser {
		rd, err := newLZMAReader(in)
		if err != nil {
			return errReadCloser{err: err}
		}
		return io.NopCloser(rd)
	})
}

// lzmaFramer converts the .lzma stream produced by ulikunitz/xz into zip
// LZMA framing: a 4-byte version/size prefix and the 5 property bytes. The
// 8-byte uncompressed size of the .lzma header is dropped.
type lzmaFramer struct {
	w      io.Writer
	header []byte
	framed bool
}

func (f *lzmaFramer) Write(p []byte) (int, error) {
	n := len(p)
	if !f.framed {
		take := min(lzmaHeaderLen-len(f.header), len(p))
		f.header = append(f.header, p[:take]...)
		p = p[take:]
		if len(f.header) < lzmaHeaderLen {
			return n, nil
		}
		f.framed = true

		prefix := make([]byte, 4, 4+lzmaPropsLen)
		prefix[0], prefix[1] = lzmaVersionMajor, lzmaVersionMinor
		binary.LittleEndian.PutUint16(prefix[2:], lzmaPropsLen)
		prefix = append(prefix, f.header[:lzmaPropsLen]...)
		if _, err := f.w.Write(prefix); err != nil {
			return 0, err
		}
	}
	if len(p) > 0 {
		if _, err := f.w.Write(p); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// newLZMAReader reverses lzmaFramer: it rebuilds a .lzma header with an
// unknown size so the decoder relies on the end-of-stream marker.
func newLZMAReader(in io.Reader) (io.Reader, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(in, prefix[:]); err != nil {
		return nil, errors.Wrap(err, "reading lzma prefix")
	}
	propsLen := binary.LittleEndian.Uint16(prefix[2:])
	if propsLen != lzmaPropsLen {
		return nil, errors.Newf("unexpected lzma properties size %d", propsLen)
	}

	header := make([]byte, lzmaHeaderLen)
	if _, err := io.ReadFull(in, header[:lzmaPropsLen]); err != nil {
		return nil, errors.Wrap(err, "reading lzma properties")
	}
	for i := lzmaPropsLen; i < lzmaHeaderLen; i++ {
		header[i] = 0xff
	}

	return lzma.NewReader(io.MultiReader(bytes.NewReader(header), in))
}

type errReadCloser struct {
	err error
}

func (e errReadCloser) Read([]byte) (int, error) { return 0, e.err }

func (e errReadCloser) Close() error { return nil }
