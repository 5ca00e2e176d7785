package models

import "fmt"

// CompressionMethod identifies the codec used for archive entries.
type CompressionMethod int

// Compression methods, numbered as in the configuration file.
const (
	Stored CompressionMethod = iota
	Deflated
	BZIP2
	LZMA
)

// Defaults used when the configuration does not provide usable values.
const (
	DefaultCompressionMethod = Deflated
	DefaultCompressionLevel  = 5
)

var methodNames = [...]string{"stored", "deflated", "bzip2", "lzma"}

// Valid reports whether m is one of the known methods.
func (m CompressionMethod) Valid() bool {
	return m >= Stored && m <= LZMA
}

func (m CompressionMethod) String() string {
	if !m.Valid() {
		return fmt.Sprintf("unknown(%d)", int(m))
	}
	return methodNames[m]
}

// LevelRange returns the inclusive range of levels accepted for m.
func (m CompressionMethod) LevelRange() (minLevel, maxLevel int) {
	if m == BZIP2 {
		return 1, 9
	}
	return 0, 9
}

// CompressionSettings is applied uniformly to every entry of an archive.
type CompressionSettings struct {
	Method CompressionMethod
	Level  int
}

// DefaultCompression returns the fallback settings (deflated, level 5).
func DefaultCompression() CompressionSettings {
	return CompressionSettings{
		Method: DefaultCompressionMethod,
		Level:  DefaultCompressionLevel,
	}
}

func (c CompressionSettings) String() string {
	return fmt.Sprintf("%s/%d", c.Method, c.Level)
}
