package console

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// ErrNoFile indicates the requested file is not available.
var ErrNoFile = errors.New("no such file")

// FileSource provides files requested by the device.
type FileSource interface {
	Open(name string) ([]byte, error)
}

// FileSourceFunc is func form of FileSource.
type FileSourceFunc func(name string) ([]byte, error)

// Open implements FileSource.
func (f FileSourceFunc) Open(name string) ([]byte, error) {
	return f(name)
}

// Files serves files from memory.
type Files map[string][]byte

// Open implements FileSource.
func (f Files) Open(name string) ([]byte, error) {
	if data, ok := f[name]; ok {
		return data, nil
	}
	return nil, ErrNoFile
}

// Dir serves files from a directory. A missing name.bin is looked up as
// name.hex and converted.
type Dir string

// Open implements FileSource.
func (d Dir) Open(name string) ([]byte, error) {
	// the device only names files, never paths.
	fn := filepath.Join(string(d), filepath.Base(name))
	data, err := ReadImage(fn)
	if os.IsNotExist(err) && strings.HasSuffix(fn, ".bin") {
		data, err = ReadImage(strings.TrimSuffix(fn, ".bin") + ".hex")
	}
	if os.IsNotExist(err) {
		return nil, ErrNoFile
	}
	return data, err
}

// Override serves one name from a fixed path and everything else from Next.
type Override struct {
	Name string
	Path string
	Next FileSource
}

// Open implements FileSource.
func (o *Override) Open(name string) ([]byte, error) {
	if name == o.Name {
		return ReadImage(o.Path)
	}
	if o.Next == nil {
		return nil, ErrNoFile
	}
	return o.Next.Open(name)
}

// ReadImage reads a raw binary, or an Intel HEX file when fn ends in .hex.
func ReadImage(fn string) ([]byte, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(fn), ".hex") {
		bin, err := HexToBinary(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		return bin, nil
	}
	return data, nil
}

// HexToBinary flattens an Intel HEX image starting at its lowest segment.
// Gaps between segments are filled with 0xFF.
func HexToBinary(data []byte) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return []byte{}, nil
	}
	start, end := segments[0].Address, uint32(0)
	for _, seg := range segments {
		if seg.Address < start {
			start = seg.Address
		}
		if e := seg.Address + uint32(len(seg.Data)); e > end {
			end = e
		}
	}
	return mem.ToBinary(start, end-start, 0xFF), nil
}
