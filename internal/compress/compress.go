// Package compress provides the pluggable block compressors used by the
// persistence layer and the distributed value cache.
package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses and decompresses whole blocks.
type Compressor interface {
	// Name identifies the codec, e.g. "s2".
	Name() string

	// Compress returns the compressed form of data.
	Compress(data []byte) []byte

	// Decompress reverses Compress.
	Decompress(data []byte) ([]byte, error)
}

// ByName resolves a compressor by name.
func ByName(name string) (Compressor, error) {
	switch name {
	case "s2", "":
		return S2{}, nil
	case "lz4":
		return LZ4{}, nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown compressor %q", name)
	}
}

// S2 is the Snappy-compatible s2 codec. The default.
type S2 struct{}

func (S2) Name() string { return "s2" }

func (S2) Compress(data []byte) []byte {
	return s2.Encode(nil, data)
}

func (S2) Decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

// LZ4 is the lz4 block codec.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(data []byte) []byte {
	buf := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	buf[0] = byte(len(data))
	buf[1] = byte(len(data) >> 8)
	buf[2] = byte(len(data) >> 16)
	buf[3] = byte(len(data) >> 24)
	n, err := lz4.CompressBlock(data, buf[4:], nil)
	if err != nil || n == 0 {
		// Incompressible: store raw with a zero marker.
		out := make([]byte, 4+len(data))
		out[0], out[1], out[2], out[3] = 0xff, 0xff, 0xff, 0xff
		copy(out[4:], data)
		return out
	}
	return buf[:4+n]
}

func (LZ4) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 block too short")
	}
	if data[0] == 0xff && data[1] == 0xff && data[2] == 0xff && data[3] == 0xff {
		return append([]byte(nil), data[4:]...), nil
	}
	size := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// None passes data through unchanged.
type None struct{}

func (None) Name() string { return "none" }

func (None) Compress(data []byte) []byte { return data }

func (None) Decompress(data []byte) ([]byte, error) { return data, nil }
