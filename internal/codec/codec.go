// Package codec implements the cache's two codec layers: PayloadCodec, a
// byte-to-byte transform applied to the on-disk envelope (optional gzip
// compression with magic-byte auto-detection), and Serializer, the
// pluggable value<->bytes capability used by the coordinator.
//
// © 2025 duracache authors. MIT License.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// gzipMagic is the two-byte header every gzip stream begins with.
var gzipMagic = [2]byte{0x1f, 0x8b}

// PayloadCodec wraps on-disk bytes with optional gzip compression. Decode
// auto-detects compressed input via the magic bytes, so files written before
// and after toggling Gzip can coexist in the same directory.
type PayloadCodec struct {
	Gzip bool
}

// Encode transforms plain bytes into their on-disk representation.
func (c PayloadCodec) Encode(plain []byte) ([]byte, error) {
	if !c.Gzip {
		return plain, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("codec: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode. It inspects the first two bytes of raw and, if
// they match the gzip magic, decompresses; otherwise the input is returned
// unchanged.
func (c PayloadCodec) Decode(raw []byte) ([]byte, error) {
	if !isGzip(raw) {
		return raw, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("codec: gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: gzip read: %w", err)
	}
	return out, nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == gzipMagic[0] && b[1] == gzipMagic[1]
}
