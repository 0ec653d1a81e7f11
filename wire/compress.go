package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Compression selects the server-side compression of subscription frames.
// The value is both the query-parameter spelling and the envelope byte.
type Compression byte

const (
	CompressionNone   Compression = 0x00
	CompressionBrotli Compression = 0x01
	CompressionGzip   Compression = 0x02
)

// String returns the exact query-parameter spelling.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionBrotli:
		return "Brotli"
	case CompressionGzip:
		return "Gzip"
	}
	return fmt.Sprintf("UnknownCompression(%d)", byte(c))
}

// stripEnvelope removes the one-byte compression envelope from a server
// frame and inflates the remainder. For CompressionNone the returned slice
// aliases the frame; the compressed legs return fresh buffers.
func stripEnvelope(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	body := frame[1:]
	switch Compression(frame[0]) {
	case CompressionNone:
		return body, nil
	case CompressionBrotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("%w: brotli: %s", ErrDecompressionFailed, err)
		}
		return out, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %s", ErrDecompressionFailed, err)
		}
		out, err := io.ReadAll(r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %s", ErrDecompressionFailed, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCompression, frame[0])
}
