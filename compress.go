package chhttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// newCompressWriter wraps w so that everything written is compressed with c.
// Close flushes the compressor but leaves w open.
func newCompressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression: %q", c)
	}
}

func compressBytes(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	w, err := newCompressWriter(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Join(err, w.Close())
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type decompressReader struct {
	io.Reader
	close func() error
}

func (r *decompressReader) Close() error {
	return r.close()
}

// decompressBody undoes the Content-Encoding of a response body.
func decompressBody(body io.ReadCloser, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(body)
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gzip response: %w", err)
		}
		return &decompressReader{Reader: zr, close: func() error {
			return errors.Join(zr.Close(), body.Close())
		}}, nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("zstd response: %w", err)
		}
		return &decompressReader{Reader: zr, close: func() error {
			zr.Close()
			return body.Close()
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported response encoding: %q", encoding)
	}
}
