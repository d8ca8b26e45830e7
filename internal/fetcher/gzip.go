package fetcher

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// newGzipReader opens a gzip stream. Split out so Materialize and tests share
// one decompression path.
func newGzipReader(r io.Reader) (*gzip.Reader, error) {
	return gzip.NewReader(r)
}
