// File: internal/apitesting/compression.go
package apitesting

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/samber/lo"
)

var brotliReaderPool = sync.Pool{
	New: func() any { return brotli.NewReader(nil) },
}

// decodingTransport advertises compression support and transparently decodes
// gzip, deflate and brotli response bodies, so assertions always see plain text.
type decodingTransport struct {
	base http.RoundTripper
}

func newDecodingTransport(base http.RoundTripper) *decodingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &decodingTransport{base: base}
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// bodyCloser closes the decoder and the underlying body, and releases pooled readers.
type bodyCloser struct {
	io.Reader
	decoder io.Closer
	orig    io.ReadCloser
	release func()
}

func (b *bodyCloser) Close() error {
	var errDec error
	if b.decoder != nil {
		errDec = b.decoder.Close()
	}
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(errDec, b.orig.Close())
}

// decodeBody unwraps each Content-Encoding layer in reverse application order.
func decodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		for _, enc := range lo.Reverse(strings.Split(encodings[i], ",")) {
			enc = strings.ToLower(strings.TrimSpace(enc))
			wrapped := &bodyCloser{orig: resp.Body}
			switch enc {
			case "", "identity":
				continue
			case "gzip", "x-gzip":
				zr, err := gzip.NewReader(resp.Body)
				if err != nil {
					return fmt.Errorf("gzip: %w", err)
				}
				wrapped.Reader, wrapped.decoder = zr, zr
			case "deflate":
				fr := flate.NewReader(resp.Body)
				wrapped.Reader, wrapped.decoder = fr, fr
			case "br":
				br := brotliReaderPool.Get().(*brotli.Reader)
				if err := br.Reset(resp.Body); err != nil {
					brotliReaderPool.Put(br)
					return fmt.Errorf("brotli: %w", err)
				}
				wrapped.Reader = br
				wrapped.release = func() {
					_ = br.Reset(strings.NewReader(""))
					brotliReaderPool.Put(br)
				}
			default:
				return fmt.Errorf("unsupported Content-Encoding: %s", enc)
			}
			resp.Body = wrapped
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}
