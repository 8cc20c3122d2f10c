package httpx

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	kflate "github.com/klauspost/compress/flate"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const acceptEncoding = "gzip, deflate, br, zstd"

// NewClient returns an http.Client for platform APIs. Responses are
// decompressed transparently whatever encoding the server picked.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewCompressedTransport(nil),
	}
}

// compressedTransport advertises gzip, deflate, br and zstd and unwraps the
// response body accordingly.
type compressedTransport struct {
	base http.RoundTripper
}

// NewCompressedTransport wraps base, or a clone of the default transport when
// base is nil. DisableCompression is forced so net/http does not decode gzip
// on its own.
func NewCompressedTransport(base *http.Transport) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	base.DisableCompression = true
	return &compressedTransport{base: base}
}

func (t *compressedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, ok := decoder(strings.ToLower(resp.Header.Get("Content-Encoding")), resp.Body)
	if !ok {
		return resp, nil
	}
	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp, nil
}

// decoder returns a body that decodes enc. ok is false when the encoding is
// absent or unknown, or the decoder cannot be set up; the raw body is kept
// then.
func decoder(enc string, body io.ReadCloser) (io.ReadCloser, bool) {
	switch enc {
	case "gzip":
		r, err := kgzip.NewReader(body)
		if err != nil {
			return nil, false
		}
		return &decompressReader{reader: r, closer: body}, true
	case "deflate":
		return &decompressReader{reader: kflate.NewReader(body), closer: body}, true
	case "br":
		return &decompressReader{reader: brotli.NewReader(body), closer: body}, true
	case "zstd":
		r, err := zstd.NewReader(body)
		if err != nil {
			return nil, false
		}
		return &zstdReadCloser{decoder: r, body: body}, true
	default:
		return nil, false
	}
}

type decompressReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decompressReader) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressReader) Close() error {
	if c, ok := d.reader.(io.Closer); ok {
		_ = c.Close()
	}
	return d.closer.Close()
}

type zstdReadCloser struct {
	decoder *zstd.Decoder
	body    io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.decoder.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.decoder.Close()
	return z.body.Close()
}
