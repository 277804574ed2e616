package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers. Every fetched page goes through one of
// these, so the allocations are worth avoiding.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
)

// emptyReader resets pooled readers without allocating. gzip.Reset(nil) is
// not safe on all Go versions; resetting against an empty stream is.
var emptyReader = strings.NewReader("")

// decompressionTransport advertises compression support on outgoing requests
// and transparently unwraps the response body. Supports gzip, brotli, and
// both zlib-wrapped and raw deflate, including layered encodings.
type decompressionTransport struct {
	next http.RoundTripper
}

func newDecompressionTransport(next http.RoundTripper) *decompressionTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &decompressionTransport{next: next}
}

func (t *decompressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressResponse(resp); err != nil {
		// The body stream may be partially consumed at this point; it cannot
		// be handed to the caller.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// decompressResponse wraps the response body with decoders matching the
// Content-Encoding layers, applied in reverse order. On success it clears the
// encoding headers and marks the response uncompressed.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	// Layers are listed in application order, either comma-joined on one
	// line or spread over repeated header lines.
	var encodings []string
	for _, value := range resp.Header.Values("Content-Encoding") {
		encodings = append(encodings, strings.Split(value, ",")...)
	}
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))
		if encoding == "identity" || encoding == "" {
			continue
		}
		reader, release, err := decoderFor(encoding, resp.Body)
		if err != nil {
			return err
		}
		resp.Body = &decodedBody{ReadCloser: reader, originalBody: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// decoderFor returns a decoding reader for one encoding layer plus a release
// callback for pooled readers.
func decoderFor(encoding string, body io.Reader) (io.ReadCloser, func(), error) {
	switch encoding {
	case "gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(body); err != nil {
			gzipReaderPool.Put(zr)
			return nil, nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		release := func() {
			_ = zr.Reset(emptyReader)
			gzipReaderPool.Put(zr)
		}
		return zr, release, nil

	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(body); err != nil {
			brotliReaderPool.Put(br)
			return nil, nil, fmt.Errorf("brotli initialization error: %w", err)
		}
		release := func() {
			_ = br.Reset(emptyReader)
			brotliReaderPool.Put(br)
		}
		// brotli.Reader has no Close.
		return io.NopCloser(br), release, nil

	case "deflate":
		reader, err := tryDeflate(body)
		if err != nil {
			return nil, nil, fmt.Errorf("deflate initialization error: %w", err)
		}
		return reader, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
	}
}

// decodedBody closes the decoder and the underlying body together and returns
// pooled readers on Close.
type decodedBody struct {
	io.ReadCloser
	originalBody io.ReadCloser
	release      func()
}

func (b *decodedBody) Close() error {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(b.ReadCloser.Close(), b.originalBody.Close())
}

// replayableReader buffers what has been read so the stream can be retried
// with a second decoder.
type replayableReader struct {
	r      io.Reader
	buf    *bytes.Buffer
	source io.Reader
}

func newReplayableReader(r io.Reader) *replayableReader {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	return &replayableReader{r: io.TeeReader(r, buf), buf: buf, source: r}
}

func (rr *replayableReader) Read(p []byte) (int, error) {
	return rr.r.Read(p)
}

func (rr *replayableReader) rewind() {
	rr.r = io.MultiReader(bytes.NewReader(rr.buf.Bytes()), rr.source)
}

// tryDeflate decodes "deflate" content. Servers disagree on whether that
// means a zlib stream (RFC 1950) or raw deflate (RFC 1951); zlib is attempted
// first and the stream replayed as raw deflate if the header check fails.
func tryDeflate(r io.Reader) (io.ReadCloser, error) {
	rr := newReplayableReader(r)

	zlibReader, err := zlib.NewReader(rr)
	if err == nil {
		return zlibReader, nil
	}

	rr.rewind()
	return flate.NewReader(rr), nil
}
