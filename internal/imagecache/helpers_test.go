package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const testUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"

func testFetcherConfig(mt http.RoundTripper) FetcherConfig {
	return FetcherConfig{
		UserAgent:    testUserAgent,
		PageTimeout:  time.Second,
		ImageTimeout: 2 * time.Second,
		MaxBytes:     128 << 10,
		MaxPageBytes: 64 << 10,
		Transport:    mt,
	}
}

func respond(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func htmlResponder(html string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		return respond(req, http.StatusOK, "text/html; charset=utf-8", []byte(html)), nil
	}
}

func imageResponder(contentType string, body []byte) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		return respond(req, http.StatusOK, contentType, body), nil
	}
}

func jpegBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	if buf.Len() < size {
		buf.Write(make([]byte, size-buf.Len()))
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

// trackingBody records whether the body was read or closed.
type trackingBody struct {
	reads  atomic.Int32
	closed atomic.Bool
}

func (b *trackingBody) Read(p []byte) (int, error) {
	b.reads.Add(1)
	for i := range p {
		p[i] = 0xff
	}
	return len(p), nil
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

// memFallback serves a fixed identifier image or fails.
type memFallback struct {
	err   error
	calls atomic.Int32
}

func (f *memFallback) Open(_ context.Context, code string) (io.ReadCloser, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader([]byte("png:" + code))), nil
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
