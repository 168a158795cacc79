package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	collyfetcher "github.com/JakeFAU/stockroom/internal/fetcher/colly"
)

const acceptImage = "image/webp,image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5"

const maxRedirects = 10

// FetcherConfig controls outbound requests made by the pipeline.
type FetcherConfig struct {
	UserAgent    string
	PageTimeout  time.Duration
	ImageTimeout time.Duration
	MaxBytes     int64
	MaxPageBytes int
	// Transport overrides the HTTP transport for page and image requests.
	Transport http.RoundTripper
	// Limiter, when set, is waited on before every outbound request.
	Limiter HostLimiter
}

// HostLimiter throttles outbound requests per supplier host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Page is a fetched supplier page.
type Page struct {
	// URL is the final address after redirects; candidates resolve against it.
	URL  string
	Body []byte
}

// Image is a validated image response whose body is still streaming.
type Image struct {
	// Body returns ErrTooLarge once more than the configured ceiling was read.
	Body        io.ReadCloser
	ContentType string
	Ext         string
}

// Fetcher downloads supplier pages and product images.
type Fetcher struct {
	cfg    FetcherConfig
	pages  *collyfetcher.Fetcher
	client *http.Client
}

// NewFetcher builds a Fetcher; zero values fall back to the usual limits.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 6 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 15 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 6 << 20
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 2 << 20
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Fetcher{
		cfg: cfg,
		pages: collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.UserAgent,
			Timeout:     cfg.PageTimeout,
			MaxBodySize: cfg.MaxPageBytes,
			Transport:   transport,
		}),
		client: &http.Client{
			Transport:     transport,
			Timeout:       cfg.ImageTimeout,
			CheckRedirect: checkRedirect,
		},
	}
}

// CheckURL accepts only absolute http(s) URLs with a host.
func CheckURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemeNotAllowed, err)
	}
	if err := checkParsedURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

func checkParsedURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return fmt.Errorf("%w: %q", ErrSchemeNotAllowed, u.Redacted())
	}
	return nil
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return checkParsedURL(req.URL)
}

// wait blocks on the host limiter for at most timeout, even when ctx never
// ends.
func (f *Fetcher) wait(ctx context.Context, u *url.URL, timeout time.Duration) error {
	if f.cfg.Limiter == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := f.cfg.Limiter.Wait(ctx, u.String()); err != nil {
		return fmt.Errorf("throttled %s: %w", u.Host, err)
	}
	return nil
}

// FetchPage downloads the supplier page at pageURL.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (Page, error) {
	u, err := CheckURL(pageURL)
	if err != nil {
		return Page{}, err
	}
	if err := f.wait(ctx, u, f.cfg.PageTimeout); err != nil {
		return Page{}, err
	}
	page, err := f.pages.Fetch(ctx, u.String(), nil)
	if err != nil {
		var statusErr *collyfetcher.StatusError
		if errors.As(err, &statusErr) {
			return Page{}, &StatusError{URL: u.String(), StatusCode: statusErr.StatusCode}
		}
		return Page{}, fmt.Errorf("fetch page %s: %w", u.Redacted(), err)
	}
	final := page.URL
	if final == "" {
		final = u.String()
	}
	return Page{URL: final, Body: page.Body}, nil
}

// FetchImage requests imageURL with refererURL as Referer and validates the
// response headers. The caller must close Image.Body.
func (f *Fetcher) FetchImage(ctx context.Context, imageURL, refererURL string) (*Image, error) {
	u, err := CheckURL(imageURL)
	if err != nil {
		return nil, err
	}
	if err := f.wait(ctx, u, f.cfg.ImageTimeout); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", acceptImage)
	if refererURL != "" {
		req.Header.Set("Referer", refererURL)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", u.Redacted(), err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}
	if declared := declaredLength(resp); declared > f.cfg.MaxBytes {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrTooLarge, declared, f.cfg.MaxBytes)
	}

	return &Image{
		Body:        &cappedBody{body: resp.Body, max: f.cfg.MaxBytes},
		ContentType: contentType,
		Ext:         Extension(contentType),
	}, nil
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		mt, _, _ = strings.Cut(header, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func declaredLength(resp *http.Response) int64 {
	declared := resp.ContentLength
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > declared {
			declared = n
		}
	}
	return declared
}

// Extension maps an image media type to the cached file extension.
func Extension(contentType string) string {
	switch mediaType(contentType) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}

// cappedBody streams at most max bytes; reading past that fails.
type cappedBody struct {
	body io.ReadCloser
	max  int64
	read int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.read > b.max {
		return 0, ErrTooLarge
	}
	if allowed := b.max - b.read + 1; int64(len(p)) > allowed {
		p = p[:allowed]
	}
	n, err := b.body.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return n - int(b.read-b.max), ErrTooLarge
	}
	return n, err
}

func (b *cappedBody) Close() error {
	return b.body.Close()
}

// BytesRead reports how many body bytes were consumed so far.
func (b *cappedBody) BytesRead() int64 {
	return min(b.read, b.max)
}
