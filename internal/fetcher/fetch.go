// Package fetcher downloads guide payloads over HTTP(S) with SSRF protection.
package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/voyagen/guidevault/internal/apperr"
)

const maxRedirects = 10

// Options configures a Fetcher. Zero values take defaults.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	// AllowPrivate disables the address checks. Lab setups only.
	AllowPrivate bool
	Resolver     Resolver
}

// Fetcher performs guarded GET requests. It never retries.
type Fetcher struct {
	client    *http.Client
	guard     *guard
	userAgent string
	maxBytes  int64
}

// New returns a Fetcher whose dialer refuses non-public addresses.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 200 << 20
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	g := &guard{resolver: opts.Resolver, allowPrivate: opts.AllowPrivate}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   g.control,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		DisableCompression:    true,
	}
	f := &Fetcher{
		guard:     g,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
	}
	f.client = &http.Client{
		Timeout:       opts.Timeout,
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// Client returns the guarded HTTP client. Requests made through it pass the
// dial-time address check but not the pre-flight host resolution of Fetch.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch downloads rawURL. The URL and every address it resolves to are
// validated before any connection is made.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := f.guard.checkHost(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Validation("invalid url")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedDial) {
			return nil, apperr.SsrfBlocked("connection to %s refused: address is not allowed", u.Hostname())
		}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Network("fetch "+u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Network("fetch "+u.Redacted(), fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, apperr.Network("read "+u.Redacted(), err)
	}
	return &Result{
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		FinalURL:        resp.Request.URL.String(),
	}, nil
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	u, err := ValidateURL(req.URL.String())
	if err != nil {
		return err
	}
	return f.guard.checkHost(req.Context(), u.Hostname())
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	raw, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		return nil, err
	}
	var dec io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip content-encoding: %w", err)
		}
		defer zr.Close()
		dec = zr
	case "br":
		dec = brotli.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}
	return readLimited(dec, f.maxBytes)
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("response exceeds %d bytes", max)
	}
	return data, nil
}
