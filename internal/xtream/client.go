// Package xtream reads live-stream catalogs from IPTV providers, either
// through the Xtream-Codes player_api or from an M3U playlist.
package xtream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/guidevault/internal/apperr"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
	maxBackoff        = 30 * time.Second
	maxResponseBytes  = 256 << 20
)

// LiveStream is one catalog entry as the provider lists it.
type LiveStream struct {
	StreamID     string
	Name         string
	Icon         string
	CategoryID   string
	CategoryName string
}

// ID decodes ids that providers send either as JSON numbers or strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	*id = ID(strconv.FormatInt(int64(f), 10))
	return nil
}

// Doer is the part of *http.Client the client uses.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client. Zero values pick defaults.
type Options struct {
	HTTP       Doer
	UserAgent  string
	RateLimit  float64 // requests per second; 0 = unlimited
	MaxRetries int
	Backoff    time.Duration
}

// Client calls the player_api of one Xtream account.
type Client struct {
	base       string
	username   string
	password   string
	http       Doer
	userAgent  string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewClient validates the account settings and returns a client.
func NewClient(baseURL, username, password string, opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	base = strings.TrimSuffix(base, "/player_api.php")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, apperr.Validation("invalid url: %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.Validation("scheme not allowed: %s", u.Scheme)
	}
	if username == "" || password == "" {
		return nil, apperr.Validation("xtream account requires username and password")
	}

	c := &Client{
		base:       base,
		username:   username,
		password:   password,
		http:       opts.HTTP,
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	return c, nil
}

// Host returns the provider host for log output; credentials never appear.
func (c *Client) Host() string {
	u, err := url.Parse(c.base)
	if err != nil {
		return "[unparseable]"
	}
	return u.Host
}

type category struct {
	CategoryID   ID     `json:"category_id"`
	CategoryName string `json:"category_name"`
}

type liveStream struct {
	StreamID   ID     `json:"stream_id"`
	Name       string `json:"name"`
	StreamIcon string `json:"stream_icon"`
	CategoryID ID     `json:"category_id"`
}

// LiveStreams fetches all live streams with their category names.
// Categories are best effort: a failing category call leaves names empty.
func (c *Client) LiveStreams(ctx context.Context) ([]LiveStream, error) {
	var raw []liveStream
	if err := c.call(ctx, "get_live_streams", &raw); err != nil {
		return nil, err
	}

	names := make(map[string]string)
	var cats []category
	if err := c.call(ctx, "get_live_categories", &cats); err == nil {
		for _, cat := range cats {
			names[string(cat.CategoryID)] = strings.TrimSpace(cat.CategoryName)
		}
	}

	out := make([]LiveStream, 0, len(raw))
	for _, s := range raw {
		sid := string(s.StreamID)
		if sid == "" {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = "Channel " + sid
		}
		out = append(out, LiveStream{
			StreamID:     sid,
			Name:         name,
			Icon:         strings.TrimSpace(s.StreamIcon),
			CategoryID:   string(s.CategoryID),
			CategoryName: names[string(s.CategoryID)],
		})
	}
	return out, nil
}

// call performs a player_api action and decodes the JSON answer into dest.
func (c *Client) call(ctx context.Context, action string, dest any) error {
	q := url.Values{}
	q.Set("username", c.username)
	q.Set("password", c.password)
	if action != "" {
		q.Set("action", action)
	}
	body, err := c.get(ctx, c.base+"/player_api.php?"+q.Encode())
	if err != nil {
		return apperr.Network(fmt.Sprintf("xtream %s on %s", action, c.Host()), err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return apperr.Parse(fmt.Sprintf("xtream %s on %s: decode", action, c.Host()), err)
	}
	return nil
}

// get performs GET with retries on 408/423/429/5xx. Retry-After is honoured;
// otherwise the wait doubles each attempt up to maxBackoff.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		wait := backoff
		resp, err := c.http.Do(req)
		if err == nil {
			var body []byte
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			resp.Body.Close()
			switch {
			case err != nil:
			case resp.StatusCode == http.StatusOK:
				return body, nil
			case !retryableStatus(resp.StatusCode):
				return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
			default:
				err = fmt.Errorf("HTTP %d", resp.StatusCode)
				if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
					wait = ra
				}
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusLocked, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return min(time.Duration(secs)*time.Second, maxBackoff)
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d <= 0 {
			return 0
		}
		return min(d, maxBackoff)
	}
	return 0
}
