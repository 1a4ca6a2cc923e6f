package fetcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/news-comb/app/source"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultMaxBodySize = 5 * 1024 * 1024
	DefaultTimeout     = 30 * time.Second
)

// RawPayload is the fetched document handed to the parser. It is never persisted.
type RawPayload struct {
	SourceID     string
	URL          string
	Body         []byte
	FetchedAt    time.Time
	StatusCode   int
	ContentType  string
	ETag         string
	LastModified string
	NotModified  bool
	Attempts     int
}

type Options struct {
	UserAgent      string
	DefaultTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxBodySize    int64
	// HostInterval is the minimum spacing between requests to the same host.
	// Zero disables per-host limiting.
	HostInterval time.Duration
	Now          func() time.Time
}

type Fetcher struct {
	client   *http.Client
	opts     Options
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

func New(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Fetcher{
		client:   client,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch retries retriable failures up to MaxAttempts inside this call and
// then gives up; the next chance is the source's next cadence tick.
// Cancellation of ctx is returned as ctx.Err(), never as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, desc source.Descriptor) (*RawPayload, error) {
	timeout := desc.Timeout()
	if timeout <= 0 {
		timeout = f.opts.DefaultTimeout
	}

	var lastErr *FetchError
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.backoff(attempt - 1)
			slog.Debug("Fetch retry scheduled", "source", desc.ID, "attempt", attempt, "delay", delay.String(), "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := f.wait(ctx, desc.URL); err != nil {
			return nil, err
		}

		payload, err := f.fetchOnce(ctx, desc, timeout)
		if err == nil {
			payload.Attempts = attempt
			return payload, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			return nil, err
		}
		fetchErr.Attempts = attempt
		lastErr = fetchErr

		if !fetchErr.Retriable {
			break
		}
	}

	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, desc source.Descriptor, timeout time.Duration) (*RawPayload, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, desc.URL, http.NoBody)
	if err != nil {
		return nil, &FetchError{Kind: ErrKindConnection, URL: desc.URL, Cause: fmt.Errorf("failed to create request: %w", err)}
	}

	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	if desc.ETag != "" {
		req.Header.Set("If-None-Match", desc.ETag)
	}
	if desc.LastModified != "" {
		req.Header.Set("If-Modified-Since", desc.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport(attemptCtx, err, desc.URL)
	}
	defer resp.Body.Close()

	payload := &RawPayload{
		SourceID:     desc.ID,
		URL:          desc.URL,
		FetchedAt:    f.opts.Now().UTC(),
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.Request != nil && resp.Request.URL != nil {
		payload.URL = resp.Request.URL.String()
	}

	if resp.StatusCode == http.StatusNotModified {
		payload.NotModified = true
		payload.ETag = cmp.Or(payload.ETag, desc.ETag)
		payload.LastModified = cmp.Or(payload.LastModified, desc.LastModified)
		return payload, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, classifyStatus(resp.StatusCode, desc.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodySize+1))
	if err != nil {
		return nil, classifyTransport(attemptCtx, fmt.Errorf("failed to read response body: %w", err), desc.URL)
	}
	if int64(len(body)) > f.opts.MaxBodySize {
		return nil, &FetchError{
			Kind:       ErrKindBodyTooLarge,
			StatusCode: resp.StatusCode,
			URL:        desc.URL,
			Cause:      fmt.Errorf("response body exceeds %d bytes", f.opts.MaxBodySize),
		}
	}
	payload.Body = body

	return payload, nil
}

func classifyTransport(attemptCtx context.Context, err error, url string) *FetchError {
	var netErr net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: ErrKindTimeout, Retriable: true, URL: url, Cause: err}
	}
	return &FetchError{Kind: ErrKindConnection, Retriable: true, URL: url, Cause: err}
}

func (f *Fetcher) backoff(retry int) time.Duration {
	delay := f.opts.BaseDelay << uint(retry-1)
	if delay > f.opts.MaxDelay || delay <= 0 {
		delay = f.opts.MaxDelay
	}
	return delay
}

func (f *Fetcher) wait(ctx context.Context, rawURL string) error {
	if f.opts.HostInterval <= 0 {
		return nil
	}

	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}

	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(f.opts.HostInterval), 1)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()

	return limiter.Wait(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
