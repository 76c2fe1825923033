package notary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// MinResponseSize is the smallest body accepted as a timestamp token.
	MinResponseSize = 100
	contentType     = "application/timestamp-query"
)

var (
	// ErrRejected covers transport failures, non-200 statuses and short bodies.
	ErrRejected = errors.New("time stamping authority rejected request")
	// ErrRequestBuild is returned when the timestamp query cannot be produced.
	ErrRequestBuild = errors.New("failed to build timestamp query")
)

// Observer receives the outcome of every round trip.
type Observer interface {
	ObserveNotary(duration time.Duration, success bool)
}

// Config configures the notary client.
type Config struct {
	URL        string
	Timeout    time.Duration
	Requester  Requester
	HTTPClient *http.Client
	Observer   Observer
	Logger     *zap.Logger
}

// Client talks to an RFC 3161 time stamping authority.
type Client struct {
	url       string
	timeout   time.Duration
	requester Requester
	http      *http.Client
	observer  Observer
	logger    *zap.Logger
}

// NewClient builds a client. Timeout defaults to 20 seconds and the requester to NativeRequester.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Requester == nil {
		cfg.Requester = NativeRequester{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		url:       cfg.URL,
		timeout:   cfg.Timeout,
		requester: cfg.Requester,
		http:      cfg.HTTPClient,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
	}
}

// NewRequester selects a requester by name ("native" or "openssl").
func NewRequester(kind, opensslPath string) (Requester, error) {
	switch kind {
	case "", "native":
		return NativeRequester{}, nil
	case "openssl":
		return OpenSSLRequester{Path: opensslPath}, nil
	default:
		return nil, fmt.Errorf("unknown notary requester %q", kind)
	}
}

// URL returns the configured authority endpoint.
func (c *Client) URL() string {
	return c.url
}

// Stamp requests a timestamp token for dataPath and stores the response verbatim at outPath.
func (c *Client) Stamp(ctx context.Context, dataPath, outPath string) error {
	query, err := c.requester.BuildRequest(ctx, dataPath)
	if err != nil {
		return err
	}

	start := time.Now()
	token, err := c.roundTrip(ctx, query)
	if c.observer != nil {
		c.observer.ObserveNotary(time.Since(start), err == nil)
	}
	if err != nil {
		c.logger.Sugar().Warnw("timestamp request failed", "url", c.url, "error", err)
		return err
	}

	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create timestamp file: %w", err)
	}
	if _, err := f.Write(token); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("write timestamp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("sync timestamp file: %w", err)
	}
	return f.Close()
}

func (c *Client) roundTrip(ctx context.Context, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRejected, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	if len(body) < MinResponseSize {
		return nil, fmt.Errorf("%w: response of %d bytes", ErrRejected, len(body))
	}
	return body, nil
}
