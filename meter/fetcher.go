package meter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one whole request/response exchange with a meter.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

// URL returns the telemetry endpoint of the meter at host.
func URL(host string) string {
	return "http://" + host + APIPath
}

// Fetcher polls one meter. It owns a long-lived client so connections are
// reused across ticks but never shared with other meters.
type Fetcher struct {
	name   string
	url    string
	client *http.Client
}

// NewFetcher builds a fetcher for the named meter. timeout <= 0 selects DefaultTimeout.
func NewFetcher(name, host string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		name: name,
		url:  URL(host),
		client: &http.Client{
			Timeout:   timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
}

// URL returns the polled endpoint.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch performs a single GET and validates the body.
func (f *Fetcher) Fetch(ctx context.Context) (Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Reading{}, &FetchError{Meter: f.name, URL: f.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Reading{}, &FetchError{Meter: f.name, URL: f.url, Err: err}
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reading{}, &FetchError{
			Meter:      f.name,
			URL:        f.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Reading{}, &FetchError{Meter: f.name, URL: f.url, Err: err}
	}

	r, err := DecodeReading(bytes.NewReader(body))
	if err != nil {
		if verr, ok := err.(*ValidationError); ok {
			verr.Meter = f.name
		}
		return Reading{}, err
	}
	return r, nil
}

// Close drops idle connections of the meter client.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}
