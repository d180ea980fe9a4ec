package downstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodyBytes = 4 << 20

// forwardedHeaders are copied from the client request to the downstream one.
var forwardedHeaders = []string{"Authorization", "Content-Type", "Accept", "X-Request-Id"}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// StatusError carries a 5xx answer. The gateway still relays its body, but
// the breaker counts it as a failure.
type StatusError struct {
	Target   string
	Response Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s answered %d", e.Target, e.Response.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }

// HTTPTarget forwards requests to one HTTP service.
type HTTPTarget struct {
	Name    string
	base    *url.URL
	client  *http.Client
	maxBody int64
}

func NewHTTPTarget(name, baseURL string, client *http.Client) (*HTTPTarget, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s url %q must be absolute", name, baseURL)
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPTarget{Name: name, base: u, client: client, maxBody: maxBodyBytes}, nil
}

var errBodyTooLarge = errors.New("body too large")

// readLimited reads all of r, failing instead of truncating past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", errBodyTooLarge, limit)
	}
	return b, nil
}

// Forward sends r's method, query and body to path on the target. 4xx answers
// come back as a Response with a nil error.
func (t *HTTPTarget) Forward(ctx context.Context, r *http.Request, path string) (Response, error) {
	var body []byte
	if r.Body != nil {
		b, err := readLimited(r.Body, t.maxBody)
		if err != nil {
			return Response{}, fmt.Errorf("%w: read request body: %w", ErrInvalid, err)
		}
		body = b
	}

	u := *t.base
	u.Path = t.base.Path + path
	u.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %w", ErrInvalid, err)
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Response{}, classify(ctx, t.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := readLimited(resp.Body, t.maxBody)
	if errors.Is(err, errBodyTooLarge) {
		return Response{}, fmt.Errorf("%w: %s response: %w", ErrUnavailable, t.Name, err)
	}
	if err != nil {
		return Response{}, classify(ctx, t.Name, err)
	}
	out := Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: respBody}
	if resp.StatusCode >= http.StatusInternalServerError {
		return out, &StatusError{Target: t.Name, Response: out}
	}
	return out, nil
}
