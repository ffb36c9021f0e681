package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/pkg/logger"
)

const maxErrorBody = 512

// RESTOption configures a REST client.
type RESTOption func(*REST)

// WithAuthToken sets the token sent as the auth query parameter.
func WithAuthToken(token string) RESTOption {
	return func(r *REST) { r.token = token }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) RESTOption {
	return func(r *REST) {
		if d > 0 {
			r.http.Timeout = d
		}
	}
}

// WithMaxRetries sets the number of attempts per call.
func WithMaxRetries(n int) RESTOption {
	return func(r *REST) {
		if n > 0 {
			r.maxTries = uint(n)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *REST) {
		if c != nil {
			r.http = c
		}
	}
}

// WithBackOff replaces the retry policy.
func WithBackOff(newBackOff func() backoff.BackOff) RESTOption {
	return func(r *REST) {
		if newBackOff != nil {
			r.newBackOff = newBackOff
		}
	}
}

// REST talks to a Firebase-style realtime database:
// PUT, GET and DELETE on {base}/{path}.json?auth={token}.
type REST struct {
	base       string
	token      string
	http       *http.Client
	maxTries   uint
	newBackOff func() backoff.BackOff
	closed     atomic.Bool
	logger     logger.Logger
}

// NewREST creates a REST client rooted at base.
func NewREST(base string, opts ...RESTOption) *REST {
	r := &REST{
		base:     strings.TrimRight(base, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		maxTries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger: logger.Get().Named("mirror"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *REST) url(p string) string {
	u := r.base + "/" + p + ".json"
	if r.token != "" {
		u += "?auth=" + url.QueryEscape(r.token)
	}
	return u
}

func (r *REST) Write(ctx context.Context, path string, v any) error {
	const op = "mirror.rest.write"
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return errs.WrapKind(op, errs.ErrSync, err)
	}
	_, err = r.do(ctx, http.MethodPut, p, body)
	return errs.WrapKind(op, errs.ErrSync, err)
}

func (r *REST) Read(ctx context.Context, path string, v any) (bool, error) {
	const op = "mirror.rest.read"
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	raw, err := r.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return false, errs.WrapKind(op, errs.ErrSync, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if v == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, errs.WrapKind(op, errs.ErrSync, err)
	}
	return true, nil
}

func (r *REST) Delete(ctx context.Context, path string) error {
	const op = "mirror.rest.delete"
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	_, err = r.do(ctx, http.MethodDelete, p, nil)
	return errs.WrapKind(op, errs.ErrSync, err)
}

// Close marks the client closed and releases idle connections.
func (r *REST) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.http.CloseIdleConnections()
	return nil
}

// do runs one request with retries. 4xx responses other than 408 and 429 are
// not retried.
func (r *REST) do(ctx context.Context, method, p string, body []byte) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	attempt := 0
	return backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, r.url(p), rd)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := r.http.Do(req)
		if err != nil {
			r.logger.Debug(ctx, "mirror request failed",
				logger.String("method", method),
				logger.String("path", p),
				logger.Int("attempt", attempt),
				logger.Error(err))
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		statusErr := &StatusError{Method: method, Path: p, Code: resp.StatusCode, Body: truncate(data)}
		if retryable(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(r.maxTries))
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(bytes.TrimSpace(b))
}

// StatusError is a non-2xx mirror response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}
