package linksync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrTransport wraps every failure to get an HTTP response at all.
var ErrTransport = errors.New("transport failure")

// Request is one authenticated call to the relay.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	// Timeout bounds the whole exchange on the client side. Zero means no
	// limit beyond the caller's context.
	Timeout time.Duration
}

// Response carries any HTTP status; only transport failures are errors.
type Response struct {
	StatusCode int
	Body       []byte
}

// RequestExecutor sends requests to the relay.
type RequestExecutor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

const maxResponseBody = 1 << 20

// HTTPExecutor is a RequestExecutor over net/http using basic auth with
// "<aci>.<deviceId>" as the username.
type HTTPExecutor struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   *zap.Logger
}

func NewHTTPExecutor(baseURL, aci string, deviceID uint32, password string, logger *zap.Logger) *HTTPExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPExecutor{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: fmt.Sprintf("%s.%d", aci, deviceID),
		password: password,
		client:   &http.Client{},
		logger:   logger,
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	target := e.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.SetBasicAuth(e.username, e.password)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	e.logger.Debug("relay request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
