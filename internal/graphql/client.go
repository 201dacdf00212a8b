// Package graphql talks to the product's GraphQL API over HTTP.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/dinecart/pkg/circuitbreaker"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderRequestID = "X-Request-ID"
	maxResponseSize = 4 << 20
)

type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorItem     `json:"errors"`
}

type httpResult struct {
	status int
	body   []byte
}

type Options struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    circuitbreaker.Settings
	Logger     *slog.Logger
}

type Client struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[httpResult]
	log      *slog.Logger
}

func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid graphql endpoint %q", opts.Endpoint)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	bs := opts.Breaker
	if bs.Name == "" {
		bs.Name = "graphql"
	}
	if bs.Logger == nil {
		bs.Logger = log
	}

	return &Client{
		endpoint: u.String(),
		http:     hc,
		breaker:  circuitbreaker.New[httpResult](bs),
		log:      log,
	}, nil
}

// Do runs one operation and decodes its data into out. token may be empty.
func (c *Client) Do(ctx context.Context, token string, req Request, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", req.OperationName, err)
	}

	res, err := c.breaker.Execute(func() (httpResult, error) {
		return c.roundTrip(ctx, token, req.OperationName, payload)
	})
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return err
		}
		return &TransportError{Operation: req.OperationName, Err: err}
	}

	var resp response
	if err := json.Unmarshal(res.body, &resp); err != nil {
		if res.status < 200 || res.status > 299 {
			return &TransportError{Operation: req.OperationName, StatusCode: res.status}
		}
		return fmt.Errorf("%s: %w: %v", req.OperationName, ErrMalformedResponse, err)
	}

	if len(resp.Errors) > 0 {
		c.log.WarnContext(ctx, "graphql error", "operation", req.OperationName, "message", resp.Errors[0].Message, "code", resp.Errors[0].Code())
		return &ResponseError{Operation: req.OperationName, Errors: resp.Errors}
	}
	if res.status < 200 || res.status > 299 {
		return &TransportError{Operation: req.OperationName, StatusCode: res.status}
	}

	if out == nil {
		return nil
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return fmt.Errorf("%s: %w: no data", req.OperationName, ErrMalformedResponse)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", req.OperationName, ErrMalformedResponse, err)
	}
	return nil
}

// roundTrip only reports breaker-worthy failures as errors: transport errors
// and 5xx. GraphQL errors come back with 200 or 4xx and must not trip it.
func (c *Client) roundTrip(ctx context.Context, token, operation string, payload []byte) (httpResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return httpResult{}, &TransportError{Operation: operation, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID(ctx))
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.WarnContext(ctx, "graphql request failed", "operation", operation, "error", err)
		return httpResult{}, &TransportError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return httpResult{}, &TransportError{Operation: operation, Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.DebugContext(ctx, "graphql request", "operation", operation, "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode >= 500 {
		return httpResult{}, &TransportError{Operation: operation, StatusCode: resp.StatusCode}
	}
	return httpResult{status: resp.StatusCode, body: body}, nil
}

type requestIDKey struct{}

// WithRequestID makes Do forward id instead of minting a new one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
