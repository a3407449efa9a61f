// Package jsonrpc is a JSON-RPC 2.0 client over HTTP. Retries and timeouts
// belong to the *http.Client given to NewClient (see internal/pkg/transport/http).
// Every call runs inside a client span named after the RPC method.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/gabapcia/txhistory/internal/pkg/transport/jsonrpc"

	// maxErrorBodySize bounds how much of a non-2xx body is copied into the error.
	maxErrorBodySize = 512
)

var (
	// ErrProviderReturnedError matches every *Error returned by Fetch.
	ErrProviderReturnedError = errors.New("provider error")

	// ErrUnexpectedStatus indicates that the provider answered with a non-2xx HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

// Error is the error object of a JSON-RPC response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: [%d] - %s", ErrProviderReturnedError, e.Code, e.Message)
}

// Is makes errors.Is(err, ErrProviderReturnedError) hold for any *Error.
func (e *Error) Is(target error) bool {
	return target == ErrProviderReturnedError
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   *Error          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// Err returns the response's error object, or nil.
func (r response) Err() error {
	if r.Error == nil {
		return nil
	}

	return r.Error
}

// Client sends JSON-RPC calls.
type Client interface {
	// Fetch calls method with params and returns the raw result.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

type client struct {
	providerEndpoint string
	httpClient       *http.Client
	tracer           trace.Tracer
}

var _ Client = (*client)(nil)

// Fetch implements Client. Request ids are random UUIDs.
func (c *client) Fetch(ctx context.Context, method string, params ...any) (result json.RawMessage, err error) {
	ctx, span := c.tracer.Start(ctx, "jsonrpc "+method, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, res.StatusCode, bytes.TrimSpace(snippet))
	}

	var data response
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, err
	}

	if err := data.Err(); err != nil {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", data.Error.Code))
		return nil, err
	}

	return data.Result, nil
}

// NewClient returns a Client posting to providerEndpoint through httpClient.
func NewClient(httpClient *http.Client, providerEndpoint string) *client {
	return &client{
		providerEndpoint: providerEndpoint,
		httpClient:       httpClient,
		tracer:           otel.Tracer(instrumentationName),
	}
}
