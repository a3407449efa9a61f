// Package etherscan implements evmhistory.Explorer on top of an
// Etherscan-compatible REST API (Etherscan, Polygonscan and their clones).
package etherscan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gabapcia/txhistory/internal/evmhistory"
	transporthttp "github.com/gabapcia/txhistory/internal/pkg/transport/http"
)

const (
	statusOK = "1"

	// noTransactionsMessage is the message sent with status "0" when the
	// address simply has nothing on the requested page.
	noTransactionsMessage = "No transactions found"

	maxErrorBodySize = 512
)

var (
	// ErrExplorerReturnedError indicates that the explorer answered with a failure status.
	ErrExplorerReturnedError = errors.New("explorer error")

	// ErrUnexpectedStatus indicates that the explorer answered with a non-2xx HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

// response is the envelope shared by every explorer endpoint. Result is an
// array on success and a human readable string on failure.
type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Err returns nil on success and ErrExplorerReturnedError otherwise.
func (r response) Err() error {
	if r.Status == statusOK {
		return nil
	}

	var detail string
	if err := json.Unmarshal(r.Result, &detail); err != nil {
		detail = string(r.Result)
	}

	return fmt.Errorf("%w: %s - %s", ErrExplorerReturnedError, r.Message, detail)
}

// isEmpty reports whether the explorer answered "no transactions" rather than failing.
func (r response) isEmpty() bool {
	if r.Status == statusOK || r.Message != noTransactionsMessage {
		return false
	}

	var result []json.RawMessage
	return json.Unmarshal(r.Result, &result) == nil && len(result) == 0
}

// redactedError hides the API key that transport errors quote with the request URL.
type redactedError struct {
	err error
}

func (e redactedError) Error() string {
	return transporthttp.RedactSecrets(e.err.Error())
}

func (e redactedError) Unwrap() error {
	return e.err
}

type client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ evmhistory.Explorer = (*client)(nil)

// ListInternalTransactions implements evmhistory.Explorer using the
// account/txlistinternal action, sorted newest first over every block.
func (c *client) ListInternalTransactions(ctx context.Context, address string, page, offset int) ([]evmhistory.RawTransaction, error) {
	query := url.Values{
		"module":     {"account"},
		"action":     {"txlistinternal"},
		"address":    {address},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"page":       {strconv.Itoa(page)},
		"offset":     {strconv.Itoa(offset)},
		"sort":       {"desc"},
		"apikey":     {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, redactedError{err}
	}

	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, redactedError{err}
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

	if data.isEmpty() {
		return []evmhistory.RawTransaction{}, nil
	}

	if err := data.Err(); err != nil {
		return nil, err
	}

	var entries []InternalTransactionResponse
	if err := json.Unmarshal(data.Result, &entries); err != nil {
		return nil, fmt.Errorf("decode txlistinternal result: %w", err)
	}

	transactions := make([]evmhistory.RawTransaction, len(entries))
	for i, entry := range entries {
		transactions[i] = entry.toRawTransaction()
	}

	return transactions, nil
}

// NewClient returns an explorer client for the API rooted at baseURL
// (e.g. https://api.polygonscan.com/api), authenticated with apiKey.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *client {
	return &client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}
