// Package http exposes the history fetchers as streaming HTTP endpoints.
//
// Both endpoints answer with text/plain and the line framing of the stream
// package: a start marker, one JSON document per transaction, and either a
// completion marker or an error marker. Malformed queries are rejected with
// 400 before the stream starts.
//
//	GET /solana/transactions?address=<base58>&start=<date>&end=<date>
//	GET /evm/transactions?address=<0x...>&end=<date>
package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gabapcia/txhistory/internal/evmhistory"
	"github.com/gabapcia/txhistory/internal/pkg/dates"
	"github.com/gabapcia/txhistory/internal/pkg/logger"
	"github.com/gabapcia/txhistory/internal/pkg/validator"
	"github.com/gabapcia/txhistory/internal/solanahistory"
	"github.com/gabapcia/txhistory/internal/stream"
)

const contentType = "text/plain; charset=utf-8"

// ErrMissingParameter is returned when a required query parameter has no value
// and no default is configured.
var ErrMissingParameter = errors.New("missing query parameter")

// Defaults are used for query parameters the request leaves out.
type Defaults struct {
	Address   string
	StartDate string
	EndDate   string
}

type (
	evmQuery struct {
		Address string `validate:"required,evm_address"`
		End     time.Time
	}

	solanaQuery struct {
		Address string `validate:"required,solana_address"`
		Start   time.Time
		End     time.Time
	}
)

type handler struct {
	evm      evmhistory.Service
	solana   solanahistory.Service
	defaults Defaults
}

// param returns the query value for key, or fallback when it is absent.
func param(r *http.Request, key, fallback string) (string, error) {
	if v := r.URL.Query().Get(key); v != "" {
		return v, nil
	}

	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("%w: %s", ErrMissingParameter, key)
}

func (h *handler) parseEVMQuery(r *http.Request) (evmQuery, error) {
	address, err := param(r, "address", h.defaults.Address)
	if err != nil {
		return evmQuery{}, err
	}

	rawEnd, err := param(r, "end", h.defaults.EndDate)
	if err != nil {
		return evmQuery{}, err
	}

	end, err := dates.Parse(rawEnd)
	if err != nil {
		return evmQuery{}, err
	}

	q := evmQuery{Address: address, End: end}
	return q, validator.Validate(q)
}

func (h *handler) parseSolanaQuery(r *http.Request) (solanaQuery, error) {
	address, err := param(r, "address", h.defaults.Address)
	if err != nil {
		return solanaQuery{}, err
	}

	rawStart, err := param(r, "start", h.defaults.StartDate)
	if err != nil {
		return solanaQuery{}, err
	}

	rawEnd, err := param(r, "end", h.defaults.EndDate)
	if err != nil {
		return solanaQuery{}, err
	}

	start, err := dates.Parse(rawStart)
	if err != nil {
		return solanaQuery{}, err
	}

	end, err := dates.ParseEnd(rawEnd)
	if err != nil {
		return solanaQuery{}, err
	}

	if end.Before(start) {
		return solanaQuery{}, fmt.Errorf("%w: end is before start", validator.ErrValidationFailed)
	}

	q := solanaQuery{Address: address, Start: start, End: end}
	return q, validator.Validate(q)
}

func (h *handler) evmTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseEVMQuery(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	err = stream.Run(w, func() ([]evmhistory.Transaction, error) {
		return h.evm.Fetch(r.Context(), q.Address, q.End)
	})
	if err != nil {
		logger.Error(r.Context(), "evm transaction stream failed", "error", err)
	}
}

func (h *handler) solanaTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseSolanaQuery(r)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	err = stream.Run(w, func() ([]solanahistory.TransactionDetails, error) {
		return h.solana.Fetch(r.Context(), q.Address, q.Start, q.End)
	})
	if err != nil {
		logger.Error(r.Context(), "solana transaction stream failed", "error", err)
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	logger.Warn(r.Context(), "rejecting malformed query", "http.query", r.URL.RawQuery, "error", err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

// NewHandler returns the routes serving both histories.
func NewHandler(evm evmhistory.Service, solana solanahistory.Service, defaults Defaults) http.Handler {
	h := &handler{
		evm:      evm,
		solana:   solana,
		defaults: defaults,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /evm/transactions", h.evmTransactions)
	mux.HandleFunc("GET /solana/transactions", h.solanaTransactions)

	return withRequestLogging(mux)
}
