package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gabapcia/txhistory/internal/evmhistory"
	"github.com/gabapcia/txhistory/internal/solanahistory"
	"github.com/gabapcia/txhistory/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	evmAddress    = "0x1111111111111111111111111111111111111111"
	solanaAddress = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type evmServiceMock struct {
	mock.Mock
}

func (m *evmServiceMock) Fetch(ctx context.Context, address string, cutoff time.Time) ([]evmhistory.Transaction, error) {
	args := m.Called(ctx, address, cutoff)
	txs, _ := args.Get(0).([]evmhistory.Transaction)
	return txs, args.Error(1)
}

type solanaServiceMock struct {
	mock.Mock
}

func (m *solanaServiceMock) Fetch(ctx context.Context, address string, start, end time.Time) ([]solanahistory.TransactionDetails, error) {
	args := m.Called(ctx, address, start, end)
	txs, _ := args.Get(0).([]solanahistory.TransactionDetails)
	return txs, args.Error(1)
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSolanaTransactions(t *testing.T) {
	start := time.Date(2024, 4, 24, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 24, 23, 59, 59, 0, time.UTC)

	t.Run("should stream the transactions of the window", func(t *testing.T) {
		solana := new(solanaServiceMock)
		solana.On("Fetch", mock.Anything, solanaAddress, start, end).Return([]solanahistory.TransactionDetails{
			{TransactionID: "sig1", Chain: "Solana", Action: solanahistory.ActionIssue},
		}, nil).Once()

		h := NewHandler(new(evmServiceMock), solana, Defaults{})
		rec := serve(h, "/solana/transactions?address="+solanaAddress+"&start=2024-04-24&end=2024-04-24")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

		lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, strings.TrimSuffix(stream.StartMarker, "\n"), lines[0])
		assert.Contains(t, lines[1], `"transactionId":"sig1"`)
		assert.Contains(t, lines[1], `"action":"Issue"`)
		assert.Equal(t, strings.TrimSuffix(stream.DoneMarker, "\n"), lines[2])
		solana.AssertExpectations(t)
	})

	t.Run("should fall back to the configured defaults", func(t *testing.T) {
		solana := new(solanaServiceMock)
		solana.On("Fetch", mock.Anything, solanaAddress, start, end).Return(nil, nil).Once()

		h := NewHandler(new(evmServiceMock), solana, Defaults{
			Address:   solanaAddress,
			StartDate: "2024-04-24",
			EndDate:   "2024-04-24",
		})
		rec := serve(h, "/solana/transactions")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, stream.StartMarker+stream.DoneMarker, rec.Body.String())
	})

	t.Run("should write the error marker when the fetch fails", func(t *testing.T) {
		solana := new(solanaServiceMock)
		solana.On("Fetch", mock.Anything, solanaAddress, start, end).Return(nil, errors.New("node unavailable")).Once()

		h := NewHandler(new(evmServiceMock), solana, Defaults{})
		rec := serve(h, "/solana/transactions?address="+solanaAddress+"&start=2024-04-24&end=2024-04-24")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, stream.StartMarker+stream.ErrorPrefix+`"node unavailable"`+"\n", rec.Body.String())
	})

	t.Run("should reject malformed queries", func(t *testing.T) {
		solana := new(solanaServiceMock)
		h := NewHandler(new(evmServiceMock), solana, Defaults{})

		for _, target := range []string{
			"/solana/transactions?start=2024-04-24&end=2024-04-24",
			"/solana/transactions?address=" + solanaAddress + "&end=2024-04-24",
			"/solana/transactions?address=" + solanaAddress + "&start=yesterday&end=2024-04-24",
			"/solana/transactions?address=" + solanaAddress + "&start=2024-04-25&end=2024-04-24",
			"/solana/transactions?address=not-base58!&start=2024-04-24&end=2024-04-24",
		} {
			rec := serve(h, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}

		solana.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEVMTransactions(t *testing.T) {
	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should stream the transactions up to the cutoff", func(t *testing.T) {
		evm := new(evmServiceMock)
		evm.On("Fetch", mock.Anything, evmAddress, cutoff).Return([]evmhistory.Transaction{
			{Hash: "0xabc", ValueMatic: 1.5, IsError: "No"},
		}, nil).Once()

		h := NewHandler(evm, new(solanaServiceMock), Defaults{})
		rec := serve(h, "/evm/transactions?address="+evmAddress+"&end=2024-04-01")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), stream.StartMarker))
		assert.Contains(t, rec.Body.String(), `"hash":"0xabc"`)
		assert.Contains(t, rec.Body.String(), `"valueMatic":1.5`)
		assert.True(t, strings.HasSuffix(rec.Body.String(), stream.DoneMarker))
		evm.AssertExpectations(t)
	})

	t.Run("should reject an invalid address", func(t *testing.T) {
		evm := new(evmServiceMock)
		h := NewHandler(evm, new(solanaServiceMock), Defaults{})

		rec := serve(h, "/evm/transactions?address=Your%20address&end=2024-04-01")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "evm_address")
		evm.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should reject a missing cutoff", func(t *testing.T) {
		h := NewHandler(new(evmServiceMock), new(solanaServiceMock), Defaults{})

		rec := serve(h, "/evm/transactions?address="+evmAddress)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing query parameter: end")
	})
}

func TestRouting(t *testing.T) {
	h := NewHandler(new(evmServiceMock), new(solanaServiceMock), Defaults{})

	t.Run("should answer 404 for unknown paths", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(h, "/bitcoin/transactions").Code)
	})

	t.Run("should answer 405 for other methods", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/evm/transactions", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("should propagate the caller's request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/bitcoin/transactions", nil)
		req.Header.Set("X-Request-Id", "req-42")

		h.ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	})
}
