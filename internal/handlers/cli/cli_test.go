package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gabapcia/txhistory/internal/evmhistory"
	"github.com/gabapcia/txhistory/internal/export"
	"github.com/gabapcia/txhistory/internal/solanahistory"
	"github.com/gabapcia/txhistory/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
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

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, batch export.Batch) error {
	return m.Called(ctx, batch).Error(0)
}

func (m *publisherMock) Close() error {
	return m.Called().Error(0)
}

// pagedExplorer serves a single page of raw records to a real evmhistory service.
type pagedExplorer []evmhistory.RawTransaction

func (e pagedExplorer) ListInternalTransactions(_ context.Context, _ string, page, _ int) ([]evmhistory.RawTransaction, error) {
	if page > 1 {
		return nil, nil
	}
	return e, nil
}

func command(t *testing.T, app *cli.Command, name string) *cli.Command {
	t.Helper()

	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}

	require.FailNow(t, "command not registered", name)
	return nil
}

func runApp(t *testing.T, app *cli.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app.Writer = &out

	err := app.Run(t.Context(), append([]string{"txhistory"}, args...))
	return out.String(), err
}

func TestNewApp(t *testing.T) {
	t.Run("should register every command", func(t *testing.T) {
		app := newApp(new(evmServiceMock), new(solanaServiceMock), nil, Defaults{})

		names := make([]string, len(app.Commands))
		for i, cmd := range app.Commands {
			names[i] = cmd.Name
		}

		assert.Equal(t, "txhistory", app.Name)
		assert.Equal(t, []string{"evm", "solana", "serve"}, names)
	})
}

func TestEVMCommand(t *testing.T) {
	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	txs := []evmhistory.Transaction{
		{BlockNumber: "2", Hash: "0xb", ValueMatic: 2, IsError: "No"},
		{BlockNumber: "1", Hash: "0xa", ValueMatic: 0.5, IsError: "Yes"},
	}

	t.Run("should write the fetched transactions to the csv file", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "out.csv")

		evm := new(evmServiceMock)
		evm.On("Fetch", mock.Anything, evmAddress, cutoff).Return(txs, nil).Once()

		app := newApp(evm, new(solanaServiceMock), nil, Defaults{})
		out, err := runApp(t, app, "evm", "--address", evmAddress, "--end-date", "2024-04-01", "--output", output)
		require.NoError(t, err)

		data, err := os.ReadFile(output)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "blockNumber,timeStamp,hash"))
		assert.Contains(t, lines[1], "0xb")
		assert.Contains(t, lines[2], "0xa")
		assert.Contains(t, out, "2 transactions saved to "+output)
		evm.AssertExpectations(t)
	})

	t.Run("should describe the end date as the newest date included", func(t *testing.T) {
		evm := command(t, newApp(new(evmServiceMock), new(solanaServiceMock), nil, Defaults{}), "evm")

		assert.Equal(t, "Fetches internal transactions at or before the end date and writes them as CSV.", evm.Usage)

		var endDate *cli.StringFlag
		for _, f := range evm.Flags {
			if sf, ok := f.(*cli.StringFlag); ok && sf.Name == "end-date" {
				endDate = sf
			}
		}
		require.NotNil(t, endDate)
		assert.Equal(t, "Newest date to include (YYYY-MM-DD or RFC 3339)", endDate.Usage)
	})

	t.Run("should export only transactions at or before the end date", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "out.csv")
		explorer := pagedExplorer{
			{BlockNumber: "2", TimeStamp: "1714521600", Hash: "0xnew", Value: "1", IsError: "0"},
			{BlockNumber: "1", TimeStamp: "1700000000", Hash: "0xold", Value: "1", IsError: "0"},
		}
		svc := evmhistory.New(explorer, evmhistory.WithPageDelay(0))

		app := newApp(svc, new(solanaServiceMock), nil, Defaults{})
		_, err := runApp(t, app, "evm", "--address", evmAddress, "--end-date", "2024-04-01", "--output", output)
		require.NoError(t, err)

		data, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Contains(t, string(data), "0xold")
		assert.NotContains(t, string(data), "0xnew")
	})

	t.Run("should fall back to the configured defaults", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "out.csv")

		evm := new(evmServiceMock)
		evm.On("Fetch", mock.Anything, evmAddress, cutoff).Return(txs, nil).Once()

		app := newApp(evm, new(solanaServiceMock), nil, Defaults{Address: evmAddress, EndDate: "2024-04-01"})
		_, err := runApp(t, app, "evm", "--output", output)

		require.NoError(t, err)
		assert.FileExists(t, output)
	})

	t.Run("should fail when the address is missing", func(t *testing.T) {
		evm := new(evmServiceMock)
		app := newApp(evm, new(solanaServiceMock), nil, Defaults{})

		_, err := runApp(t, app, "evm", "--end-date", "2024-04-01")

		assert.ErrorIs(t, err, ErrMissingFlag)
		assert.ErrorContains(t, err, "--address")
		evm.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should fail on a malformed date", func(t *testing.T) {
		app := newApp(new(evmServiceMock), new(solanaServiceMock), nil, Defaults{})

		_, err := runApp(t, app, "evm", "--address", evmAddress, "--end-date", "April 1st")

		assert.Error(t, err)
	})

	t.Run("should not create the file when nothing was fetched", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "out.csv")
		boom := errors.New("struct validation failed")

		evm := new(evmServiceMock)
		evm.On("Fetch", mock.Anything, evmAddress, cutoff).Return(nil, boom).Once()

		app := newApp(evm, new(solanaServiceMock), nil, Defaults{})
		_, err := runApp(t, app, "evm", "--address", evmAddress, "--end-date", "2024-04-01", "--output", output)

		assert.ErrorIs(t, err, boom)
		assert.NoFileExists(t, output)
	})

	t.Run("should keep the partial result of an interrupted fetch", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "out.csv")
		pub := new(publisherMock)

		evm := new(evmServiceMock)
		evm.On("Fetch", mock.Anything, evmAddress, cutoff).Return(txs[:1], context.Canceled).Once()

		app := newApp(evm, new(solanaServiceMock), pub, Defaults{})
		_, err := runApp(t, app, "evm", "--address", evmAddress, "--end-date", "2024-04-01", "--output", output, "--publish")

		assert.ErrorIs(t, err, context.Canceled)

		data, readErr := os.ReadFile(output)
		require.NoError(t, readErr)
		assert.Contains(t, string(data), "0xb")
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("should publish when asked to", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "out.csv")

		evm := new(evmServiceMock)
		evm.On("Fetch", mock.Anything, evmAddress, cutoff).Return(txs, nil).Once()

		pub := new(publisherMock)
		pub.On("Publish", mock.Anything, mock.MatchedBy(func(b export.Batch) bool {
			return b.Chain == evmhistory.ChainName && b.Address == evmAddress && len(b.Records) == 2 && b.Records[0].Key() == "0xb"
		})).Return(nil).Once()

		app := newApp(evm, new(solanaServiceMock), pub, Defaults{})
		_, err := runApp(t, app, "evm", "--address", evmAddress, "--end-date", "2024-04-01", "--output", output, "--publish")

		require.NoError(t, err)
		pub.AssertExpectations(t)
	})
}

func TestSolanaCommand(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 30, 23, 59, 59, 0, time.UTC)
	details := []solanahistory.TransactionDetails{
		{TransactionID: "sig1", Chain: solanahistory.ChainName, Action: solanahistory.ActionRefresh},
	}

	t.Run("should stream the transactions to the output", func(t *testing.T) {
		solana := new(solanaServiceMock)
		solana.On("Fetch", mock.Anything, solanaAddress, start, end).Return(details, nil).Once()

		app := newApp(new(evmServiceMock), solana, nil, Defaults{})
		out, err := runApp(t, app, "solana", "--address", solanaAddress, "--start", "2024-04-01", "--end", "2024-04-30")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(out, stream.StartMarker))
		assert.Contains(t, out, `"transactionId":"sig1"`)
		assert.True(t, strings.HasSuffix(out, stream.DoneMarker))
	})

	t.Run("should end the stream with the error marker on failure", func(t *testing.T) {
		boom := errors.New("node unavailable")

		solana := new(solanaServiceMock)
		solana.On("Fetch", mock.Anything, solanaAddress, start, end).Return(nil, boom).Once()

		app := newApp(new(evmServiceMock), solana, nil, Defaults{Address: solanaAddress, StartDate: "2024-04-01", EndDate: "2024-04-30"})
		out, err := runApp(t, app, "solana")

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, stream.StartMarker+stream.ErrorPrefix+`"node unavailable"`+"\n", out)
	})

	t.Run("should require the window", func(t *testing.T) {
		app := newApp(new(evmServiceMock), new(solanaServiceMock), nil, Defaults{})

		_, err := runApp(t, app, "solana", "--address", solanaAddress, "--end", "2024-04-30")

		assert.ErrorIs(t, err, ErrMissingFlag)
		assert.ErrorContains(t, err, "--start")
	})

	t.Run("should fail to publish without a sink", func(t *testing.T) {
		solana := new(solanaServiceMock)
		solana.On("Fetch", mock.Anything, solanaAddress, start, end).Return(details, nil).Once()

		app := newApp(new(evmServiceMock), solana, nil, Defaults{})
		_, err := runApp(t, app, "solana", "--address", solanaAddress, "--start", "2024-04-01", "--end", "2024-04-30", "--publish")

		assert.ErrorIs(t, err, ErrNoPublisher)
	})

	t.Run("should return publishing failures", func(t *testing.T) {
		boom := errors.New("broker down")

		solana := new(solanaServiceMock)
		solana.On("Fetch", mock.Anything, solanaAddress, start, end).Return(details, nil).Once()

		pub := new(publisherMock)
		pub.On("Publish", mock.Anything, mock.MatchedBy(func(b export.Batch) bool {
			return b.Chain == solanahistory.ChainName && len(b.Records) == 1 && b.Records[0].Key() == "sig1"
		})).Return(boom).Once()

		app := newApp(new(evmServiceMock), solana, pub, Defaults{})
		_, err := runApp(t, app, "solana", "--address", solanaAddress, "--start", "2024-04-01", "--end", "2024-04-30", "--publish")

		assert.ErrorIs(t, err, boom)
		pub.AssertExpectations(t)
	})
}

func TestServeCommand(t *testing.T) {
	t.Run("should create command with the configured address", func(t *testing.T) {
		cmd := serveCommand(new(evmServiceMock), new(solanaServiceMock), Defaults{HTTPAddr: ":9090"})

		assert.Equal(t, "serve", cmd.Name)
		require.Len(t, cmd.Flags, 1)

		addrFlag := cmd.Flags[0].(*cli.StringFlag)
		assert.Equal(t, "addr", addrFlag.Name)
		assert.Equal(t, ":9090", addrFlag.Value)
	})

	t.Run("should fail without an address", func(t *testing.T) {
		app := newApp(new(evmServiceMock), new(solanaServiceMock), nil, Defaults{})

		_, err := runApp(t, app, "serve")

		assert.ErrorIs(t, err, ErrMissingFlag)
	})

	t.Run("should stop when the context is canceled", func(t *testing.T) {
		app := newApp(new(evmServiceMock), new(solanaServiceMock), nil, Defaults{HTTPAddr: "127.0.0.1:0"})

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		err := app.Run(ctx, []string{"txhistory", "serve"})
		assert.NoError(t, err)
	})
}
