package evmhistory

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ChainName is the chain label used when EVM records are published.
const ChainName = "Polygon"

// TimestampLayout is the human readable layout used for Transaction.TimeStamp.
// Times are always rendered in UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// weiDecimals is the number of decimal places between wei and the chain's native unit.
const weiDecimals = 18

var (
	// ErrInvalidTimestamp is returned when a raw record carries a non-numeric timeStamp.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidValue is returned when a raw record carries a non-numeric wei value.
	ErrInvalidValue = errors.New("invalid value")
)

// RawTransaction is an internal transaction as listed by the block explorer.
// Every field is kept as the explorer's decimal string.
type RawTransaction struct {
	BlockNumber string
	TimeStamp   string // unix seconds
	Hash        string
	From        string
	To          string
	Value       string // wei
	Type        string
	Gas         string
	GasUsed     string
	TraceID     string
	IsError     string // "0" or "1"
	ErrCode     string
}

// Transaction is the normalized form of a RawTransaction.
type Transaction struct {
	BlockNumber string  `json:"blockNumber"`
	TimeStamp   string  `json:"timeStamp"`
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	ValueMatic  float64 `json:"valueMatic"`
	Type        string  `json:"type"`
	Gas         string  `json:"gas"`
	GasUsed     string  `json:"gasUsed"`
	TraceID     string  `json:"traceId"`
	IsError     string  `json:"isError"`
	ErrCode     string  `json:"errCode"`

	// Time is the parsed block time, kept so filters never re-parse TimeStamp.
	Time time.Time `json:"-"`
}

// Key identifies the transaction when it is published to external sinks.
func (t Transaction) Key() string {
	return t.Hash
}

// Normalize converts the raw explorer record into a Transaction.
//
// The wei value is shifted by 18 decimal places with exact decimal arithmetic
// before being converted to float64, and IsError becomes "Yes" for any raw
// value other than "0".
//
// Returns ErrInvalidTimestamp or ErrInvalidValue when the numeric fields
// cannot be parsed.
func (r RawTransaction) Normalize() (Transaction, error) {
	seconds, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, r.TimeStamp)
	}

	value := decimal.Zero
	if r.Value != "" {
		if value, err = decimal.NewFromString(r.Value); err != nil {
			return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidValue, r.Value)
		}
	}

	blockTime := time.Unix(seconds, 0).UTC()

	isError := "No"
	if r.IsError != "0" {
		isError = "Yes"
	}

	return Transaction{
		BlockNumber: r.BlockNumber,
		TimeStamp:   blockTime.Format(TimestampLayout),
		Hash:        r.Hash,
		From:        r.From,
		To:          r.To,
		ValueMatic:  value.Shift(-weiDecimals).InexactFloat64(),
		Type:        r.Type,
		Gas:         r.Gas,
		GasUsed:     r.GasUsed,
		TraceID:     r.TraceID,
		IsError:     isError,
		ErrCode:     r.ErrCode,
		Time:        blockTime,
	}, nil
}
