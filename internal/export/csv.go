// Package export writes fetched transactions out of the process: to CSV files
// for the EVM history, and to external sinks through the Publisher contract.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gabapcia/txhistory/internal/evmhistory"
)

// csvHeader lists the EVM columns in the order they are written.
var csvHeader = []string{
	"blockNumber",
	"timeStamp",
	"hash",
	"from",
	"to",
	"valueMatic",
	"type",
	"gas",
	"gasUsed",
	"traceId",
	"isError",
	"errCode",
}

func csvRow(tx evmhistory.Transaction) []string {
	return []string{
		tx.BlockNumber,
		tx.TimeStamp,
		tx.Hash,
		tx.From,
		tx.To,
		strconv.FormatFloat(tx.ValueMatic, 'f', -1, 64),
		tx.Type,
		tx.Gas,
		tx.GasUsed,
		tx.TraceID,
		tx.IsError,
		tx.ErrCode,
	}
}

// WriteCSV writes a header row followed by one row per transaction.
func WriteCSV(w io.Writer, txs []evmhistory.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, tx := range txs {
		if err := cw.Write(csvRow(tx)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile creates (or truncates) path and writes txs to it as CSV.
func WriteCSVFile(path string, txs []evmhistory.Transaction) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	return WriteCSV(f, txs)
}
