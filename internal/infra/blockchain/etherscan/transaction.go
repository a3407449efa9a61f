package etherscan

import "github.com/gabapcia/txhistory/internal/evmhistory"

type (
	// InternalTransactionResponse is one entry of the txlistinternal result array.
	InternalTransactionResponse struct {
		BlockNumber     string `json:"blockNumber"`
		TimeStamp       string `json:"timeStamp"`
		Hash            string `json:"hash"`
		From            string `json:"from"`
		To              string `json:"to"`
		Value           string `json:"value"`
		ContractAddress string `json:"contractAddress"`
		Input           string `json:"input"`
		Type            string `json:"type"`
		Gas             string `json:"gas"`
		GasUsed         string `json:"gasUsed"`
		TraceID         string `json:"traceId"`
		IsError         string `json:"isError"`
		ErrCode         string `json:"errCode"`
	}
)

// toRawTransaction converts the explorer entry to an evmhistory.RawTransaction.
func (t InternalTransactionResponse) toRawTransaction() evmhistory.RawTransaction {
	return evmhistory.RawTransaction{
		BlockNumber: t.BlockNumber,
		TimeStamp:   t.TimeStamp,
		Hash:        t.Hash,
		From:        t.From,
		To:          t.To,
		Value:       t.Value,
		Type:        t.Type,
		Gas:         t.Gas,
		GasUsed:     t.GasUsed,
		TraceID:     t.TraceID,
		IsError:     t.IsError,
		ErrCode:     t.ErrCode,
	}
}
