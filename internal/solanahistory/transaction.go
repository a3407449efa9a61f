package solanahistory

import (
	"strings"
	"time"
)

// ChainName is the chain label carried by every Solana record.
const ChainName = "Solana"

// TimeLayout formats TransactionTime as an ISO-8601 UTC instant with
// millisecond precision, e.g. "2024-04-24T00:00:00.000Z".
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// issueMarker is the log substring that classifies a transaction as an issue.
const issueMarker = "Issue"

// Action classifies a transaction by what its program logs report.
type Action string

const (
	ActionIssue   Action = "Issue"
	ActionRefresh Action = "Refresh"
)

// Signature is one entry of an address's signature history.
type Signature struct {
	Signature string
	BlockTime *int64 // unix seconds, nil when the node does not know it
}

// Transaction holds the parts of a confirmed transaction the history needs.
type Transaction struct {
	Signature    string
	BlockTime    *int64 // unix seconds, nil when the node does not know it
	PreBalances  []uint64
	PostBalances []uint64
	LogMessages  []string
}

// Amount holds the lamport balances of every account touched by a transaction.
type Amount struct {
	PostBalances       []uint64 `json:"postBalances"`
	PreBalances        []uint64 `json:"preBalances"`
	BalanceDifferences []int64  `json:"balanceDifferences"`
}

// TransactionDetails is the normalized form of a Solana transaction.
type TransactionDetails struct {
	TransactionTime string `json:"transactionTime"`
	TransactionID   string `json:"transactionId"`
	Chain           string `json:"chain"`
	AmountInCrypto  Amount `json:"amountInCrypto"`
	Action          Action `json:"action"`
}

// Key identifies the transaction when it is published to external sinks.
func (d TransactionDetails) Key() string {
	return d.TransactionID
}

// balanceDifferences returns pre[i] - post[i] for every index of pre.
// Missing post entries count as zero.
func balanceDifferences(pre, post []uint64) []int64 {
	diffs := make([]int64, len(pre))
	for i, p := range pre {
		var q uint64
		if i < len(post) {
			q = post[i]
		}
		diffs[i] = int64(p) - int64(q)
	}

	return diffs
}

func classify(logs []string) Action {
	for _, line := range logs {
		if strings.Contains(line, issueMarker) {
			return ActionIssue
		}
	}

	return ActionRefresh
}

// normalize converts tx into TransactionDetails. tx.BlockTime must be set.
func normalize(tx Transaction) TransactionDetails {
	pre := tx.PreBalances
	if pre == nil {
		pre = []uint64{}
	}

	post := tx.PostBalances
	if post == nil {
		post = []uint64{}
	}

	return TransactionDetails{
		TransactionTime: time.Unix(*tx.BlockTime, 0).UTC().Format(TimeLayout),
		TransactionID:   tx.Signature,
		Chain:           ChainName,
		AmountInCrypto: Amount{
			PostBalances:       post,
			PreBalances:        pre,
			BalanceDifferences: balanceDifferences(pre, post),
		},
		Action: classify(tx.LogMessages),
	}
}
