// Package solana implements solanahistory.RPC for Solana nodes using a
// JSON-RPC client and the result types of github.com/gagliardetto/solana-go.
package solana

import (
	"context"
	"encoding/json"

	"github.com/gabapcia/txhistory/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/txhistory/internal/solanahistory"

	"github.com/gagliardetto/solana-go/rpc"
)

// commitment is the ledger state every query reads from.
const commitment = rpc.CommitmentConfirmed

// client implements solanahistory.RPC over a JSON-RPC connection.
type client struct {
	conn jsonrpc.Client
}

var _ solanahistory.RPC = (*client)(nil)

// GetSignaturesForAddress implements solanahistory.RPC.
func (c *client) GetSignaturesForAddress(ctx context.Context, address, before string, limit int) ([]solanahistory.Signature, error) {
	opts := map[string]any{
		"limit":      limit,
		"commitment": commitment,
	}
	if before != "" {
		opts["before"] = before
	}

	data, err := c.conn.Fetch(ctx, "getSignaturesForAddress", address, opts)
	if err != nil {
		return nil, err
	}

	var result []*rpc.TransactionSignature
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	signatures := make([]solanahistory.Signature, 0, len(result))
	for _, s := range result {
		if s == nil {
			continue
		}

		signatures = append(signatures, solanahistory.Signature{
			Signature: s.Signature.String(),
			BlockTime: unixSeconds(s.BlockTime),
		})
	}

	return signatures, nil
}

// GetTransaction implements solanahistory.RPC. A null result, which the node
// returns for unknown or pruned signatures, yields a nil transaction.
func (c *client) GetTransaction(ctx context.Context, signature string) (*solanahistory.Transaction, error) {
	data, err := c.conn.Fetch(ctx, "getTransaction", signature, map[string]any{
		"commitment":                     commitment,
		"encoding":                       "base64",
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return nil, err
	}

	var result *rpc.GetTransactionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	if result == nil {
		return nil, nil
	}

	tx := &solanahistory.Transaction{
		Signature: signature,
		BlockTime: unixSeconds(result.BlockTime),
	}

	if result.Meta != nil {
		tx.PreBalances = result.Meta.PreBalances
		tx.PostBalances = result.Meta.PostBalances
		tx.LogMessages = result.Meta.LogMessages
	}

	return tx, nil
}

func unixSeconds[T ~int64](t *T) *int64 {
	if t == nil {
		return nil
	}

	v := int64(*t)
	return &v
}

// NewClient creates a Solana client on top of the given JSON-RPC connection.
func NewClient(conn jsonrpc.Client) *client {
	return &client{
		conn: conn,
	}
}
