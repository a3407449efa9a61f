package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gabapcia/txhistory/internal/export"
	"github.com/gabapcia/txhistory/internal/pkg/logger"

	redis "github.com/redis/go-redis/v9"
)

// defaultKeyPrefix is the Redis key namespace of the transaction streams.
const defaultKeyPrefix = "txhistory"

// streamKey builds the stream a batch is appended to, e.g.
// "txhistory:solana:TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA".
func (c *client) streamKey(chain, address string) string {
	return fmt.Sprintf("%s:%s:%s", c.keyPrefix, strings.ToLower(chain), address)
}

// Publish appends every record of the batch to the batch's stream as an entry
// with two fields: "key", the record key, and "data", the record as JSON.
// It stops at the first failure; entries already added stay in the stream.
func (c *client) Publish(ctx context.Context, batch export.Batch) error {
	stream := c.streamKey(batch.Chain, batch.Address)

	for _, record := range batch.Records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record %q: %w", record.Key(), err)
		}

		args := &redis.XAddArgs{
			Stream: stream,
			ID:     "*",
			Values: []any{"key", record.Key(), "data", string(data)},
		}
		if c.maxLen > 0 {
			args.MaxLen = c.maxLen
			args.Approx = true
		}

		if err := c.conn.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", stream, err)
		}
	}

	logger.Info(ctx, "batch published to redis stream",
		"redis.stream", stream,
		"redis.entries", len(batch.Records),
	)

	return nil
}

// Ensure the client satisfies the export.Publisher interface at compile time.
var _ export.Publisher = new(client)
