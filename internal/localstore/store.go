// Package localstore keeps the pre-session cart: line items queued before the
// remote cart exists. Records survive a restart of the shopper process.
//
// Every backend stores a JSON array of line items under a key. Absent or
// malformed content reads as an empty sequence; only backend failures (I/O,
// network) are reported as errors.
package localstore

import (
	"context"
	"encoding/json"

	"cart-sync/internal/model"
)

// Store is the key/value capability the reconciler needs.
// Writing an empty sequence deletes the record.
type Store interface {
	Read(ctx context.Context, key string) ([]model.LineItem, error)
	Write(ctx context.Context, key string, items []model.LineItem) error
}

// decodeItems parses a stored record. Any decoding failure yields an empty
// sequence; entries that could never be sent to the cart service are dropped.
func decodeItems(data []byte) []model.LineItem {
	if len(data) == 0 {
		return []model.LineItem{}
	}

	var raw []model.LineItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return []model.LineItem{}
	}

	items := make([]model.LineItem, 0, len(raw))
	for _, item := range raw {
		if item.Valid() {
			items = append(items, item)
		}
	}
	return items
}

func encodeItems(items []model.LineItem) ([]byte, error) {
	return json.Marshal(items)
}
