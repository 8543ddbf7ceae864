package reconcile

import "cart-sync/internal/model"

// Drift describes how the shopper's optimistic view differs from the server's.
// Matching is by ProductID. Entries follow the order of the slices they came from.
type Drift struct {
	Missing    []model.LineItem // In the local view but not on the server
	Unexpected []model.LineItem // On the server but not in the local view
	Changed    []QuantityChange // In both with different quantities
}

// QuantityChange is one product whose quantity disagrees.
type QuantityChange struct {
	ProductID model.ProductID
	Local     int
	Server    int
}

// IsEmpty returns true if both views agree.
func (d *Drift) IsEmpty() bool {
	return len(d.Missing) == 0 && len(d.Unexpected) == 0 && len(d.Changed) == 0
}

// DiffLineItems computes the drift between the local view and the server view.
func DiffLineItems(local, server []model.LineItem) *Drift {
	drift := &Drift{}

	serverByID := make(map[model.ProductID]model.LineItem, len(server))
	for _, item := range server {
		serverByID[item.ProductID] = item
	}
	localByID := make(map[model.ProductID]struct{}, len(local))

	for _, item := range local {
		localByID[item.ProductID] = struct{}{}
		remote, exists := serverByID[item.ProductID]
		switch {
		case !exists:
			drift.Missing = append(drift.Missing, item)
		case remote.Quantity != item.Quantity:
			drift.Changed = append(drift.Changed, QuantityChange{
				ProductID: item.ProductID,
				Local:     item.Quantity,
				Server:    remote.Quantity,
			})
		}
	}

	for _, item := range server {
		if _, exists := localByID[item.ProductID]; !exists {
			drift.Unexpected = append(drift.Unexpected, item)
		}
	}

	return drift
}

// mergeLines folds repeated products into one line each, summing quantities.
// A product keeps the position and display snapshot of its first occurrence.
func mergeLines(items []model.LineItem) []model.LineItem {
	merged := make([]model.LineItem, 0, len(items))
	index := make(map[model.ProductID]int, len(items))
	for _, item := range items {
		if !item.Valid() {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
