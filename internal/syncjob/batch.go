package syncjob

// placeholderOrderID marks settlement rows that carry no real order
// reference (fees, reserves). They are never dispatched.
const placeholderOrderID = "---"

// Candidate is one settlement row considered for a dispatch batch.
type Candidate struct {
	OrderID        string
	ReadyToProcess bool
}

// BuildBatch selects the order IDs to dispatch from a candidate list.
// Eligible candidates have a non-empty, non-placeholder order ID and are not
// yet ready to process. Duplicates keep their first occurrence only, and the
// result is capped at maxCount. Order of the candidate list is preserved.
func BuildBatch(candidates []Candidate, maxCount int) []string {
	if maxCount <= 0 {
		return nil
	}

	batch := make([]string, 0, maxCount)
	seen := make(map[string]struct{}, maxCount)

	for _, c := range candidates {
		if len(batch) >= maxCount {
			break
		}
		if c.ReadyToProcess || c.OrderID == "" || c.OrderID == placeholderOrderID {
			continue
		}
		if _, ok := seen[c.OrderID]; ok {
			continue
		}
		seen[c.OrderID] = struct{}{}
		batch = append(batch, c.OrderID)
	}

	return batch
}
