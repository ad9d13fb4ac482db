package checkpoint

import "fmt"

// SlotRange represents an inclusive slot range.
type SlotRange struct {
	From uint64
	To   uint64
}

// SplitRange splits a slot range into chunks of size chunkSize.
func SplitRange(from, to, chunkSize uint64) ([]SlotRange, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to slot must be >= from slot")
	}

	ranges := make([]SlotRange, 0)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= chunkSize {
			end = to
		} else {
			end = start + chunkSize - 1
		}
		ranges = append(ranges, SlotRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
