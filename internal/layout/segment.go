package layout

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Segment is one write into one 32-byte storage cell. Offset counts bytes from
// the low-order (right) end of the slot, as the compiler reports it.
type Segment struct {
	Slot   common.Hash
	Offset int
	Value  []byte
}

// EncodingError is an internal invariant violation while encoding a variable.
// It never occurs for a well-formed layout and well-typed values.
type EncodingError struct {
	Path   string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode %s: %s", e.Path, e.Reason)
}

func encodingErrorf(path, format string, args ...any) *EncodingError {
	return &EncodingError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that the segment fits inside its slot.
func (s Segment) Validate() error {
	if s.Offset < 0 || s.Offset > 31 {
		return encodingErrorf(s.Slot.Hex(), "offset %d out of range", s.Offset)
	}
	if len(s.Value) == 0 {
		return encodingErrorf(s.Slot.Hex(), "empty value at offset %d", s.Offset)
	}
	if s.Offset+len(s.Value) > 32 {
		return encodingErrorf(s.Slot.Hex(), "%d byte value at offset %d exceeds the slot", len(s.Value), s.Offset)
	}
	return nil
}

// checkOverlap reports segments that write overlapping byte ranges of the same slot.
func checkOverlap(path string, segments []Segment) error {
	bySlot := make(map[common.Hash][]Segment)
	for _, s := range segments {
		bySlot[s.Slot] = append(bySlot[s.Slot], s)
	}

	for slot, group := range bySlot {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Offset < group[j].Offset })
		for i := 1; i < len(group); i++ {
			prev := group[i-1]
			if prev.Offset+len(prev.Value) > group[i].Offset {
				return encodingErrorf(path, "overlapping writes to slot %s at offsets %d and %d", slot.Hex(), prev.Offset, group[i].Offset)
			}
		}
	}
	return nil
}
