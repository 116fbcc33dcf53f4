package executor

import (
	"context"
	"fmt"

	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/ethereum/go-ethereum/common"
)

// BatchTooLargeError means a single action does not fit under the gas ceiling.
type BatchTooLargeError struct {
	ReferenceName string
	Gas           uint64
	Ceiling       uint64
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("action for %s needs %d gas, above the batch gas ceiling of %d", e.ReferenceName, e.Gas, e.Ceiling)
}

// batchSize returns the length of the longest prefix of items whose estimate
// fits the ceiling, along with that estimate. The whole slice is tried first;
// only when it does not fit is the prefix length binary searched.
func (e *Executor) batchSize(ctx context.Context, id common.Hash, items []bundle.BundledAction) (int, uint64, error) {
	gas, fits, err := e.tryBatch(ctx, id, items)
	if err != nil {
		return 0, 0, err
	}
	if fits {
		return len(items), gas, nil
	}
	if len(items) == 1 {
		return 0, 0, &BatchTooLargeError{ReferenceName: items[0].Raw.ReferenceName, Gas: gas, Ceiling: e.gasCeiling}
	}
	return e.searchPrefix(ctx, id, items)
}

// searchPrefix knows items does not fit as a whole, so the answer lies in
// [0, len-1]; zero means even one action is too large.
func (e *Executor) searchPrefix(ctx context.Context, id common.Hash, items []bundle.BundledAction) (int, uint64, error) {
	estimates := make(map[int]uint64)
	lo, hi := 0, len(items)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		gas, fits, err := e.tryBatch(ctx, id, items[:mid])
		if err != nil {
			return 0, 0, err
		}
		estimates[mid] = gas
		if fits {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	if lo == 0 {
		return 0, 0, &BatchTooLargeError{ReferenceName: items[0].Raw.ReferenceName, Gas: estimates[1], Ceiling: e.gasCeiling}
	}
	return lo, estimates[lo], nil
}

func (e *Executor) tryBatch(ctx context.Context, id common.Hash, batch []bundle.BundledAction) (uint64, bool, error) {
	e.metrics.RecordEstimate()
	gas, err := e.estimator.EstimateBatch(ctx, id, batch)
	if err != nil {
		return 0, false, fmt.Errorf("failed to estimate batch of %d: %w", len(batch), err)
	}
	return gas, gas <= e.gasCeiling, nil
}
