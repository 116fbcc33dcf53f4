// Package domain holds the deployment state mirrored from the manager contract
// and the errors shared by the executor and the monitor.
package domain

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"
)

// Status is the on-chain lifecycle of a deployment.
type Status uint8

const (
	StatusEmpty Status = iota
	StatusProposed
	StatusApproved
	StatusProxiesInitiated
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusProposed:
		return "proposed"
	case StatusApproved:
		return "approved"
	case StatusProxiesInitiated:
		return "proxies-initiated"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Active reports whether actions may still be executed.
func (s Status) Active() bool {
	return s == StatusApproved || s == StatusProxiesInitiated
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// DeploymentState is read from the chain and never written locally. A fresh
// read is required after every suspend point.
type DeploymentState struct {
	Status                Status
	Executed              *bitset.BitSet
	ActionRoot            common.Hash
	TargetRoot            common.Hash
	NumActions            uint64
	NumTargets            uint64
	NumImmutableContracts uint64
	ActionsExecuted       uint64
	Executor              common.Address
	ArtifactURI           string
}

// IsExecuted reports whether the action at index has been applied.
func (s *DeploymentState) IsExecuted(index uint64) bool {
	return s.Executed != nil && s.Executed.Test(uint(index))
}

// ExecutedFromFlags builds the executed mask from the manager's bool array.
func ExecutedFromFlags(flags []bool) *bitset.BitSet {
	mask := bitset.New(uint(len(flags)))
	for i, done := range flags {
		if done {
			mask.Set(uint(i))
		}
	}
	return mask
}
