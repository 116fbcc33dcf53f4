package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrCancelled = errors.New("deployment was cancelled")

type (
	// InsufficientFundsError is recoverable: deposit more funds and resume.
	InsufficientFundsError struct {
		Available *big.Int
		Required  *big.Int
	}

	// ExecutionRevertError means the deployment can never complete. A new
	// deployment with a fresh bundle is required.
	ExecutionRevertError struct {
		DeploymentID common.Hash
		TxHash       common.Hash
		Reason       string
	}

	// NetworkError is a transient RPC failure. Nothing retries automatically.
	NetworkError struct {
		Op  string
		Err error
	}
)

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in manager: available %s wei, required %s wei", e.Available, e.Required)
}

// Shortfall is the amount that must be deposited.
func (e *InsufficientFundsError) Shortfall() *big.Int {
	return new(big.Int).Sub(e.Required, e.Available)
}

func (e *ExecutionRevertError) Error() string {
	if e.TxHash == (common.Hash{}) {
		return fmt.Sprintf("deployment %s failed: %s", e.DeploymentID.Hex(), e.Reason)
	}
	return fmt.Sprintf("deployment %s failed in tx %s: %s", e.DeploymentID.Hex(), e.TxHash.Hex(), e.Reason)
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
