package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// gasHeadroom is added on top of eth_estimateGas, in percent.
const gasHeadroom = 20

func (m *Manager) ExecuteActions(ctx context.Context, id common.Hash, batch []bundle.BundledAction) (common.Hash, error) {
	data, err := packExecuteActions(id, batch)
	if err != nil {
		return common.Hash{}, err
	}
	return m.transact(ctx, id, "executeActions", data)
}

func (m *Manager) InitiateUpgrade(ctx context.Context, id common.Hash, targets *bundle.TargetBundle) (common.Hash, error) {
	data, err := packTargets("initiateUpgrade", id, targets)
	if err != nil {
		return common.Hash{}, err
	}
	return m.transact(ctx, id, "initiateUpgrade", data)
}

func (m *Manager) FinalizeUpgrade(ctx context.Context, id common.Hash, targets *bundle.TargetBundle) (common.Hash, error) {
	data, err := packTargets("finalizeUpgrade", id, targets)
	if err != nil {
		return common.Hash{}, err
	}
	return m.transact(ctx, id, "finalizeUpgrade", data)
}

// EstimateBatch asks the node what executing batch would cost.
func (m *Manager) EstimateBatch(ctx context.Context, id common.Hash, batch []bundle.BundledAction) (uint64, error) {
	data, err := packExecuteActions(id, batch)
	if err != nil {
		return 0, err
	}
	gas, err := m.backend.EstimateGas(ctx, ethereum.CallMsg{From: m.from, To: &m.address, Data: data})
	if err != nil {
		return 0, &domain.NetworkError{Op: "estimate executeActions", Err: err}
	}
	return gas, nil
}

func packExecuteActions(id common.Hash, batch []bundle.BundledAction) ([]byte, error) {
	raws := make([]actions.RawAction, len(batch))
	proofs := make([]bundle.Proof, len(batch))
	for i, item := range batch {
		raws[i] = item.Raw
		proofs[i] = item.Proof
	}
	indexes, siblings := proofArgs(proofs)

	data, err := managerABI.Pack("executeActions", [32]byte(id), raws, indexes, siblings)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeActions: %w", err)
	}
	return data, nil
}

func packTargets(method string, id common.Hash, targets *bundle.TargetBundle) ([]byte, error) {
	raws := make([]actions.RawTarget, len(targets.Targets))
	proofs := make([]bundle.Proof, len(targets.Targets))
	for i, item := range targets.Targets {
		raws[i] = item.Raw
		proofs[i] = item.Proof
	}
	indexes, siblings := proofArgs(proofs)

	data, err := managerABI.Pack(method, [32]byte(id), raws, indexes, siblings)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return data, nil
}

// transact signs and sends a dynamic fee transaction to the manager and waits
// for its receipt. A reverted receipt is an ExecutionRevertError.
func (m *Manager) transact(ctx context.Context, id common.Hash, method string, data []byte) (common.Hash, error) {
	if m.key == nil {
		return common.Hash{}, errNoKey
	}

	auth, err := bind.NewKeyedTransactorWithChainID(m.key, m.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := m.backend.PendingNonceAt(ctx, m.from)
	if err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "get nonce", Err: err}
	}
	tip, err := m.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "suggest gas tip", Err: err}
	}
	head, err := m.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "get latest block", Err: err}
	}
	gas, err := m.backend.EstimateGas(ctx, ethereum.CallMsg{From: m.from, To: &m.address, Data: data})
	if err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "estimate " + method, Err: err}
	}

	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee(head), big.NewInt(2)))
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   m.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas*gasHeadroom/100,
		To:        &m.address,
		Data:      data,
	})
	signed, err := auth.Signer(m.from, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign %s: %w", method, err)
	}

	if err := m.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "send " + method, Err: err}
	}

	m.logger.
		With("method", method).
		With("deployment_id", id.Hex()).
		With("tx_hash", signed.Hash().Hex()).
		Debug("Transaction sent")

	receipt, err := bind.WaitMined(ctx, m.backend, signed)
	if err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "wait for " + method, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, &domain.ExecutionRevertError{
			DeploymentID: id,
			TxHash:       signed.Hash(),
			Reason:       fmt.Sprintf("%s reverted", method),
		}
	}
	return signed.Hash(), nil
}

func baseFee(head *types.Header) *big.Int {
	if head.BaseFee == nil {
		return new(big.Int)
	}
	return head.BaseFee
}
