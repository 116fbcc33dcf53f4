// Package chain talks to the deployment manager contract over JSON-RPC.
package chain

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/domain"
	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:embed manager_abi.json
var managerABIJSON string

var managerABI = mustParseABI(managerABIJSON)

type (
	// Backend is the subset of ethclient.Client the manager needs.
	Backend interface {
		ethereum.ContractCaller
		ethereum.GasEstimator
		ethereum.GasPricer
		ethereum.LogFilterer
		ethereum.TransactionSender
		bind.DeployBackend
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		SuggestGasTipCap(ctx context.Context) (*big.Int, error)
		HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
		BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	}

	// Manager is the deployment manager contract of one organization. It
	// serves the executor, the monitor and the RPC gas estimator.
	Manager struct {
		backend   Backend
		address   common.Address
		chainID   *big.Int
		key       *ecdsa.PrivateKey
		from      common.Address
		fromBlock *big.Int
		logger    *slog.Logger
	}
)

// NewManager binds the manager at address. key may be nil for read-only use.
func NewManager(backend Backend, address common.Address, chainID *big.Int, key *ecdsa.PrivateKey) *Manager {
	m := &Manager{
		backend: backend,
		address: address,
		chainID: chainID,
		key:     key,
		logger:  logger.Named("manager").With("manager", address.Hex()),
	}
	if key != nil {
		m.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return m
}

// Dial connects to rpcURL and binds the manager at address.
func Dial(ctx context.Context, rpcURL string, address common.Address, privateKey string) (*Manager, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, &domain.NetworkError{Op: "get chain id", Err: err}
	}

	var key *ecdsa.PrivateKey
	if privateKey != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	return NewManager(client, address, chainID, key), client.Close, nil
}

// WithFromBlock limits the completion event search to blocks from n on.
func (m *Manager) WithFromBlock(n uint64) *Manager {
	m.fromBlock = new(big.Int).SetUint64(n)
	return m
}

func (m *Manager) Address() common.Address { return m.address }

// State reads the deployment record and its executed mask.
func (m *Manager) State(ctx context.Context, id common.Hash) (*domain.DeploymentState, error) {
	out, err := m.call(ctx, "deployments", [32]byte(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 9 {
		return nil, fmt.Errorf("unexpected deployments output length %d", len(out))
	}

	state := &domain.DeploymentState{
		Status:                domain.Status(out[0].(uint8)),
		ActionRoot:            common.Hash(out[1].([32]byte)),
		TargetRoot:            common.Hash(out[2].([32]byte)),
		NumActions:            out[3].(*big.Int).Uint64(),
		NumTargets:            out[4].(*big.Int).Uint64(),
		NumImmutableContracts: out[5].(*big.Int).Uint64(),
		ActionsExecuted:       out[6].(*big.Int).Uint64(),
		Executor:              out[7].(common.Address),
		ArtifactURI:           out[8].(string),
	}

	flags, err := m.call(ctx, "executedActions", [32]byte(id))
	if err != nil {
		return nil, err
	}
	state.Executed = domain.ExecutedFromFlags(flags[0].([]bool))

	return state, nil
}

// AvailableFunds is the manager balance not already owed to executors.
func (m *Manager) AvailableFunds(ctx context.Context) (*big.Int, error) {
	balance, err := m.backend.BalanceAt(ctx, m.address, nil)
	if err != nil {
		return nil, &domain.NetworkError{Op: "get manager balance", Err: err}
	}
	out, err := m.call(ctx, "totalDebt")
	if err != nil {
		return nil, err
	}

	available := new(big.Int).Sub(balance, out[0].(*big.Int))
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	return available, nil
}

func (m *Manager) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := m.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &domain.NetworkError{Op: "suggest gas price", Err: err}
	}
	return price, nil
}

// GasCeiling is half of the latest block gas limit.
func (m *Manager) GasCeiling(ctx context.Context) (uint64, error) {
	head, err := m.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, &domain.NetworkError{Op: "get latest block", Err: err}
	}
	return head.GasLimit / 2, nil
}

// CompletionTx finds the transaction that emitted DeploymentCompleted for id.
func (m *Manager) CompletionTx(ctx context.Context, id common.Hash) (common.Hash, error) {
	event := managerABI.Events["DeploymentCompleted"]
	logs, err := m.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: m.fromBlock,
		Addresses: []common.Address{m.address},
		Topics:    [][]common.Hash{{event.ID}, {id}},
	})
	if err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "query completion logs", Err: err}
	}
	if len(logs) == 0 {
		return common.Hash{}, fmt.Errorf("no DeploymentCompleted event for %s", id.Hex())
	}
	return logs[len(logs)-1].TxHash, nil
}

// CodeAt returns the code deployed at addr.
func (m *Manager) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := m.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, &domain.NetworkError{Op: "get code", Err: err}
	}
	return code, nil
}

func (m *Manager) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := managerABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	result, err := m.backend.CallContract(ctx, ethereum.CallMsg{To: &m.address, Data: data}, nil)
	if err != nil {
		return nil, &domain.NetworkError{Op: "call " + method, Err: err}
	}
	out, err := managerABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

func mustParseABI(data string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(data))
	if err != nil {
		panic(fmt.Errorf("failed to parse manager ABI: %w", err))
	}
	return parsed
}

var errNoKey = errors.New("no private key configured for transactions")

// proofArgs turns bundled items into the parallel index and proof arrays the
// manager expects.
func proofArgs(proofs []bundle.Proof) ([]*big.Int, [][][32]byte) {
	indexes := make([]*big.Int, len(proofs))
	siblings := make([][][32]byte, len(proofs))
	for i, p := range proofs {
		indexes[i] = new(big.Int).SetUint64(p.Index)
		siblings[i] = make([][32]byte, len(p.Siblings))
		for j, s := range p.Siblings {
			siblings[i][j] = s
		}
	}
	return indexes, siblings
}
