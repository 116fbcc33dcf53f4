// Package actions defines the units of deployment work and builds them from
// contract declarations and their encoded storage.
package actions

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type ActionType uint8

const (
	ActionSetStorage     ActionType = 0
	ActionDeployContract ActionType = 1
)

func (t ActionType) String() string {
	switch t {
	case ActionSetStorage:
		return "set-storage"
	case ActionDeployContract:
		return "deploy-contract"
	default:
		return fmt.Sprintf("action(%d)", uint8(t))
	}
}

type (
	// Action is one atomic unit of deployment work. Implementations are
	// immutable once built.
	Action interface {
		Type() ActionType
		Raw() (RawAction, error)
	}

	DeployContract struct {
		ReferenceName    string
		Address          common.Address
		ContractKindHash common.Hash
		Salt             common.Hash
		InitCode         []byte
	}

	SetStorage struct {
		ReferenceName    string
		Address          common.Address
		ContractKindHash common.Hash
		Slot             common.Hash
		Offset           uint8
		Value            []byte
	}

	// RawAction is the tuple the manager contract verifies and executes.
	// Field names follow the ABI component names.
	RawAction struct {
		ActionType       uint8
		ReferenceName    string
		Addr             common.Address
		ContractKindHash [32]byte
		Data             []byte
	}

	// Target links a proxy to the implementation it is upgraded to.
	Target struct {
		ProjectName      string
		ReferenceName    string
		Address          common.Address
		Implementation   common.Address
		ContractKindHash common.Hash
	}

	RawTarget struct {
		ProjectName      string
		ReferenceName    string
		Addr             common.Address
		Implementation   common.Address
		ContractKindHash [32]byte
	}
)

func (d *DeployContract) Type() ActionType { return ActionDeployContract }

func (d *DeployContract) Raw() (RawAction, error) {
	data, err := deployDataArgs.Pack([32]byte(d.Salt), d.InitCode)
	if err != nil {
		return RawAction{}, fmt.Errorf("failed to pack deploy data for %s: %w", d.ReferenceName, err)
	}
	return RawAction{
		ActionType:       uint8(ActionDeployContract),
		ReferenceName:    d.ReferenceName,
		Addr:             d.Address,
		ContractKindHash: d.ContractKindHash,
		Data:             data,
	}, nil
}

func (s *SetStorage) Type() ActionType { return ActionSetStorage }

func (s *SetStorage) Raw() (RawAction, error) {
	data, err := setStorageDataArgs.Pack([32]byte(s.Slot), s.Offset, s.Value)
	if err != nil {
		return RawAction{}, fmt.Errorf("failed to pack storage data for %s: %w", s.ReferenceName, err)
	}
	return RawAction{
		ActionType:       uint8(ActionSetStorage),
		ReferenceName:    s.ReferenceName,
		Addr:             s.Address,
		ContractKindHash: s.ContractKindHash,
		Data:             data,
	}, nil
}

// Encode returns abi.encode(action), the preimage of the action's Merkle leaf.
func (r RawAction) Encode() ([]byte, error) {
	return abi.Arguments{{Type: rawActionType}}.Pack(r)
}

func (t Target) Raw() RawTarget {
	return RawTarget{
		ProjectName:      t.ProjectName,
		ReferenceName:    t.ReferenceName,
		Addr:             t.Address,
		Implementation:   t.Implementation,
		ContractKindHash: t.ContractKindHash,
	}
}

func (r RawTarget) Encode() ([]byte, error) {
	return abi.Arguments{{Type: rawTargetType}}.Pack(r)
}

// EncodeAction returns the canonical encoding of a.
func EncodeAction(a Action) ([]byte, error) {
	raw, err := a.Raw()
	if err != nil {
		return nil, err
	}
	return raw.Encode()
}

// KindHash is the identifier the manager uses for a contract kind.
func KindHash(kind string) common.Hash {
	return crypto.Keccak256Hash([]byte(kind))
}
