package actions

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	rawActionType = mustNewType("tuple", "struct RawAction", []abi.ArgumentMarshaling{
		{Name: "actionType", Type: "uint8"},
		{Name: "referenceName", Type: "string"},
		{Name: "addr", Type: "address"},
		{Name: "contractKindHash", Type: "bytes32"},
		{Name: "data", Type: "bytes"},
	})

	rawTargetType = mustNewType("tuple", "struct RawTarget", []abi.ArgumentMarshaling{
		{Name: "projectName", Type: "string"},
		{Name: "referenceName", Type: "string"},
		{Name: "addr", Type: "address"},
		{Name: "implementation", Type: "address"},
		{Name: "contractKindHash", Type: "bytes32"},
	})

	deployDataArgs = abi.Arguments{
		{Name: "salt", Type: mustNewType("bytes32", "", nil)},
		{Name: "code", Type: mustNewType("bytes", "", nil)},
	}

	setStorageDataArgs = abi.Arguments{
		{Name: "key", Type: mustNewType("bytes32", "", nil)},
		{Name: "offset", Type: mustNewType("uint8", "", nil)},
		{Name: "value", Type: mustNewType("bytes", "", nil)},
	}
)

func mustNewType(t, internalType string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, internalType, components)
	if err != nil {
		panic(err)
	}
	return typ
}
