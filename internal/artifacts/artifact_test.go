package artifacts

import (
	"math/big"
	"testing"

	"github.com/compose-network/bundle-deployer/internal/infra/filesystem"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestFileProvider_Load(t *testing.T) {
	provider := NewFileProvider("testdata", filesystem.NewOS())

	counter, err := provider.Load("Counter")
	require.NoError(t, err)
	require.Equal(t, common.FromHex("0x6080604052"), counter.Bytecode)
	require.NotNil(t, counter.Layout)
	require.Len(t, counter.Layout.Storage, 2)
	require.Equal(t, uint64(300_000), counter.CreationGas)
	require.Contains(t, counter.ABI.Methods, "count")

	library, err := provider.Load("Library")
	require.NoError(t, err)
	require.Nil(t, library.Layout)
	require.Equal(t, uint64(50_120), library.CreationGas)

	_, err = provider.Load("Missing")
	require.ErrorContains(t, err, "failed to load artifact Missing")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{`},
		{name: "bad abi", data: `{"abi": [{"type": "function", "inputs": [{"type": "nope"}]}], "bytecode": "0x00"}`},
		{name: "unlinked library", data: `{"abi": [], "bytecode": "0x6080__$abc$__"}`},
		{name: "odd length bytecode", data: `{"abi": [], "bytecode": "0x608"}`},
		{name: "non hex bytecode", data: `{"abi": [], "bytecode": {"object": "0x60zz"}}`},
		{name: "bad deposit cost", data: `{"abi": [], "bytecode": "0x00", "gasEstimates": {"creation": {"codeDepositCost": "lots", "totalCost": "infinite"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("X", []byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestArtifact_InitCode(t *testing.T) {
	counter, err := NewFileProvider("testdata", filesystem.NewOS()).Load("Counter")
	require.NoError(t, err)

	admin := "0x00000000000000000000000000000000000000aa"
	code, err := counter.InitCode([]any{1000, admin})
	require.NoError(t, err)

	require.Len(t, code, 5+64)
	require.Equal(t, counter.Bytecode, code[:5])
	require.Equal(t, common.LeftPadBytes(big.NewInt(1000).Bytes(), 32), code[5:37])
	require.Equal(t, common.LeftPadBytes(common.HexToAddress(admin).Bytes(), 32), code[37:])

	_, err = counter.InitCode([]any{1000})
	require.ErrorContains(t, err, "takes 2 arguments, got 1")

	_, err = counter.InitCode([]any{-1, admin})
	require.ErrorContains(t, err, "out of range")
}

func TestConvertArg(t *testing.T) {
	mustType := func(s string) abi.Type {
		typ, err := abi.NewType(s, "", nil)
		require.NoError(t, err)
		return typ
	}

	tests := []struct {
		name    string
		typ     string
		value   any
		want    any
		wantErr bool
	}{
		{name: "uint8", typ: "uint8", value: 255, want: uint8(255)},
		{name: "uint8 overflow", typ: "uint8", value: 256, wantErr: true},
		{name: "int8 min", typ: "int8", value: -128, want: int8(-128)},
		{name: "int8 overflow", typ: "int8", value: 128, wantErr: true},
		{name: "uint256 string", typ: "uint256", value: "0x10", want: big.NewInt(16)},
		{name: "bool", typ: "bool", value: true, want: true},
		{name: "string", typ: "string", value: "hello", want: "hello"},
		{name: "bytes", typ: "bytes", value: "0xabcd", want: []byte{0xab, 0xcd}},
		{name: "bytes2", typ: "bytes2", value: "0xabcd", want: [2]byte{0xab, 0xcd}},
		{name: "bytes2 wrong size", typ: "bytes2", value: "0xab", wantErr: true},
		{name: "address list", typ: "address[]", value: []any{"0x00000000000000000000000000000000000000aa"}, want: []common.Address{common.HexToAddress("0xaa")}},
		{name: "fixed array", typ: "uint16[2]", value: []any{1, 2}, want: [2]uint16{1, 2}},
		{name: "fixed array length", typ: "uint16[2]", value: []any{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertArg(mustType(tt.typ), tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
