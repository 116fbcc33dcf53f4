// Package artifacts loads compiler output for the contracts of a project.
package artifacts

import (
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/compose-network/bundle-deployer/internal/infra/filesystem"
	"github.com/compose-network/bundle-deployer/internal/layout"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type (
	// Artifact is what deploying and initializing one contract needs.
	Artifact struct {
		Name     string
		ABI      abi.ABI
		Bytecode []byte
		// Layout is nil when the compiler emitted no storage layout.
		Layout      *layout.Layout
		CreationGas uint64
	}

	// FileProvider reads <dir>/<name>.json files.
	FileProvider struct {
		dir    string
		reader filesystem.Reader
	}

	rawArtifact struct {
		ABI           json.RawMessage `json:"abi"`
		Bytecode      json.RawMessage `json:"bytecode"`
		StorageLayout json.RawMessage `json:"storageLayout"`
		GasEstimates  struct {
			Creation struct {
				CodeDepositCost string `json:"codeDepositCost"`
				ExecutionCost   string `json:"executionCost"`
				TotalCost       string `json:"totalCost"`
			} `json:"creation"`
		} `json:"gasEstimates"`
	}
)

func NewFileProvider(dir string, reader filesystem.Reader) *FileProvider {
	return &FileProvider{dir: dir, reader: reader}
}

func (p *FileProvider) Load(name string) (*Artifact, error) {
	path := filepath.Join(p.dir, name+".json")
	data, err := p.reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", name, err)
	}
	return Parse(name, data)
}

// Parse accepts both a flat bytecode string and the {"object": ...} form.
func Parse(name string, data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", name, err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
	}

	bytecode, err := parseBytecode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bytecode for %s: %w", name, err)
	}

	artifact := &Artifact{Name: name, ABI: parsedABI, Bytecode: bytecode}

	if len(raw.StorageLayout) > 0 && string(raw.StorageLayout) != "null" {
		artifact.Layout, err = layout.ParseLayout(raw.StorageLayout)
		if err != nil {
			return nil, fmt.Errorf("failed to parse storage layout for %s: %w", name, err)
		}
	}

	creation := raw.GasEstimates.Creation
	if creation.CodeDepositCost != "" {
		artifact.CreationGas, err = CreationGas(creation.TotalCost, creation.CodeDepositCost)
		if err != nil {
			return nil, fmt.Errorf("invalid gas estimates for %s: %w", name, err)
		}
	}

	return artifact, nil
}

func parseBytecode(raw json.RawMessage) ([]byte, error) {
	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		var object struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &object); err != nil {
			return nil, err
		}
		code = object.Object
	}

	code = strings.TrimPrefix(code, "0x")
	if strings.Contains(code, "__") {
		return nil, fmt.Errorf("bytecode has unlinked library placeholders")
	}
	bytecode, err := hexutil.Decode("0x" + code)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode hex: %w", err)
	}
	return bytecode, nil
}

// CreationGas is the compiler's total creation cost. When the compiler could
// not bound the constructor it reports "infinite", and 1.5 times the code
// deposit cost is used instead.
func CreationGas(totalCost, codeDepositCost string) (uint64, error) {
	if total, ok := new(big.Int).SetString(totalCost, 10); ok && total.IsUint64() {
		return total.Uint64(), nil
	}

	deposit, ok := new(big.Int).SetString(codeDepositCost, 10)
	if !ok || !deposit.IsUint64() {
		return 0, fmt.Errorf("code deposit cost '%s' is not a number", codeDepositCost)
	}
	return deposit.Uint64() * 3 / 2, nil
}

// InitCode appends the ABI encoded constructor arguments to the bytecode.
// args are converted to the constructor's input types first.
func (a *Artifact) InitCode(args []any) ([]byte, error) {
	inputs := a.ABI.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%s constructor takes %d arguments, got %d", a.Name, len(inputs), len(args))
	}

	converted := make([]any, len(args))
	for i, input := range inputs {
		value, err := ConvertArg(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s constructor argument '%s': %w", a.Name, input.Name, err)
		}
		converted[i] = value
	}

	encoded, err := a.ABI.Pack("", converted...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s constructor arguments: %w", a.Name, err)
	}

	code := make([]byte, 0, len(a.Bytecode)+len(encoded))
	code = append(code, a.Bytecode...)
	return append(code, encoded...), nil
}
