// Package project loads the declared contracts of a deployment from a YAML or
// TOML project file.
package project

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/compose-network/bundle-deployer/internal/diagnostics"
	"github.com/compose-network/bundle-deployer/internal/infra/filesystem"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type (
	Project struct {
		Name      string                    `yaml:"project-name" toml:"project-name"`
		Contracts map[string]ContractConfig `yaml:"contracts" toml:"contracts"`
	}

	ContractConfig struct {
		// Artifact names the build artifact; it defaults to the reference name.
		Artifact        string         `yaml:"artifact" toml:"artifact"`
		Kind            string         `yaml:"kind" toml:"kind"`
		Address         string         `yaml:"address" toml:"address"`
		Salt            string         `yaml:"salt" toml:"salt"`
		ConstructorArgs []any          `yaml:"constructor-args" toml:"constructor-args"`
		Variables       map[string]any `yaml:"variables" toml:"variables"`
	}

	// Contract is a ContractConfig with its reference name and normalized values.
	Contract struct {
		ReferenceName string
		ContractConfig
	}
)

// Load picks the decoder from the file extension.
func Load(path string, reader filesystem.Reader) (*Project, error) {
	data, err := reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var p Project
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &p); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported project file extension '%s'", ext)
	}

	return &p, nil
}

// Validate records every problem with the project in diags.
func (p *Project) Validate(diags *diagnostics.Diagnostics) {
	if p.Name == "" {
		diags.Invalidf("project-name", "is required")
	}
	if len(p.Contracts) == 0 {
		diags.Invalidf("contracts", "at least one contract is required")
	}

	for _, name := range p.referenceNames() {
		c := p.Contracts[name]
		scope := "contracts." + name
		switch c.Kind {
		case "proxy", "immutable":
		case "":
			diags.Invalidf(scope, "kind is required")
		default:
			diags.Invalidf(scope, "unknown kind '%s', expected proxy or immutable", c.Kind)
		}
		if c.Address != "" && !common.IsHexAddress(c.Address) {
			diags.Invalidf(scope, "invalid address '%s'", c.Address)
		}
	}
}

// ContractList returns the contracts ordered by reference name, so building
// the same project twice yields the same actions.
func (p *Project) ContractList() []Contract {
	names := p.referenceNames()
	out := make([]Contract, 0, len(names))
	for _, name := range names {
		c := p.Contracts[name]
		if c.Artifact == "" {
			c.Artifact = name
		}
		if c.Variables != nil {
			c.Variables = normalize(c.Variables).(map[string]any)
		}
		if c.ConstructorArgs != nil {
			c.ConstructorArgs = normalize(c.ConstructorArgs).([]any)
		}
		out = append(out, Contract{ReferenceName: name, ContractConfig: c})
	}
	return out
}

func (p *Project) referenceNames() []string {
	names := make([]string, 0, len(p.Contracts))
	for name := range p.Contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalize converts decoder specific containers into map[string]any and
// []any, and integer types into int64.
func normalize(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = normalize(item)
		}
		return out
	case int:
		return int64(value)
	default:
		return v
	}
}
