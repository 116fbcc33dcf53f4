package report

import (
	"gopkg.in/yaml.v3"
)

type (
	Report struct {
		Deployment Deployment `yaml:"deployment"`
		Execution  Execution  `yaml:"execution"`
		Contracts  []Contract `yaml:"contracts"`
	}

	Deployment struct {
		ID                    string             `yaml:"id"`
		Project               string             `yaml:"project"`
		Manager               string             `yaml:"manager"`
		ActionRoot            string             `yaml:"action-root"`
		TargetRoot            string             `yaml:"target-root"`
		NumActions            int                `yaml:"num-actions"`
		NumTargets            int                `yaml:"num-targets"`
		NumImmutableContracts uint64             `yaml:"num-immutable-contracts"`
		ArtifactURI           SingleQuotedString `yaml:"artifact-uri"`
	}

	Execution struct {
		Status       string  `yaml:"status"`
		Skipped      int     `yaml:"skipped"`
		Batches      []Batch `yaml:"batches,omitempty"`
		InitiateTx   string  `yaml:"initiate-tx,omitempty"`
		FinalizeTx   string  `yaml:"finalize-tx,omitempty"`
		CompletionTx string  `yaml:"completion-tx,omitempty"`
	}

	Batch struct {
		Kind   string `yaml:"kind"`
		Size   int    `yaml:"size"`
		Gas    uint64 `yaml:"gas"`
		TxHash string `yaml:"tx-hash"`
	}

	Contract struct {
		ReferenceName  string `yaml:"reference-name"`
		Address        string `yaml:"address"`
		Implementation string `yaml:"implementation,omitempty"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}
