// Package report writes a YAML summary of a deployment run.
package report

import (
	"fmt"
	"path/filepath"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/compose-network/bundle-deployer/internal/bundle"
	"github.com/compose-network/bundle-deployer/internal/executor"
	"github.com/compose-network/bundle-deployer/internal/infra/filesystem"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// Input is everything a run knows when it finishes. Result and
	// CompletionTx are zero when the run stopped before reaching them.
	Input struct {
		Name         string
		Project      string
		Manager      common.Address
		Deployment   *bundle.Deployment
		Result       *executor.Result
		CompletionTx common.Hash
	}

	Generator struct {
		dir    string
		writer filesystem.Writer
	}
)

func NewGenerator(dir string, writer filesystem.Writer) *Generator {
	return &Generator{dir: dir, writer: writer}
}

// Generate writes <dir>/<name>.yaml and returns its path.
func (g *Generator) Generate(in Input) (string, error) {
	path := filepath.Join(g.dir, in.Name+".yaml")
	if err := g.writer.WriteYAML(path, Build(in)); err != nil {
		return "", fmt.Errorf("could not write report for %s: %w", in.Name, err)
	}
	return path, nil
}

func Build(in Input) *Report {
	d := in.Deployment
	r := &Report{
		Deployment: Deployment{
			ID:                    d.ID.Hex(),
			Project:               in.Project,
			Manager:               in.Manager.Hex(),
			ActionRoot:            d.Actions.Root.Hex(),
			TargetRoot:            d.Targets.Root.Hex(),
			NumActions:            len(d.Actions.Actions),
			NumTargets:            len(d.Targets.Targets),
			NumImmutableContracts: d.NumImmutableContracts,
			ArtifactURI:           SingleQuotedString(d.ArtifactURI),
		},
		Contracts: contracts(d),
	}

	if res := in.Result; res != nil {
		r.Execution.Status = res.Status.String()
		r.Execution.Skipped = res.Skipped
		r.Execution.InitiateTx = hashOrEmpty(res.InitiateTx)
		r.Execution.FinalizeTx = hashOrEmpty(res.FinalizeTx)
		for _, b := range res.Batches {
			r.Execution.Batches = append(r.Execution.Batches, Batch{
				Kind:   b.Kind.String(),
				Size:   b.Size,
				Gas:    b.Gas,
				TxHash: b.TxHash.Hex(),
			})
		}
	}
	r.Execution.CompletionTx = hashOrEmpty(in.CompletionTx)

	return r
}

// contracts lists proxies with their new implementation, then every other
// deployed contract.
func contracts(d *bundle.Deployment) []Contract {
	var out []Contract
	implementations := make(map[common.Address]struct{})
	for _, t := range d.Targets.Targets {
		out = append(out, Contract{
			ReferenceName:  t.Target.ReferenceName,
			Address:        t.Target.Address.Hex(),
			Implementation: t.Target.Implementation.Hex(),
		})
		implementations[t.Target.Implementation] = struct{}{}
		implementations[t.Target.Address] = struct{}{}
	}

	for _, a := range d.Actions.Actions {
		deploy, ok := a.Action.(*actions.DeployContract)
		if !ok {
			continue
		}
		if _, seen := implementations[deploy.Address]; seen {
			continue
		}
		out = append(out, Contract{ReferenceName: deploy.ReferenceName, Address: deploy.Address.Hex()})
	}
	return out
}

func hashOrEmpty(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
