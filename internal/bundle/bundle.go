package bundle

import (
	"fmt"
	"math/big"

	"github.com/compose-network/bundle-deployer/internal/actions"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	BundledAction struct {
		Action actions.Action
		Raw    actions.RawAction
		Leaf   common.Hash
		Proof  Proof
	}

	ActionBundle struct {
		Root    common.Hash
		Actions []BundledAction
	}

	BundledTarget struct {
		Target actions.Target
		Raw    actions.RawTarget
		Leaf   common.Hash
		Proof  Proof
	}

	TargetBundle struct {
		Root    common.Hash
		Targets []BundledTarget
	}
)

func MakeActionBundle(items []actions.Action) (*ActionBundle, error) {
	bundled := make([]BundledAction, len(items))
	leaves := make([]common.Hash, len(items))
	for i, a := range items {
		raw, err := a.Raw()
		if err != nil {
			return nil, err
		}
		encoded, err := raw.Encode()
		if err != nil {
			return nil, fmt.Errorf("failed to encode action %d (%s): %w", i, raw.ReferenceName, err)
		}
		leaves[i] = crypto.Keccak256Hash(encoded)
		bundled[i] = BundledAction{Action: a, Raw: raw, Leaf: leaves[i]}
	}

	tree := BuildTree(leaves)
	for i := range bundled {
		bundled[i].Proof = tree.Proof(i)
	}
	return &ActionBundle{Root: tree.Root(), Actions: bundled}, nil
}

func MakeTargetBundle(items []actions.Target) (*TargetBundle, error) {
	bundled := make([]BundledTarget, len(items))
	leaves := make([]common.Hash, len(items))
	for i, target := range items {
		raw := target.Raw()
		encoded, err := raw.Encode()
		if err != nil {
			return nil, fmt.Errorf("failed to encode target %d (%s): %w", i, raw.ReferenceName, err)
		}
		leaves[i] = crypto.Keccak256Hash(encoded)
		bundled[i] = BundledTarget{Target: target, Raw: raw, Leaf: leaves[i]}
	}

	tree := BuildTree(leaves)
	for i := range bundled {
		bundled[i].Proof = tree.Proof(i)
	}
	return &TargetBundle{Root: tree.Root(), Targets: bundled}, nil
}

var deploymentIDArgs = abi.Arguments{
	{Name: "actionRoot", Type: mustType("bytes32")},
	{Name: "targetRoot", Type: mustType("bytes32")},
	{Name: "numActions", Type: mustType("uint256")},
	{Name: "numTargets", Type: mustType("uint256")},
	{Name: "numImmutableContracts", Type: mustType("uint256")},
	{Name: "configUri", Type: mustType("string")},
}

// DeploymentID is keccak256(abi.encode(actionRoot, targetRoot, numActions,
// numTargets, numImmutableContracts, artifactURI)).
func DeploymentID(actionRoot, targetRoot common.Hash, numActions, numTargets, numImmutable uint64, artifactURI string) (common.Hash, error) {
	encoded, err := deploymentIDArgs.Pack(
		[32]byte(actionRoot),
		[32]byte(targetRoot),
		new(big.Int).SetUint64(numActions),
		new(big.Int).SetUint64(numTargets),
		new(big.Int).SetUint64(numImmutable),
		artifactURI,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode deployment id: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Deployment is a built plan committed to its two bundles.
type Deployment struct {
	ID                    common.Hash
	Actions               *ActionBundle
	Targets               *TargetBundle
	NumImmutableContracts uint64
	ArtifactURI           string
}

func Make(plan *actions.Plan, artifactURI string) (*Deployment, error) {
	actionBundle, err := MakeActionBundle(plan.Actions)
	if err != nil {
		return nil, err
	}
	targetBundle, err := MakeTargetBundle(plan.Targets)
	if err != nil {
		return nil, err
	}
	id, err := DeploymentID(
		actionBundle.Root,
		targetBundle.Root,
		uint64(len(actionBundle.Actions)),
		uint64(len(targetBundle.Targets)),
		plan.NumImmutableContracts,
		artifactURI,
	)
	if err != nil {
		return nil, err
	}
	return &Deployment{
		ID:                    id,
		Actions:               actionBundle,
		Targets:               targetBundle,
		NumImmutableContracts: plan.NumImmutableContracts,
		ArtifactURI:           artifactURI,
	}, nil
}
