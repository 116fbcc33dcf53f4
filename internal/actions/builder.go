package actions

import (
	"fmt"
	"log/slog"

	"github.com/compose-network/bundle-deployer/internal/diagnostics"
	"github.com/compose-network/bundle-deployer/internal/layout"
	"github.com/compose-network/bundle-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Kind string

const (
	// KindProxy contracts are upgraded in place: a new implementation is
	// deployed, the proxy's storage is written and the proxy is re-pointed.
	KindProxy Kind = "proxy"
	// KindImmutable contracts are deployed once and never receive storage writes.
	KindImmutable Kind = "immutable"

	implementationKind = "implementation"
)

type (
	// Contract is one declared contract of a project, resolved against its
	// build artifact.
	Contract struct {
		ReferenceName string
		Kind          Kind
		// Address of an existing proxy. Zero means a fresh proxy is deployed.
		Address   common.Address
		Salt      string
		InitCode  []byte
		DeployGas uint64
		Layout    *layout.Layout
		Variables map[string]any
	}

	Plan struct {
		Actions               []Action
		Targets               []Target
		NumImmutableContracts uint64
		// DeployGas is the creation gas estimate per deployed address.
		DeployGas map[common.Address]uint64
	}

	Builder struct {
		manager       common.Address
		projectName   string
		proxyInitCode []byte
		proxyGas      uint64
		logger        *slog.Logger
	}

	resolved struct {
		contract       Contract
		salt           common.Hash
		implementation common.Address
		proxy          common.Address
		segments       []layout.Segment
	}
)

// NewBuilder returns a builder for contracts deployed through manager.
// proxyInitCode is the creation code used for proxies that do not exist yet;
// it may be nil when every proxy is already deployed.
func NewBuilder(manager common.Address, projectName string, proxyInitCode []byte, proxyGas uint64) *Builder {
	return &Builder{
		manager:       manager,
		projectName:   projectName,
		proxyInitCode: proxyInitCode,
		proxyGas:      proxyGas,
		logger:        logger.Named("action_builder"),
	}
}

// Build encodes every contract's variables and turns the result into actions
// and targets. Problems are recorded in diags; when any are found no actions
// are constructed and nil is returned.
func (b *Builder) Build(contracts []Contract, diags *diagnostics.Diagnostics) *Plan {
	resolvedContracts := make([]resolved, 0, len(contracts))
	seen := make(map[string]struct{}, len(contracts))

	for _, c := range contracts {
		if _, dup := seen[c.ReferenceName]; dup {
			diags.Invalidf(c.ReferenceName, "duplicate contract reference name")
			continue
		}
		seen[c.ReferenceName] = struct{}{}

		r, ok := b.resolve(c, diags)
		if ok {
			resolvedContracts = append(resolvedContracts, r)
		}
	}

	if diags.HasErrors() {
		return nil
	}

	plan := &Plan{DeployGas: make(map[common.Address]uint64)}
	for _, r := range resolvedContracts {
		b.appendDeployments(plan, r)
	}
	for _, r := range resolvedContracts {
		appendStorage(plan, r)
	}

	b.logger.
		With("actions", len(plan.Actions)).
		With("targets", len(plan.Targets)).
		With("immutable_contracts", plan.NumImmutableContracts).
		Debug("Built deployment plan")

	return plan
}

func (b *Builder) resolve(c Contract, diags *diagnostics.Diagnostics) (resolved, bool) {
	scope := c.ReferenceName
	if len(c.InitCode) == 0 {
		diags.Invalidf(scope, "contract has no creation bytecode")
		return resolved{}, false
	}

	r := resolved{
		contract: c,
		salt:     crypto.Keccak256Hash([]byte(c.ReferenceName), []byte(c.Salt)),
	}
	r.implementation = crypto.CreateAddress2(b.manager, r.salt, crypto.Keccak256(c.InitCode))

	switch c.Kind {
	case KindImmutable:
		if len(c.Variables) > 0 {
			diags.Invalidf(scope, "immutable contracts cannot have storage variables; pass them as constructor arguments")
			return resolved{}, false
		}
		if c.Address != (common.Address{}) && c.Address != r.implementation {
			diags.Invalidf(scope, "address %s does not match the CREATE2 address %s", c.Address.Hex(), r.implementation.Hex())
			return resolved{}, false
		}
		return r, true

	case KindProxy:
		r.proxy = c.Address
		if r.proxy == (common.Address{}) {
			if len(b.proxyInitCode) == 0 {
				diags.Invalidf(scope, "proxy has no address and no proxy creation code is configured")
				return resolved{}, false
			}
			r.proxy = crypto.CreateAddress2(b.manager, r.salt, crypto.Keccak256(b.proxyInitCode))
		}

		if len(c.Variables) > 0 && c.Layout == nil {
			diags.Invalidf(scope, "contract has variables but no storage layout")
			return resolved{}, false
		}
		if c.Layout != nil {
			local := diagnostics.New()
			r.segments = layout.Encode(c.Layout, c.Variables, local)
			for _, s := range r.segments {
				local.Add(s.Slot.Hex(), s.Validate())
			}
			diags.Merge(scope, local)
			if local.HasErrors() {
				return resolved{}, false
			}
		}
		return r, true

	default:
		diags.Invalidf(scope, "unknown contract kind '%s'", c.Kind)
		return resolved{}, false
	}
}

func (b *Builder) appendDeployments(plan *Plan, r resolved) {
	c := r.contract

	if c.Kind == KindImmutable {
		plan.Actions = append(plan.Actions, &DeployContract{
			ReferenceName:    c.ReferenceName,
			Address:          r.implementation,
			ContractKindHash: KindHash(string(KindImmutable)),
			Salt:             r.salt,
			InitCode:         c.InitCode,
		})
		plan.DeployGas[r.implementation] = c.DeployGas
		plan.NumImmutableContracts++
		return
	}

	if c.Address == (common.Address{}) {
		plan.Actions = append(plan.Actions, &DeployContract{
			ReferenceName:    c.ReferenceName,
			Address:          r.proxy,
			ContractKindHash: KindHash(string(KindProxy)),
			Salt:             r.salt,
			InitCode:         b.proxyInitCode,
		})
		plan.DeployGas[r.proxy] = b.proxyGas
	}

	plan.Actions = append(plan.Actions, &DeployContract{
		ReferenceName:    c.ReferenceName,
		Address:          r.implementation,
		ContractKindHash: KindHash(implementationKind),
		Salt:             r.salt,
		InitCode:         c.InitCode,
	})
	plan.DeployGas[r.implementation] = c.DeployGas

	plan.Targets = append(plan.Targets, Target{
		ProjectName:      b.projectName,
		ReferenceName:    c.ReferenceName,
		Address:          r.proxy,
		Implementation:   r.implementation,
		ContractKindHash: KindHash(string(KindProxy)),
	})
}

func appendStorage(plan *Plan, r resolved) {
	for _, s := range r.segments {
		plan.Actions = append(plan.Actions, &SetStorage{
			ReferenceName:    r.contract.ReferenceName,
			Address:          r.proxy,
			ContractKindHash: KindHash(string(KindProxy)),
			Slot:             s.Slot,
			Offset:           uint8(s.Offset),
			Value:            s.Value,
		})
	}
}

// Count returns how many actions of type t the plan holds.
func (p *Plan) Count(t ActionType) int {
	n := 0
	for _, a := range p.Actions {
		if a.Type() == t {
			n++
		}
	}
	return n
}

func (p *Plan) String() string {
	return fmt.Sprintf("%d deploy, %d set-storage, %d targets",
		p.Count(ActionDeployContract), p.Count(ActionSetStorage), len(p.Targets))
}
