// Package bundle commits ordered actions and targets into Merkle trees whose
// proofs the manager contract verifies one item at a time.
package bundle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ZeroLeaf pads a leaf list up to a power of two.
	ZeroLeaf = crypto.Keccak256Hash(make([]byte, 32))
	// EmptyRoot is the root of a bundle with no items.
	EmptyRoot = common.Hash{}
)

type (
	Proof struct {
		Index    uint64
		Siblings []common.Hash
	}

	// Tree is a complete binary tree. Levels[0] holds the padded leaves and the
	// last level holds the root.
	Tree struct {
		Levels [][]common.Hash
		count  int
	}
)

// BuildTree hashes pairs left to right without sorting them.
func BuildTree(leaves []common.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}

	width := 1
	for width < len(leaves) {
		width <<= 1
	}
	level := make([]common.Hash, width)
	copy(level, leaves)
	for i := len(leaves); i < width; i++ {
		level[i] = ZeroLeaf
	}

	tree := &Tree{Levels: [][]common.Hash{level}, count: len(leaves)}
	for len(level) > 1 {
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		tree.Levels = append(tree.Levels, next)
		level = next
	}
	return tree
}

func (t *Tree) Root() common.Hash {
	if len(t.Levels) == 0 {
		return EmptyRoot
	}
	return t.Levels[len(t.Levels)-1][0]
}

// Proof returns the sibling path of the leaf at index. It panics when index is
// out of range.
func (t *Tree) Proof(index int) Proof {
	if index < 0 || index >= t.count {
		panic("bundle: proof index out of range")
	}
	siblings := make([]common.Hash, 0, len(t.Levels)-1)
	pos := index
	for _, level := range t.Levels[:len(t.Levels)-1] {
		siblings = append(siblings, level[pos^1])
		pos >>= 1
	}
	return Proof{Index: uint64(index), Siblings: siblings}
}

// Padding is the number of sentinel leaves appended.
func (t *Tree) Padding() int {
	if len(t.Levels) == 0 {
		return 0
	}
	return len(t.Levels[0]) - t.count
}

// VerifyProof recomputes the root from leaf. The low bit of the index at each
// level says whether the running hash is a right child.
func VerifyProof(leaf common.Hash, proof Proof, root common.Hash) bool {
	hash := leaf
	index := proof.Index
	for _, sibling := range proof.Siblings {
		if index&1 == 0 {
			hash = hashPair(hash, sibling)
		} else {
			hash = hashPair(sibling, hash)
		}
		index >>= 1
	}
	return index == 0 && hash == root
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left.Bytes(), right.Bytes())
}
