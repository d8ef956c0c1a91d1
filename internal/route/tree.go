// Package route simulates settlement of a weighted tree of pool hops.
package route

import (
	"fmt"
	"math/big"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/model"
)

// NodeID indexes a node in its Tree.
type NodeID int

const noParent NodeID = -1

// Node is one hop. It spends whatever token it receives in Pool and
// produces Outcoming. Numerator weighs the node against its siblings.
type Node struct {
	Pool      string
	Outcoming model.TokenID
	Numerator uint64
	// MinAmountOut, when set, fails the hop instead of settling below it.
	MinAmountOut *big.Int
	// Failed marks a hop the ledger reverted.
	Failed bool

	parent   NodeID
	children []NodeID
}

func (n Node) Parent() NodeID { return n.parent }

// Tree is an arena of route nodes. Pools are referenced by id, so one pool
// may appear at several positions.
type Tree struct {
	nodes []Node
}

// NewTree starts a tree whose root hop trades in pool for outcoming.
func NewTree(pool string, outcoming model.TokenID) *Tree {
	return &Tree{nodes: []Node{{
		Pool:      pool,
		Outcoming: outcoming,
		Numerator: 1,
		parent:    noParent,
	}}}
}

func (t *Tree) Root() NodeID { return 0 }

func (t *Tree) Len() int { return len(t.nodes) }

// AddChild appends n under parent and returns its id.
func (t *Tree) AddChild(parent NodeID, n Node) (NodeID, error) {
	if !t.valid(parent) {
		return 0, fmt.Errorf("parent %d: %w", parent, dexerr.ErrInvalidRoute)
	}
	if n.Numerator == 0 {
		return 0, fmt.Errorf("node under %d has zero numerator: %w", parent, dexerr.ErrInvalidRoute)
	}
	id := NodeID(len(t.nodes))
	n.parent = parent
	n.children = nil
	if n.MinAmountOut != nil {
		n.MinAmountOut = amount.Clone(n.MinAmountOut)
	}
	t.nodes = append(t.nodes, n)
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id, nil
}

// MustAddChild is AddChild for trees built from literals.
func (t *Tree) MustAddChild(parent NodeID, n Node) NodeID {
	id, err := t.AddChild(parent, n)
	if err != nil {
		panic(err)
	}
	return id
}

func (t *Tree) Node(id NodeID) Node {
	return t.nodes[id]
}

// Children returns the child ids of id in insertion order.
func (t *Tree) Children(id NodeID) []NodeID {
	return append([]NodeID(nil), t.nodes[id].children...)
}

// SetFailed toggles the revert marker of a node.
func (t *Tree) SetFailed(id NodeID, failed bool) {
	t.nodes[id].Failed = failed
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Validate checks the tree is usable for a simulation.
func (t *Tree) Validate() error {
	if t == nil || len(t.nodes) == 0 {
		return fmt.Errorf("empty tree: %w", dexerr.ErrInvalidRoute)
	}
	for id, n := range t.nodes {
		if n.Pool == "" {
			return fmt.Errorf("node %d has no pool: %w", id, dexerr.ErrInvalidRoute)
		}
		if n.Outcoming == "" {
			return fmt.Errorf("node %d has no outcoming token: %w", id, dexerr.ErrInvalidRoute)
		}
		if n.MinAmountOut != nil && n.MinAmountOut.Sign() < 0 {
			return fmt.Errorf("node %d min amount: %w", id, dexerr.ErrInvalidAmount)
		}
	}
	return nil
}

// SplitAmount divides total by the numerators. Every share rounds down and
// the last share also takes what the rounding left over.
func SplitAmount(total *big.Int, numerators []uint64) []*big.Int {
	shares := make([]*big.Int, len(numerators))
	if len(numerators) == 0 {
		return shares
	}
	sum := amount.Zero()
	for _, n := range numerators {
		sum.Add(sum, amount.New(n))
	}
	allocated := amount.Zero()
	for i, n := range numerators {
		if sum.Sign() == 0 {
			shares[i] = amount.Zero()
			continue
		}
		shares[i] = amount.MulDiv(total, amount.New(n), sum, amount.Floor)
		allocated.Add(allocated, shares[i])
	}
	last := len(shares) - 1
	shares[last] = new(big.Int).Add(shares[last], new(big.Int).Sub(total, allocated))
	return shares
}
