package route

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/model"
)

// Spec is the nested JSON form of a route tree.
type Spec struct {
	Pool         string        `json:"pool"`
	Outcoming    model.TokenID `json:"outcoming"`
	Numerator    *uint64       `json:"numerator,omitempty"`
	MinAmountOut string        `json:"min_amount_out,omitempty"`
	Failed       bool          `json:"failed,omitempty"`
	Children     []Spec        `json:"children,omitempty"`
}

// Request is a route quote: the amount entering the root pool and the tree
// it flows through.
type Request struct {
	RootPool    string        `json:"root_pool"`
	TokenIn     model.TokenID `json:"token_in"`
	AmountIn    string        `json:"amount_in"`
	HasReferrer bool          `json:"has_referrer,omitempty"`
	Route       Spec          `json:"route"`
}

// Build compiles the route description into an arena tree. The root
// numerator is ignored; children without a numerator default to 1.
func (s Spec) Build() (*Tree, error) {
	tree := NewTree(s.Pool, s.Outcoming)
	minOut, err := parseMin(s.MinAmountOut)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	tree.nodes[0].MinAmountOut = minOut
	tree.nodes[0].Failed = s.Failed
	if err := addSpecs(tree, tree.Root(), s.Children); err != nil {
		return nil, err
	}
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	return tree, nil
}

func addSpecs(tree *Tree, parent NodeID, specs []Spec) error {
	for i, child := range specs {
		minOut, err := parseMin(child.MinAmountOut)
		if err != nil {
			return fmt.Errorf("node %d child %d: %w", parent, i, err)
		}
		numerator := uint64(1)
		if child.Numerator != nil {
			numerator = *child.Numerator
		}
		id, err := tree.AddChild(parent, Node{
			Pool:         child.Pool,
			Outcoming:    child.Outcoming,
			Numerator:    numerator,
			MinAmountOut: minOut,
			Failed:       child.Failed,
		})
		if err != nil {
			return err
		}
		if err := addSpecs(tree, id, child.Children); err != nil {
			return err
		}
	}
	return nil
}

// Pools lists the pools the route visits, first visit order, without
// duplicates.
func (s Spec) Pools() []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(Spec)
	walk = func(n Spec) {
		if _, ok := seen[n.Pool]; !ok && n.Pool != "" {
			seen[n.Pool] = struct{}{}
			out = append(out, n.Pool)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(s)
	return out
}

func parseMin(value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	return amount.Parse(value)
}

// Amount parses AmountIn.
func (r Request) Amount() (*big.Int, error) {
	v, err := amount.Parse(r.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("amount_in: %w", err)
	}
	return v, nil
}

// Validate checks the request is self-consistent before simulation.
func (r Request) Validate() error {
	if r.RootPool == "" {
		r.RootPool = r.Route.Pool
	}
	if r.Route.Pool != r.RootPool {
		return fmt.Errorf("route starts in %s, request names %s: %w", r.Route.Pool, r.RootPool, dexerr.ErrInvalidRoute)
	}
	if r.TokenIn == "" {
		return fmt.Errorf("token_in is empty: %w", dexerr.ErrInvalidRoute)
	}
	_, err := r.Amount()
	return err
}

// LoadRequest reads a Request from a JSON file.
func LoadRequest(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Request{}, fmt.Errorf("read route file: %w", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode route file: %w", err)
	}
	if req.RootPool == "" {
		req.RootPool = req.Route.Pool
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}
