package report

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"dexsim/internal/dexerr"
	"dexsim/internal/model"
	"dexsim/internal/pool"
	"dexsim/internal/route"
)

func TestAmount(t *testing.T) {
	cases := []struct {
		raw      int64
		decimals uint8
		want     string
	}{
		{1_500_000, 6, "1.5"},
		{1, 6, "0.000001"},
		{42, 0, "42"},
		{0, 18, "0"},
	}
	for _, c := range cases {
		if got := Amount(big.NewInt(c.raw), c.decimals); got != c.want {
			t.Fatalf("Amount(%d, %d) = %s, want %s", c.raw, c.decimals, got, c.want)
		}
	}
	if got := Amount(nil, 6); got != "0" {
		t.Fatalf("nil amount rendered as %s", got)
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1.25", 6)
	if err != nil || v.Int64() != 1_250_000 {
		t.Fatalf("ParseAmount = %v, %v", v, err)
	}
	if _, err := ParseAmount("0.0000001", 6); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("expected precision error, got %v", err)
	}
	if _, err := ParseAmount("-1", 6); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("expected negative error, got %v", err)
	}
	if _, err := ParseAmount("abc", 6); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestFeeRate(t *testing.T) {
	if got := FeeRate(3000, 1_000_000); got != "0.3%" {
		t.Fatalf("FeeRate = %s", got)
	}
	if got := FeeRate(1, 0); got != "0%" {
		t.Fatalf("FeeRate with zero denominator = %s", got)
	}
}

func testState() model.State {
	return model.State{
		ID:              "ab",
		Kind:            model.KindConstantProduct,
		Tokens:          []model.Token{{ID: "a", Decimals: 0, Symbol: "AAA"}, {ID: "b", Decimals: 0, Symbol: "BBB"}},
		LPToken:         "ab-lp",
		Reserves:        []*big.Int{big.NewInt(1000), big.NewInt(1000)},
		LPSupply:        big.NewInt(1000),
		Fee:             model.FeeParams{Denominator: 1_000_000, PoolNumerator: 3000},
		AccumulatedFees: []*big.Int{big.NewInt(0), big.NewInt(0)},
	}
}

func TestRenderQuoteAndPool(t *testing.T) {
	st := testState()
	res, _, err := pool.SimulateExchange(st, "a", "b", big.NewInt(100), false)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var buf bytes.Buffer
	RenderQuote(&buf, st, ExchangeQuote(res))
	out := buf.String()
	for _, want := range []string{"AAA", "BBB", "100", "90"} {
		if !strings.Contains(out, want) {
			t.Fatalf("quote output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	Pool(&buf, st)
	if !strings.Contains(buf.String(), "0.3%") {
		t.Fatalf("pool output missing fee rate:\n%s", buf.String())
	}
}

func TestRenderRoute(t *testing.T) {
	st := testState()
	reg, err := pool.NewRegistryFromStates(st)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	tree := route.NewTree("ab", "b")
	tree.MustAddChild(tree.Root(), route.Node{Pool: "ab", Outcoming: "a", Numerator: 1, Failed: true})
	res, err := route.Simulate(reg, "ab", "a", big.NewInt(100), tree, false, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var buf bytes.Buffer
	Route(&buf, res, TokensOf(st))
	out := buf.String()
	if !strings.Contains(out, "refunded") || !strings.Contains(out, "Payables") {
		t.Fatalf("route output incomplete:\n%s", out)
	}
}
