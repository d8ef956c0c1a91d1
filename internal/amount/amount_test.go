package amount

import (
	"errors"
	"math/big"
	"testing"

	"dexsim/internal/dexerr"
)

func TestDivRounding(t *testing.T) {
	cases := []struct {
		x, y int64
		r    Rounding
		want int64
	}{
		{7, 2, Floor, 3},
		{7, 2, Ceil, 4},
		{8, 2, Ceil, 4},
		{0, 5, Ceil, 0},
	}
	for _, tc := range cases {
		got := Div(big.NewInt(tc.x), big.NewInt(tc.y), tc.r)
		if got.Int64() != tc.want {
			t.Fatalf("Div(%d,%d,%s) = %s, want %d", tc.x, tc.y, tc.r, got, tc.want)
		}
	}
}

func TestMulDiv(t *testing.T) {
	got := MulDiv(big.NewInt(100), big.NewInt(3000), big.NewInt(1_000_000), Ceil)
	if got.Int64() != 1 {
		t.Fatalf("expected ceil fee 1, got %s", got)
	}
	got = MulDiv(big.NewInt(1000), big.NewInt(99), big.NewInt(1099), Floor)
	if got.Int64() != 90 {
		t.Fatalf("expected 90, got %s", got)
	}
}

func TestParse(t *testing.T) {
	v, err := Parse("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.String() != "123456789012345678901234567890" {
		t.Fatalf("unexpected value %s", v)
	}
	if v, err := Parse(""); err != nil || v.Sign() != 0 {
		t.Fatalf("empty string should parse to zero, got %v %v", v, err)
	}
	for _, bad := range []string{"-1", "1.5", "abc"} {
		if _, err := Parse(bad); !errors.Is(err, dexerr.ErrInvalidAmount) {
			t.Fatalf("Parse(%q) expected ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(big.NewInt(1), Zero()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(big.NewInt(-1)); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := Validate(nil); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}

func TestSub(t *testing.T) {
	if _, ok := Sub(big.NewInt(1), big.NewInt(2)); ok {
		t.Fatalf("expected underflow")
	}
	d, ok := Sub(big.NewInt(5), big.NewInt(2))
	if !ok || d.Int64() != 3 {
		t.Fatalf("unexpected result %v %v", d, ok)
	}
}

func TestFitsWord(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if !FitsWord(max) {
		t.Fatalf("2^256-1 should fit")
	}
	if FitsWord(new(big.Int).Add(max, big.NewInt(1))) {
		t.Fatalf("2^256 should not fit")
	}
	if FitsWord(big.NewInt(-1)) {
		t.Fatalf("negative should not fit")
	}
}
