package pool

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/model"
	"dexsim/internal/stableswap"
)

const (
	tokenA model.TokenID = "token-a"
	tokenB model.TokenID = "token-b"
	tokenC model.TokenID = "token-c"
)

func ints(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func cpState(r0, r1, supply int64) model.State {
	return model.State{
		ID:              "cp",
		Kind:            model.KindConstantProduct,
		Tokens:          []model.Token{{ID: tokenA, Decimals: 6}, {ID: tokenB, Decimals: 6}},
		LPToken:         "cp-lp",
		Reserves:        ints(r0, r1),
		LPSupply:        big.NewInt(supply),
		Fee:             model.FeeParams{Denominator: 1_000_000, PoolNumerator: 3000},
		AccumulatedFees: ints(0, 0),
	}
}

func stableState(reserves ...int64) model.State {
	tokens := []model.Token{{ID: tokenA, Decimals: 6}, {ID: tokenB, Decimals: 6}, {ID: tokenC, Decimals: 6}}[:len(reserves)]
	kind := model.KindStablePair
	if len(reserves) > 2 {
		kind = model.KindStablePool
	}
	return model.State{
		ID:              "stable",
		Kind:            kind,
		Tokens:          tokens,
		LPToken:         "stable-lp",
		Reserves:        ints(reserves...),
		LPSupply:        amount.Zero(),
		Fee:             model.FeeParams{Denominator: 1_000_000, PoolNumerator: 3000},
		AccumulatedFees: amount.Zeros(len(reserves)),
		Amplification:   model.Amplification{Value: 10_000, Precision: 100},
	}
}

func mustPool(t *testing.T, s model.State) Pool {
	t.Helper()
	p, err := New(s)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

func TestConstantProductExchange(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 1000))
	res, err := p.Exchange(tokenA, tokenB, big.NewInt(100), false)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if res.Fee.Int64() != 1 || res.AmountOut.Int64() != 90 {
		t.Fatalf("expected fee=1 out=90, got fee=%s out=%s", res.Fee, res.AmountOut)
	}
	s := p.State()
	if s.Reserves[0].Int64() != 1100 || s.Reserves[1].Int64() != 910 {
		t.Fatalf("unexpected reserves %v", s.Reserves)
	}
}

func TestConstantProductFeeLeavesPool(t *testing.T) {
	st := cpState(1_000_000, 1_000_000, 1_000_000)
	st.Fee = model.FeeParams{Denominator: 1_000_000, PoolNumerator: 2000, BeneficiaryNumerator: 500, ReferrerNumerator: 500}
	p := mustPool(t, st)
	res, err := p.Exchange(tokenA, tokenB, big.NewInt(10_000), true)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	// fee = 30, referrer 5, pool 20, beneficiary 5
	if res.Fee.Int64() != 30 || res.FeeSplit.Pool.Int64() != 20 || res.FeeSplit.Referrer.Int64() != 5 || res.FeeSplit.Beneficiary.Int64() != 5 {
		t.Fatalf("unexpected fee split %+v", res.FeeSplit)
	}
	s := p.State()
	if s.Reserves[0].Int64() != 1_000_000+9_970+20 {
		t.Fatalf("unexpected reserve in %s", s.Reserves[0])
	}
	if s.AccumulatedFees[0].Int64() != 5 {
		t.Fatalf("expected beneficiary accrual 5, got %s", s.AccumulatedFees[0])
	}
}

func TestConstantProductProductNeverDecreases(t *testing.T) {
	p := mustPool(t, cpState(123_457, 987_653, 300_000))
	for _, in := range []int64{1, 2, 7, 99, 1_000, 54_321, 1_000_000} {
		before := p.State()
		if _, err := p.Exchange(tokenA, tokenB, big.NewInt(in), false); err != nil {
			t.Fatalf("exchange %d: %v", in, err)
		}
		after := p.State()
		kBefore := new(big.Int).Mul(before.Reserves[0], before.Reserves[1])
		kAfter := new(big.Int).Mul(after.Reserves[0], after.Reserves[1])
		if kAfter.Cmp(kBefore) < 0 {
			t.Fatalf("product decreased on %d: %s < %s", in, kAfter, kBefore)
		}
		if _, err := p.Exchange(tokenB, tokenA, big.NewInt(in), false); err != nil {
			t.Fatalf("reverse exchange %d: %v", in, err)
		}
	}
}

func TestConstantProductExpectedSpend(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 1000)).(*ConstantProduct)
	spend, err := p.ExpectedSpend(tokenA, tokenB, big.NewInt(90))
	if err != nil {
		t.Fatalf("expected spend: %v", err)
	}
	res, err := p.Clone().Exchange(tokenA, tokenB, spend, false)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if res.AmountOut.Int64() < 90 {
		t.Fatalf("spend %s buys only %s", spend, res.AmountOut)
	}
	less, _ := p.Clone().Exchange(tokenA, tokenB, new(big.Int).Sub(spend, big.NewInt(1)), false)
	if less.AmountOut.Int64() >= 90 {
		t.Fatalf("spend %s is not minimal", spend)
	}
	if _, err := p.ExpectedSpend(tokenA, tokenB, big.NewInt(1000)); !errors.Is(err, dexerr.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestConstantProductFirstDeposit(t *testing.T) {
	st := cpState(0, 0, 0)
	p := mustPool(t, st)
	if _, err := p.Deposit(ints(100, 0), true, false); !errors.Is(err, dexerr.ErrUnbalancedDeposit) {
		t.Fatalf("expected ErrUnbalancedDeposit, got %v", err)
	}
	res, err := p.Deposit(ints(400, 100), false, false)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.LPReward.Int64() != 200 {
		t.Fatalf("expected lp 200, got %s", res.LPReward)
	}
	if !p.State().Active() {
		t.Fatalf("pool should be active after first deposit")
	}
}

func TestConstantProductUnbalancedDeposit(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 1000))
	before := p.State()
	_, err := p.Deposit(ints(100, 50), false, false)
	if !errors.Is(err, dexerr.ErrUnbalancedDeposit) {
		t.Fatalf("expected ErrUnbalancedDeposit, got %v", err)
	}
	if !reflect.DeepEqual(before, p.State()) {
		t.Fatalf("failed deposit mutated the pool")
	}
}

func TestConstantProductAutoChangeDeposit(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 1000))
	res, err := p.Deposit(ints(100, 0), true, false)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Swap == nil || res.Swap.AmountIn.Int64() != 48 || res.Swap.AmountOut.Int64() != 44 {
		t.Fatalf("unexpected swap %+v", res.Swap)
	}
	if res.Steps[0].Sign() != 0 || res.Steps[1].Int64() != 45 || res.LPReward.Int64() != 45 {
		t.Fatalf("unexpected rewards %v total %s", res.Steps, res.LPReward)
	}
	if res.Change[0].Int64() != 4 || res.Change[1].Sign() != 0 {
		t.Fatalf("unexpected change %v", res.Change)
	}
	s := p.State()
	if s.Reserves[0].Int64() != 1096 || s.Reserves[1].Int64() != 1000 || s.LPSupply.Int64() != 1045 {
		t.Fatalf("unexpected state reserves=%v supply=%s", s.Reserves, s.LPSupply)
	}
}

func TestConstantProductDepositWithdrawRoundTrip(t *testing.T) {
	// Minted lp is floored, so a balanced round trip is exact only when
	// amount*supply divides evenly by the reserve on both sides. Otherwise
	// each side loses at most ceil(reserve/supply)+1.
	cases := []struct {
		r0, r1, supply int64
		a0, a1         int64
	}{
		{1000, 1000, 1000, 100, 100},
		{1000, 3000, 1000, 7, 21},
		{1000, 3000, 1732, 7, 21},
		{5_000_000, 2_000_000, 3_162_277, 50_000, 20_000},
	}
	for _, tc := range cases {
		p := mustPool(t, cpState(tc.r0, tc.r1, tc.supply))
		dep, err := p.Deposit(ints(tc.a0, tc.a1), false, false)
		if err != nil {
			t.Fatalf("deposit %d/%d: %v", tc.a0, tc.a1, err)
		}
		wd, err := p.Withdraw(dep.LPReward)
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		deposited := []int64{tc.a0, tc.a1}
		reserves := []int64{tc.r0, tc.r1}
		exact := tc.a0*tc.supply%tc.r0 == 0 && tc.a1*tc.supply%tc.r1 == 0
		for i := range deposited {
			got := wd.Amounts[i].Int64()
			if got > deposited[i] {
				t.Fatalf("round trip returned more than deposited: %v > %v", wd.Amounts, deposited)
			}
			if exact && got != deposited[i] {
				t.Fatalf("evenly minted round trip should be exact, got %v want %v", wd.Amounts, deposited)
			}
			maxLoss := (reserves[i]+tc.supply-1)/tc.supply + 1
			if deposited[i]-got > maxLoss {
				t.Fatalf("side %d lost %d, more than %d", i, deposited[i]-got, maxLoss)
			}
		}
	}
}

func TestConstantProductAutoChangeSwapsExcessSide(t *testing.T) {
	// 50/500 into 1000/1000 with supply 10 mints nothing proportionally;
	// token B is the excess and must be the side swapped.
	p := mustPool(t, cpState(1000, 1000, 10))
	res, err := p.Deposit(ints(50, 500), true, false)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Swap == nil || res.Swap.TokenIn != tokenB || res.Swap.AmountIn.Int64() != 204 || res.Swap.AmountOut.Int64() != 168 {
		t.Fatalf("unexpected swap %+v", res.Swap)
	}
	if res.Steps[0].Sign() != 0 || res.LPReward.Int64() != 2 {
		t.Fatalf("unexpected rewards %v total %s", res.Steps, res.LPReward)
	}
	if res.Change[0].Int64() != 14 || res.Change[1].Sign() != 0 {
		t.Fatalf("unexpected change %v", res.Change)
	}
	s := p.State()
	if s.Reserves[0].Int64() != 1036 || s.Reserves[1].Int64() != 1500 || s.LPSupply.Int64() != 12 {
		t.Fatalf("unexpected state reserves=%v supply=%s", s.Reserves, s.LPSupply)
	}
}

func TestConstantProductDepositMintingNothingIsRejected(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 10))
	before := p.State()

	if _, err := p.Deposit(ints(50, 90), true, false); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("auto-change deposit minting no lp: expected ErrInvalidAmount, got %v", err)
	}
	if !reflect.DeepEqual(before, p.State()) {
		t.Fatalf("rejected deposit mutated the pool")
	}

	if _, err := p.Deposit(ints(50, 50), false, false); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("balanced deposit minting no lp: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := p.Deposit(ints(50, 50), true, false); !errors.Is(err, dexerr.ErrInvalidAmount) {
		t.Fatalf("balanced auto-change deposit minting no lp: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := p.Deposit(ints(50, 90), false, false); !errors.Is(err, dexerr.ErrUnbalancedDeposit) {
		t.Fatalf("off-ratio deposit: expected ErrUnbalancedDeposit, got %v", err)
	}
	if !reflect.DeepEqual(before, p.State()) {
		t.Fatalf("rejected deposit mutated the pool")
	}
}

func TestConstantProductWithdrawOneCoin(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 1000))
	res, err := p.WithdrawOneCoin(big.NewInt(100), tokenA, false)
	if err != nil {
		t.Fatalf("withdraw one coin: %v", err)
	}
	// 100/100 out, then 100 B -> fee 1, out floor(900*99/999) = 89
	if res.Amounts[0].Int64() != 189 || res.Amounts[1].Sign() != 0 {
		t.Fatalf("unexpected amounts %v", res.Amounts)
	}
	if _, err := p.WithdrawOneCoin(p.State().LPSupply, tokenA, false); !errors.Is(err, dexerr.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestWithdrawTooMuch(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 1000))
	if _, err := p.Withdraw(big.NewInt(1001)); !errors.Is(err, dexerr.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func activeStable(t *testing.T, reserves ...int64) Pool {
	t.Helper()
	p := mustPool(t, stableState(make([]int64, len(reserves))...))
	if _, err := p.Deposit(ints(reserves...), false, false); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	return p
}

func TestStableFirstDeposit(t *testing.T) {
	p := mustPool(t, stableState(0, 0))
	if _, err := p.Deposit(ints(10, 0), false, false); !errors.Is(err, dexerr.ErrUnbalancedDeposit) {
		t.Fatalf("expected ErrUnbalancedDeposit, got %v", err)
	}
	res, err := p.Deposit(ints(1_000_000, 1_000_000), false, false)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.LPReward.Int64() != 2_000_000 {
		t.Fatalf("expected lp 2000000, got %s", res.LPReward)
	}
}

func TestStableExchangeFeeOnOutput(t *testing.T) {
	p := activeStable(t, 1_000_000, 1_000_000)
	res, err := p.Exchange(tokenA, tokenB, big.NewInt(1000), false)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if res.FeeToken != tokenB || res.Fee.Int64() != 3 || res.AmountOut.Int64() != 997 {
		t.Fatalf("unexpected exchange %+v", res)
	}
	s := p.State()
	if s.Reserves[0].Int64() != 1_001_000 || s.Reserves[1].Int64() != 999_003 {
		t.Fatalf("unexpected reserves %v", s.Reserves)
	}
}

func TestStableImbalancedDeposit(t *testing.T) {
	p := activeStable(t, 1_000_000, 1_000_000)
	res, err := p.Deposit(ints(10, 20), false, false)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Fees[0].Sign() != 0 || res.Fees[1].Sign() <= 0 {
		t.Fatalf("fee should fall on the excess side only, got %v", res.Fees)
	}
	if res.LPReward.Sign() <= 0 || res.LPReward.Int64() >= 30 {
		t.Fatalf("expected 0 < lp < 30, got %s", res.LPReward)
	}
	if res.LPReward.Int64() != 29 {
		t.Fatalf("expected lp 29, got %s", res.LPReward)
	}
}

func TestStableWithdrawOneCoin(t *testing.T) {
	p := activeStable(t, 1_000_000, 1_000_000)
	res, err := p.WithdrawOneCoin(big.NewInt(1000), tokenA, false)
	if err != nil {
		t.Fatalf("withdraw one coin: %v", err)
	}
	if res.Amounts[0].Int64() != 998 || res.Fees[0].Int64() != 2 || res.Amounts[1].Sign() != 0 {
		t.Fatalf("unexpected result amounts=%v fees=%v", res.Amounts, res.Fees)
	}
	s := p.State()
	if s.LPSupply.Int64() != 1_999_000 || s.Reserves[0].Int64() != 999_002 {
		t.Fatalf("unexpected state supply=%s reserves=%v", s.LPSupply, s.Reserves)
	}
}

func TestStableDepositWithdrawRoundTrip(t *testing.T) {
	p := activeStable(t, 1_000_000, 1_000_000)
	dep, err := p.Deposit(ints(1000, 1000), false, false)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if dep.LPReward.Int64() != 2000 || dep.Fees[0].Sign() != 0 || dep.Fees[1].Sign() != 0 {
		t.Fatalf("balanced deposit should mint 2000 fee-free, got lp=%s fees=%v", dep.LPReward, dep.Fees)
	}
	wd, err := p.Withdraw(dep.LPReward)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if wd.Amounts[0].Int64() != 1000 || wd.Amounts[1].Int64() != 1000 {
		t.Fatalf("balanced round trip should be exact, got %v", wd.Amounts)
	}
	s := p.State()
	if s.LPSupply.Int64() != 2_000_000 || s.Reserves[0].Int64() != 1_000_000 || s.Reserves[1].Int64() != 1_000_000 {
		t.Fatalf("unexpected state supply=%s reserves=%v", s.LPSupply, s.Reserves)
	}
}

func TestStablePoolThreeTokens(t *testing.T) {
	p := activeStable(t, 2_000_000, 1_000_000, 1_500_000)
	if p.Kind() != model.KindStablePool {
		t.Fatalf("expected stable pool kind, got %s", p.Kind())
	}
	res, err := p.DepositOneCoin(tokenC, big.NewInt(10_000), false)
	if err != nil {
		t.Fatalf("deposit one coin: %v", err)
	}
	if res.Fees[2].Sign() <= 0 || res.LPReward.Sign() <= 0 {
		t.Fatalf("unexpected deposit %+v", res)
	}
	wd, err := p.Withdraw(res.LPReward)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if wd.Amounts[2].Int64() >= 10_000 {
		t.Fatalf("withdrawal returned more than deposited: %v", wd.Amounts)
	}
}

func TestStableConvergenceFailureLeavesStateUntouched(t *testing.T) {
	p := activeStable(t, 1_000_000, 1_000_000).(*Stable)
	p.WithSolver(stableswap.Solver{MaxIterations: 1})
	before := p.State()
	_, err := p.Exchange(tokenA, tokenB, big.NewInt(500_000), false)
	if !errors.Is(err, dexerr.ErrConvergenceFailed) {
		t.Fatalf("expected ErrConvergenceFailed, got %v", err)
	}
	if !reflect.DeepEqual(before, p.State()) {
		t.Fatalf("failed exchange mutated the pool")
	}
}

func TestBeneficiaryFees(t *testing.T) {
	st := cpState(1_000_000, 1_000_000, 1_000_000)
	st.Fee = model.FeeParams{
		Denominator:          1_000_000,
		PoolNumerator:        2000,
		BeneficiaryNumerator: 1000,
		Thresholds:           map[model.TokenID]*big.Int{tokenA: big.NewInt(10)},
	}
	p := mustPool(t, st)
	if _, err := p.Exchange(tokenA, tokenB, big.NewInt(10_000), false); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if due := p.BeneficiaryFeesDue(); len(due) != 1 || due[0] != tokenA {
		t.Fatalf("expected token-a due, got %v", due)
	}
	paid := p.WithdrawBeneficiaryFees()
	if paid[0].Int64() != 10 || paid[1].Sign() != 0 {
		t.Fatalf("unexpected payout %v", paid)
	}
	if s := p.State(); s.AccumulatedFees[0].Sign() != 0 {
		t.Fatalf("accumulated fees not reset: %v", s.AccumulatedFees)
	}
}

func TestSimulateIsDeterministicAndPure(t *testing.T) {
	st := cpState(1_000_000, 2_000_000, 1_414_213)
	res1, after1, err := SimulateExchange(st, tokenA, tokenB, big.NewInt(12_345), true)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	res2, after2, err := SimulateExchange(st, tokenA, tokenB, big.NewInt(12_345), true)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !reflect.DeepEqual(res1, res2) || !reflect.DeepEqual(after1, after2) {
		t.Fatalf("simulation is not deterministic")
	}
	if st.Reserves[0].Int64() != 1_000_000 {
		t.Fatalf("input state was mutated")
	}
}

func TestUnknownToken(t *testing.T) {
	p := mustPool(t, cpState(1000, 1000, 1000))
	if _, err := p.Exchange(tokenA, tokenC, big.NewInt(1), false); !errors.Is(err, dexerr.ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}
