package report

import (
	"fmt"
	"io"
	"math/big"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"dexsim/internal/model"
	"dexsim/internal/pool"
	"dexsim/internal/route"
	"dexsim/internal/verify"
)

// Leg is an amount of one token.
type Leg struct {
	Token  model.TokenID
	Amount *big.Int
}

// Quote is the flattened view of any single-pool operation.
type Quote struct {
	Operation string
	Spent     []Leg
	Received  []Leg
	Fees      []Leg
}

// ExchangeQuote flattens an exchange result.
func ExchangeQuote(res pool.ExchangeResult) Quote {
	return Quote{
		Operation: "exchange",
		Spent:     []Leg{{Token: res.TokenIn, Amount: res.AmountIn}},
		Received:  []Leg{{Token: res.TokenOut, Amount: res.AmountOut}},
		Fees:      []Leg{{Token: res.FeeToken, Amount: res.Fee}},
	}
}

// DepositQuote flattens a deposit into st.
func DepositQuote(op string, st model.State, res pool.DepositResult) Quote {
	q := Quote{Operation: op}
	for i, t := range st.Tokens {
		if i < len(res.Amounts) && res.Amounts[i].Sign() > 0 {
			q.Spent = append(q.Spent, Leg{Token: t.ID, Amount: res.Amounts[i]})
		}
		if i < len(res.Change) && res.Change[i].Sign() > 0 {
			q.Received = append(q.Received, Leg{Token: t.ID, Amount: res.Change[i]})
		}
		if i < len(res.Fees) && res.Fees[i].Sign() > 0 {
			q.Fees = append(q.Fees, Leg{Token: t.ID, Amount: res.Fees[i]})
		}
	}
	q.Received = append(q.Received, Leg{Token: st.LPToken, Amount: res.LPReward})
	if res.Swap != nil && res.Swap.Fee.Sign() > 0 {
		q.Fees = append(q.Fees, Leg{Token: res.Swap.FeeToken, Amount: res.Swap.Fee})
	}
	return q
}

// WithdrawQuote flattens a withdrawal from st.
func WithdrawQuote(op string, st model.State, res pool.WithdrawResult) Quote {
	q := Quote{
		Operation: op,
		Spent:     []Leg{{Token: st.LPToken, Amount: res.LPAmount}},
	}
	for i, t := range st.Tokens {
		if v := res.AmountOf(i); v.Sign() > 0 {
			q.Received = append(q.Received, Leg{Token: t.ID, Amount: v})
		}
		if i < len(res.Fees) && res.Fees[i].Sign() > 0 {
			q.Fees = append(q.Fees, Leg{Token: t.ID, Amount: res.Fees[i]})
		}
	}
	if res.Swap != nil && res.Swap.Fee.Sign() > 0 {
		q.Fees = append(q.Fees, Leg{Token: res.Swap.FeeToken, Amount: res.Swap.Fee})
	}
	return q
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

// Pool renders a pool state.
func Pool(w io.Writer, st model.State) {
	tokens := TokensOf(st)
	t := newTable(w, st.ID)
	t.SetCaption(string(st.Kind))
	t.AppendHeader(table.Row{"Token", "Decimals", "Reserve", "Accrued fee"})
	for i, tok := range st.Tokens {
		t.AppendRow(table.Row{
			tokens.Label(tok.ID),
			tok.Decimals,
			Amount(st.Reserves[i], tok.Decimals),
			Amount(st.AccumulatedFees[i], tok.Decimals),
		})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"LP supply", "", tokens.Amount(st.LPToken, st.LPSupply), ""})
	fee := st.Fee
	t.AppendRow(table.Row{"Fee", FeeRate(fee.TotalNumerator(), fee.Denominator), FeeRate(fee.TotalNumerator(), fee.Denominator), ""},
		table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft})
	if st.Kind.IsStable() {
		t.AppendRow(table.Row{"A", fmt.Sprintf("%d/%d", st.Amplification.Value, st.Amplification.Precision), "", ""})
	}
	t.Render()
}

// RenderQuote renders a single-pool quote.
func RenderQuote(w io.Writer, st model.State, q Quote) {
	tokens := TokensOf(st)
	t := newTable(w, fmt.Sprintf("%s %s", st.ID, q.Operation))
	t.AppendHeader(table.Row{"", "Token", "Amount"})
	appendLegs := func(label string, legs []Leg) {
		for _, leg := range legs {
			t.AppendRow(table.Row{label, tokens.Label(leg.Token), tokens.Amount(leg.Token, leg.Amount)})
		}
	}
	appendLegs("Spent", q.Spent)
	appendLegs("Received", q.Received)
	appendLegs("Fee", q.Fees)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	t.Render()
}

// Route renders the steps and payables of a route simulation.
func Route(w io.Writer, res route.Result, tokens Tokens) {
	steps := newTable(w, "Route steps")
	steps.AppendHeader(table.Row{"Node", "Pool", "Operation", "In", "Out", "Fee", "Status"})
	for _, s := range res.Steps {
		status := "ok"
		if s.Failed {
			status = "refunded: " + s.Reason
		}
		fee := ""
		if s.Fee != nil && s.Fee.Sign() > 0 {
			fee = fmt.Sprintf("%s %s", tokens.Amount(s.FeeToken, s.Fee), tokens.Label(s.FeeToken))
		}
		steps.AppendRow(table.Row{
			s.Node,
			s.Pool,
			s.Operation,
			fmt.Sprintf("%s %s", tokens.Amount(s.TokenIn, s.AmountIn), tokens.Label(s.TokenIn)),
			fmt.Sprintf("%s %s", tokens.Amount(s.TokenOut, s.AmountOut), tokens.Label(s.TokenOut)),
			fee,
			status,
		})
	}
	steps.Render()

	payables := newTable(w, "Payables")
	payables.AppendHeader(table.Row{"Token", "Total"})
	for _, token := range res.Tokens() {
		payables.AppendRow(table.Row{tokens.Label(token), tokens.Amount(token, res.Total(token))})
	}
	payables.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	payables.Render()
}

// Verification renders state mismatches and replayed exchange checks.
func Verification(w io.Writer, poolID string, mismatches []verify.Mismatch, checks []verify.EventCheck) {
	t := newTable(w, "Verification "+poolID)
	t.AppendHeader(table.Row{"Item", "Expected", "Actual"})
	for _, c := range checks {
		label := fmt.Sprintf("tx %s#%d", c.Event.TxHash, c.Event.LogIndex)
		switch {
		case c.Error != "":
			t.AppendRow(table.Row{label, c.Event.AmountOut, "error: " + c.Error})
		case c.OK():
			t.AppendRow(table.Row{label, c.Event.AmountOut, c.AmountOut})
		default:
			for _, m := range c.Mismatches {
				t.AppendRow(table.Row{label + " " + m.Field, m.Expected, m.Actual})
			}
		}
	}
	if len(checks) > 0 {
		t.AppendSeparator()
	}
	for _, m := range mismatches {
		t.AppendRow(table.Row{m.Field, m.Expected, m.Actual})
	}
	if len(mismatches) == 0 {
		t.AppendRow(table.Row{"state", "matches", "matches"})
	}
	t.Render()
}
