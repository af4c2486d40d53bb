package engine

import "github.com/shopspring/decimal"

// Account 引擎状态中的资金部分。
type Account struct {
	Initial float64 `json:"initial"`
	Balance float64 `json:"balance"`
}

// Ledger 账户流水：按已平仓交易累计余额。
type Ledger struct {
	account Account
	trades  []ClosedTrade
}

func NewLedger(initial float64) *Ledger {
	return &Ledger{account: Account{Initial: initial, Balance: initial}}
}

// Record 记入净盈亏，并回填平仓后余额与 pnlPct。
func (l *Ledger) Record(t ClosedTrade) ClosedTrade {
	bal := decimal.NewFromFloat(l.account.Balance).Add(decimal.NewFromFloat(t.PnL))
	l.account.Balance, _ = bal.Float64()
	t.BalanceAfter = l.account.Balance
	if !bal.IsZero() {
		t.PnLPct, _ = decimal.NewFromFloat(t.PnL).Div(bal).Mul(decimal.NewFromInt(100)).Float64()
	}
	l.trades = append(l.trades, t)
	return t
}

func (l *Ledger) Account() Account { return l.account }

func (l *Ledger) Balance() float64 { return l.account.Balance }

func (l *Ledger) Trades() []ClosedTrade {
	out := make([]ClosedTrade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *Ledger) TotalPnL() float64 { return l.account.Balance - l.account.Initial }

// ROI 相对初始资金的总收益率（%）。
func (l *Ledger) ROI() float64 {
	if l.account.Initial == 0 {
		return 0
	}
	return l.TotalPnL() / l.account.Initial * 100
}

// Restore 用于 live 重启后恢复账户与历史成交。
func (l *Ledger) Restore(acc Account, trades []ClosedTrade) {
	l.account = acc
	l.trades = append([]ClosedTrade(nil), trades...)
}
