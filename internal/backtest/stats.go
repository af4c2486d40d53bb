package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"scalper/internal/engine"
)

// Summarize 由平仓记录计算回放汇总。ProfitFactor 为总盈利/总亏损，没有亏损时记为 0。
func Summarize(initial float64, trades []engine.ClosedTrade, skipped map[string]int) RunStats {
	st := RunStats{
		InitialBalance: initial,
		FinalBalance:   initial,
		ExitReasons:    make(map[string]int),
		Quality:        make(map[int]int),
		Skipped:        make(map[string]int, len(skipped)),
		FinishedAt:     time.Now(),
	}
	for k, v := range skipped {
		st.Skipped[k] = v
	}
	var grossWin, grossLoss float64
	peak := initial
	for _, t := range trades {
		st.Trades++
		st.TotalFees += t.Fee
		st.ExitReasons[t.Reason]++
		if t.Quality > 0 {
			st.Quality[t.Quality]++
		}
		if t.Win() {
			st.Wins++
			grossWin += t.PnL
		} else {
			st.Losses++
			grossLoss += -t.PnL
		}
		st.FinalBalance = t.BalanceAfter
		if t.BalanceAfter > peak {
			peak = t.BalanceAfter
		}
		if peak > 0 {
			if dd := (peak - t.BalanceAfter) / peak * 100; dd > st.MaxDrawdownPct {
				st.MaxDrawdownPct = dd
			}
		}
	}
	st.TotalPnL = st.FinalBalance - initial
	if initial > 0 {
		st.ROI = st.TotalPnL / initial * 100
	}
	if st.Trades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Trades) * 100
	}
	if st.Wins > 0 {
		st.AvgWin = grossWin / float64(st.Wins)
	}
	if st.Losses > 0 {
		st.AvgLoss = -grossLoss / float64(st.Losses)
	}
	if grossLoss > 0 {
		st.ProfitFactor = grossWin / grossLoss
	}
	return st
}

// Report 渲染终端/通知用的文本汇总。
func (st RunStats) Report(symbol, strategy string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BACKTEST RESULTS %s (%s)\n", symbol, strategy)
	fmt.Fprintf(&b, "Initial Balance: $%.2f\n", st.InitialBalance)
	fmt.Fprintf(&b, "Final Balance:   $%.2f\n", st.FinalBalance)
	fmt.Fprintf(&b, "Total P&L:       $%.2f (%.2f%%)\n", st.TotalPnL, st.ROI)
	fmt.Fprintf(&b, "Total Trades:    %d\n", st.Trades)
	fmt.Fprintf(&b, "Wins / Losses:   %d / %d\n", st.Wins, st.Losses)
	fmt.Fprintf(&b, "Win Rate:        %.2f%%\n", st.WinRate)
	fmt.Fprintf(&b, "Avg Win / Loss:  $%.2f / $%.2f\n", st.AvgWin, st.AvgLoss)
	fmt.Fprintf(&b, "Profit Factor:   %.2f\n", st.ProfitFactor)
	fmt.Fprintf(&b, "Fees Paid:       $%.2f\n", st.TotalFees)
	fmt.Fprintf(&b, "Max Drawdown:    %.2f%%\n", st.MaxDrawdownPct)
	writeCounts(&b, "Exit Reasons", st.ExitReasons)
	if len(st.Quality) > 0 {
		q := make(map[string]int, len(st.Quality))
		for stars, n := range st.Quality {
			q[fmt.Sprintf("%d stars", stars)] = n
		}
		writeCounts(&b, "Quality", q)
	}
	writeCounts(&b, "Skipped Setups", st.Skipped)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %-24s %d\n", k, counts[k])
	}
}
