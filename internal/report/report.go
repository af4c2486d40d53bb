// Package report 把一次回放渲染成 HTML 图表（K 线 + 成交标记 + 成交量 + 资金曲线），
// 可选用 headless Chrome 截图成 PNG。
package report

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"scalper/internal/analysis/indicator"
	"scalper/internal/engine"
	"scalper/internal/market"
	"scalper/internal/strategy"
)

// EquityPoint 是资金曲线上的一个点。
type EquityPoint struct {
	TS      int64
	Balance float64
}

type Input struct {
	Symbol    string
	Timeframe string
	Candles   market.Candles
	Trades    []engine.ClosedTrade
	Equity    []EquityPoint
	EMAPeriod int
	Location  *time.Location
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEma           = "#fbbf24"
	colorEquity        = "#3b82f6"
	colorExit          = "#e5e7eb"

	axisTimeLayout = "01-02 15:04"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	volumeHeightPx = 220
	equityHeightPx = 320
)

// PageHeight 是整页截图需要的高度。
const PageHeight = klineHeightPx + volumeHeightPx + equityHeightPx

// BuildHTML 渲染完整报告页。
func BuildHTML(in Input) ([]byte, error) {
	if len(in.Candles) == 0 {
		return nil, fmt.Errorf("report %s: no candles", in.Symbol)
	}
	if in.Location == nil {
		in.Location = time.UTC
	}
	if in.EMAPeriod <= 0 {
		in.EMAPeriod = 50
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := buildXAxis(in.Candles, in.Location)
	kline := buildKlineChart(in, xAxis)
	volume := buildVolumeChart(xAxis, in.Candles)
	page.AddCharts(kline, volume)
	if len(in.Equity) > 0 {
		page.AddCharts(buildEquityChart(in))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteHTML 渲染并写入 path，返回写入的字节数。
func WriteHTML(path string, in Input) (int, error) {
	html, err := BuildHTML(in)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return 0, err
	}
	return len(html), nil
}

func buildKlineChart(in Input, xAxis []string) *charts.Kline {
	minPrice, maxPrice := priceBounds(in.Candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		panel(klineHeightPx),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(in.Symbol), in.Timeframe),
			Subtitle:      tradeSubtitle(in.Trades),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: gridLines(0.2),
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	data := make([]opts.KlineData, 0, len(in.Candles))
	for _, c := range in.Candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	ema := charts.NewLine()
	ema.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	ema.SetXAxis(xAxis)
	ema.AddSeries(fmt.Sprintf("EMA%d", in.EMAPeriod), toLineData(indicator.EMA(in.Candles.Closes(), in.EMAPeriod)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEma, Width: 2}))
	kline.Overlap(ema)

	if len(in.Trades) > 0 {
		entries, exits := tradeMarkers(in.Candles, in.Trades)
		markers := charts.NewScatter()
		markers.SetXAxis(xAxis)
		markers.AddSeries("Entry", entries, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
		markers.AddSeries("Exit", exits, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorExit}))
		kline.Overlap(markers)
	}
	return kline
}

// tradeMarkers 把成交对齐到 K 线索引；不在图表区间内的成交忽略。
func tradeMarkers(candles market.Candles, trades []engine.ClosedTrade) (entries, exits []opts.ScatterData) {
	index := make(map[int64]int, len(candles))
	for i, c := range candles {
		index[c.OpenTime] = i
	}
	entries = make([]opts.ScatterData, len(candles))
	exits = make([]opts.ScatterData, len(candles))
	for i := range candles {
		entries[i] = opts.ScatterData{Value: nil}
		exits[i] = opts.ScatterData{Value: nil}
	}
	for _, t := range trades {
		if i, ok := index[t.EntryTime]; ok {
			rotate := 0
			if t.Direction == strategy.Short {
				rotate = 180
			}
			entries[i] = opts.ScatterData{Value: t.Entry, Symbol: "triangle", SymbolSize: 14, SymbolRotate: rotate, Name: string(t.Direction)}
		}
		if i, ok := index[t.ExitTime]; ok {
			exits[i] = opts.ScatterData{Value: t.Exit, Symbol: "diamond", SymbolSize: 12, Name: t.Reason}
		}
	}
	return entries, exits
}

func tradeSubtitle(trades []engine.ClosedTrade) string {
	if len(trades) == 0 {
		return "no trades"
	}
	wins := 0
	pnl := 0.0
	for _, t := range trades {
		if t.Win() {
			wins++
		}
		pnl += t.PnL
	}
	return fmt.Sprintf("trades %d | wins %d | pnl %.2f", len(trades), wins, pnl)
}

func buildVolumeChart(xAxis []string, candles market.Candles) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		panel(volumeHeightPx),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: gridLines(0.15),
		}),
	)
	vols := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := colorBear
		if c.Close >= c.Open {
			color = colorBull
		}
		vols[i] = opts.BarData{Value: c.Volume, ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)}}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)
	return bar
}

func buildEquityChart(in Input) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		panel(equityHeightPx),
		charts.WithTitleOpts(opts.Title{Title: "Equity", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
		}),
	)
	x := make([]string, len(in.Equity))
	balance := make([]opts.LineData, len(in.Equity))
	drawdown := make([]opts.LineData, len(in.Equity))
	peak := 0.0
	for i, p := range in.Equity {
		x[i] = time.UnixMilli(p.TS).In(in.Location).Format(axisTimeLayout)
		balance[i] = opts.LineData{Value: round(p.Balance, 2)}
		peak = math.Max(peak, p.Balance)
		drawdown[i] = opts.LineData{Value: round(p.Balance-peak, 2)}
	}
	line.SetXAxis(x)
	line.AddSeries("Balance", balance,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
	)
	line.AddSeries("Drawdown", drawdown,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorBear, Width: 1, Type: "dashed"}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: colorBear, Opacity: opts.Float(0.15)}),
	)
	return line
}

// panel 统一各子图的宽度、主题与背景色。
func panel(heightPx int) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", heightPx),
		BackgroundColor: colorBackground,
	})
}

func gridLines(opacity float32) *opts.SplitLine {
	return &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(opacity)}}
}

func buildXAxis(candles market.Candles, loc *time.Location) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.OpenTime).In(loc).Format(axisTimeLayout)
	}
	return x
}

func toLineData(series []float64) []opts.LineData {
	line := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: round(v, 4)}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func priceBounds(candles market.Candles) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal, maxVal = candles[0].Low, candles[0].High
	for _, c := range candles {
		minVal = math.Min(minVal, c.Low)
		maxVal = math.Max(maxVal, c.High)
	}
	return minVal, maxVal
}
