// Package strategy 把 K 线转换为交易 setup，检测器可外包 QualityGate。
package strategy

import (
	"math"

	"scalper/internal/market"
	"scalper/internal/session"
)

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

type EntryMode int

const (
	// 信号 K 线收盘价直接成交
	EntryMarket EntryMode = iota
	// 挂限价，等后续 K 线扫到
	EntryLimit
)

func (m EntryMode) String() string {
	if m == EntryLimit {
		return "limit"
	}
	return "market"
}

// ExitRules 止损止盈之外的离场开关。
type ExitRules struct {
	ReturnToEntry bool
}

// Setup 检测到的交易信号；未评分时 Quality 为 0。
type Setup struct {
	Kind       string    `json:"kind"`
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Quality    int       `json:"quality,omitempty"`
	Time       int64     `json:"time"`
}

func (s Setup) Risk() float64 { return math.Abs(s.Entry - s.StopLoss) }

// Input 单根 K 线检测所需的全部输入。
type Input struct {
	Bar market.Candle
	// 交易周期历史，含 Bar 本身
	History market.Candles
	// 已收盘的大周期 K 线，可能为空
	Confirm market.Candles
	Range   session.ReferenceRange
}

// Detection 一次 Detect 的结果；Skipped 非空表示找到信号但被拒绝。
type Detection struct {
	Setup   Setup
	OK      bool
	Skipped string
}

func found(s Setup) Detection { return Detection{Setup: s, OK: true} }

func skipped(s Setup, reason string) Detection { return Detection{Setup: s, Skipped: reason} }

type Strategy interface {
	Name() string
	Detect(in Input) Detection
	EntryMode() EntryMode
	ExitRules() ExitRules
	// 是否依赖已标记的参考区间
	NeedsRange() bool
}
