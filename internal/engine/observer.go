package engine

import (
	"scalper/internal/session"
	"scalper/internal/strategy"
)

// Observer 接收引擎状态变化；实现内不得回调引擎。
type Observer interface {
	OnRangeMarked(rng session.ReferenceRange)
	OnOrderPlaced(o Order)
	OnOrderCancelled(o Order, reason string)
	OnFill(p Position)
	OnClose(t ClosedTrade)
	OnSkip(s strategy.Setup, reason string)
}

// NopObserver 供嵌入，只实现需要的回调。
type NopObserver struct{}

func (NopObserver) OnRangeMarked(session.ReferenceRange) {}
func (NopObserver) OnOrderPlaced(Order)                  {}
func (NopObserver) OnOrderCancelled(Order, string)       {}
func (NopObserver) OnFill(Position)                      {}
func (NopObserver) OnClose(ClosedTrade)                  {}
func (NopObserver) OnSkip(strategy.Setup, string)        {}

type observers []Observer

func (os observers) rangeMarked(r session.ReferenceRange) {
	for _, o := range os {
		o.OnRangeMarked(r)
	}
}

func (os observers) placed(ord Order) {
	for _, o := range os {
		o.OnOrderPlaced(ord)
	}
}

func (os observers) cancelled(ord Order, reason string) {
	for _, o := range os {
		o.OnOrderCancelled(ord, reason)
	}
}

func (os observers) filled(p Position) {
	for _, o := range os {
		o.OnFill(p)
	}
}

func (os observers) closed(t ClosedTrade) {
	for _, o := range os {
		o.OnClose(t)
	}
}

func (os observers) skipped(s strategy.Setup, reason string) {
	for _, o := range os {
		o.OnSkip(s, reason)
	}
}
