// Package circuit 为 live 拉取 K 线提供熔断保护：连续失败后暂停访问交易所，
// 冷却结束后放行一次试探请求。
package circuit

import (
	"errors"
	"sync"
	"time"

	"scalper/internal/logger"
)

// ErrOpen 表示熔断器处于打开状态，本次调用被拒绝。
var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	threshold     int
	cooldown      time.Duration
	lastFailure   time.Time
	name          string
	now           func() time.Time
	onStateChange func(name string, from, to State)
}

func New(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

// SetClock 仅用于测试。
func (cb *Breaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if now != nil {
		cb.now = now
	}
}

// OnStateChange 注册状态切换回调（同步调用，持锁外执行）。
func (cb *Breaker) OnStateChange(handler func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = handler
}

func (cb *Breaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *Breaker) Allow() bool {
	cb.mu.Lock()
	allowed, change := cb.allowLocked()
	cb.mu.Unlock()
	cb.emit(change)
	return allowed
}

func (cb *Breaker) allowLocked() (bool, *stateChange) {
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.cooldown {
			return true, cb.transition(StateHalfOpen)
		}
		return false, nil
	default:
		return true, nil
	}
}

func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	var change *stateChange
	if cb.state == StateHalfOpen {
		change = cb.transition(StateClosed)
	}
	cb.failures = 0
	cb.mu.Unlock()
	cb.emit(change)
}

func (cb *Breaker) RecordFailure() {
	cb.mu.Lock()
	cb.failures++
	cb.lastFailure = cb.now()
	var change *stateChange
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.threshold {
			change = cb.transition(StateOpen)
		}
	case StateHalfOpen:
		change = cb.transition(StateOpen)
	}
	cb.mu.Unlock()
	cb.emit(change)
}

// Do 在熔断器允许时执行 fn，并按结果记录成功/失败。
func (cb *Breaker) Do(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

type stateChange struct {
	from, to State
	failures int
}

func (cb *Breaker) transition(to State) *stateChange {
	from := cb.state
	cb.state = to
	return &stateChange{from: from, to: to, failures: cb.failures}
}

func (cb *Breaker) emit(change *stateChange) {
	if change == nil {
		return
	}
	cb.mu.Lock()
	handler := cb.onStateChange
	cb.mu.Unlock()
	if handler != nil {
		handler(cb.name, change.from, change.to)
		return
	}
	logger.Warnf("breaker %s: %s -> %s (failures=%d/%d, cooldown=%s)",
		cb.name, change.from, change.to, change.failures, cb.threshold, cb.cooldown)
}
