package session

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// SessionState 当日轮询的生命周期状态
type SessionState string

const (
	StateIdle      SessionState = "IDLE"      // 等待日历检查
	StateScheduled SessionState = "SCHEDULED" // 轮询任务已注册，尚未执行
	StatePolling   SessionState = "POLLING"   // 轮询任务已至少执行一次
	StateExpired   SessionState = "EXPIRED"   // 已过收盘边界，当日终态
)

// 合法的状态转换；回到 IDLE 只能通过 Reset (次日的日历检查)
var transitions = map[SessionState][]SessionState{
	StateIdle:      {StateScheduled},
	StateScheduled: {StatePolling, StateExpired},
	StatePolling:   {StateExpired},
	StateExpired:   nil,
}

// StateMachine 结构体
type StateMachine struct {
	mu      sync.RWMutex
	current SessionState
	logger  *zap.Logger
}

func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{current: StateIdle, logger: logger}
}

// Transition 尝试切换到 to；同状态视为成功，非法转换返回 false
func (sm *StateMachine) Transition(to SessionState) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current == to {
		return true
	}
	if !slices.Contains(transitions[sm.current], to) {
		sm.logger.Warn("Rejected state transition",
			zap.String("From", string(sm.current)),
			zap.String("To", string(to)))
		return false
	}

	sm.logger.Info("State transition",
		zap.String("From", string(sm.current)),
		zap.String("To", string(to)))
	sm.current = to
	return true
}

// Reset 新交易日开始，回到 IDLE
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current != StateIdle {
		sm.logger.Info("State reset", zap.String("From", string(sm.current)))
	}
	sm.current = StateIdle
}

// Current 查询当前状态
func (sm *StateMachine) Current() SessionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}
