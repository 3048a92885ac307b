package order

import (
	"fmt"
	"sort"
)

// StateTransition 状态转换
type StateTransition struct {
	From State
	To   State
}

// StateMachine 描述某一类订单的合法状态转换。
//
// The typed transitions in this package already make illegal sequences
// unrepresentable; the table is for code that only sees persisted records
// (store replay, external snapshots) and must check them.
type StateMachine struct {
	kind        Kind
	transitions map[StateTransition]bool
}

// NewStateMachine 创建指定类型订单的状态机
func NewStateMachine(kind Kind) *StateMachine {
	sm := &StateMachine{
		kind:        kind,
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		{StateNew, StatePosted},
		{StateNew, StateRejected},
		{StatePosted, StatePosted}, // 部分成交
		{StatePosted, StateFilled},
	}
	if sm.kind == KindLimit {
		legalTransitions = append(legalTransitions, StateTransition{StatePosted, StateCanceled})
	}
	// 终态不能转换（FILLED, CANCELED, REJECTED）

	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// Kind returns the order kind the table describes.
func (sm *StateMachine) Kind() Kind {
	return sm.kind
}

// Has reports whether the kind has state s at all.
func (sm *StateMachine) Has(s State) bool {
	switch s {
	case StateNew, StatePosted, StateFilled, StateRejected:
		return true
	case StateCanceled:
		return sm.kind == KindLimit
	default:
		return false
	}
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to State) error {
	if !sm.Has(from) || !sm.Has(to) {
		return fmt.Errorf("%w: %s order has no transition %s -> %s", ErrIllegalTransition, sm.kind, from, to)
	}
	// 相同状态允许（幂等性）
	if from == to {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// AllowedTransitions 返回当前状态所有合法的目标状态
func (sm *StateMachine) AllowedTransitions(current State) []State {
	allowed := make([]State, 0)
	for transition := range sm.transitions {
		if transition.From == current {
			allowed = append(allowed, transition.To)
		}
	}
	sort.Slice(allowed, func(i, j int) bool { return allowed[i] < allowed[j] })
	return allowed
}

// IsFinalState 判断是否是终态
func (sm *StateMachine) IsFinalState(s State) bool {
	switch s {
	case StateFilled, StateRejected, StateCanceled:
		return true
	default:
		return false
	}
}

// CanCancel 判断当前状态下是否可以撤单
func (sm *StateMachine) CanCancel(s State) bool {
	return sm.kind == KindLimit && s == StatePosted
}

// GetStateDescription 获取状态描述
func (sm *StateMachine) GetStateDescription(s State) string {
	descriptions := map[State]string{
		StateNew:      "订单已创建",
		StatePosted:   "订单已提交",
		StateFilled:   "订单完全成交",
		StateRejected: "订单被拒绝",
		StateCanceled: "订单已撤销",
	}

	if desc, ok := descriptions[s]; ok && sm.Has(s) {
		return desc
	}
	return "未知状态"
}
