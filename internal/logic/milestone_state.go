package logic

import (
	"github.com/blues/fps/internal/model"
)

// MilestoneStateMachine 里程碑状态机（纯逻辑，无IO）
//
// pending → in_progress → submitted → {approved | revision_requested}
// revision_requested → submitted（返工循环）
// approved → claimed（该里程碑的终态）
type MilestoneStateMachine struct{}

var milestoneTransitions = map[model.MilestoneStatus][]model.MilestoneStatus{
	model.MilestoneStatusPending:           {model.MilestoneStatusInProgress},
	model.MilestoneStatusInProgress:        {model.MilestoneStatusSubmitted},
	model.MilestoneStatusSubmitted:         {model.MilestoneStatusApproved, model.MilestoneStatusRevisionRequested},
	model.MilestoneStatusRevisionRequested: {model.MilestoneStatusSubmitted},
	model.MilestoneStatusApproved:          {model.MilestoneStatusClaimed},
	model.MilestoneStatusClaimed:           {},
}

// CanTransition 状态迁移是否合法
func (MilestoneStateMachine) CanTransition(from, to model.MilestoneStatus) bool {
	for _, next := range milestoneTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition 校验状态迁移，非法迁移返回 StateViolation
func (m MilestoneStateMachine) Transition(from, to model.MilestoneStatus) error {
	if !m.CanTransition(from, to) {
		return &StateViolation{From: from, To: to}
	}
	return nil
}

// AwaitingSubmission 该状态下是否还预期自由职业者提交工作
func (MilestoneStateMachine) AwaitingSubmission(status model.MilestoneStatus) bool {
	switch status {
	case model.MilestoneStatusPending, model.MilestoneStatusInProgress, model.MilestoneStatusRevisionRequested:
		return true
	default:
		return false
	}
}

// Terminal 是否为终态
func (MilestoneStateMachine) Terminal(status model.MilestoneStatus) bool {
	return status == model.MilestoneStatusClaimed
}
