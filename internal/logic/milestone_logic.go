package logic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/model"
)

// Submission 里程碑提交内容
type Submission struct {
	Description string
	Links       string
	Files       string
}

// MilestoneLogic 里程碑提交与审核逻辑（仅镜像，不上链）
//
// 提交内容和审核意见只存在于链下；链上只关心 approved/claimed 标志。
type MilestoneLogic struct {
	store ledger.Store
	sm    MilestoneStateMachine
}

// NewMilestoneLogic 创建里程碑逻辑
func NewMilestoneLogic(store ledger.Store) *MilestoneLogic {
	return &MilestoneLogic{store: store}
}

// Start 自由职业者开始某阶段的工作
func (m *MilestoneLogic) Start(ctx context.Context, jobId string, stage int, caller string) error {
	milestone, job, err := m.load(ctx, jobId, stage)
	if err != nil {
		return err
	}
	if !strings.EqualFold(caller, job.FreelancerWallet) {
		return &GuardViolation{Kind: GuardNotFreelancer, JobId: jobId, Stage: stage,
			Message: "只有自由职业者可以开始里程碑"}
	}
	if err := m.sm.Transition(milestone.Status, model.MilestoneStatusInProgress); err != nil {
		return err
	}

	return m.store.UpdateMilestone(ctx, jobId, stage, map[string]interface{}{
		"status": model.MilestoneStatusInProgress,
	})
}

// Submit 自由职业者提交工作成果
func (m *MilestoneLogic) Submit(ctx context.Context, jobId string, stage int, caller string, sub Submission) error {
	milestone, job, err := m.load(ctx, jobId, stage)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusActive {
		return errors.New("任务未在进行中，不能提交")
	}
	if !strings.EqualFold(caller, job.FreelancerWallet) {
		return &GuardViolation{Kind: GuardNotFreelancer, JobId: jobId, Stage: stage,
			Message: "只有自由职业者可以提交工作"}
	}
	if err := m.sm.Transition(milestone.Status, model.MilestoneStatusSubmitted); err != nil {
		return err
	}

	now := time.Now()
	return m.store.UpdateMilestone(ctx, jobId, stage, map[string]interface{}{
		"status":                 model.MilestoneStatusSubmitted,
		"submission_description": sub.Description,
		"submission_links":       sub.Links,
		"submission_files":       sub.Files,
		"submitted_at":           &now,
	})
}

// RequestRevision 雇主要求返工
func (m *MilestoneLogic) RequestRevision(ctx context.Context, jobId string, stage int, caller string, comments string) error {
	milestone, job, err := m.load(ctx, jobId, stage)
	if err != nil {
		return err
	}
	if !strings.EqualFold(caller, job.RecruiterWallet) {
		return &GuardViolation{Kind: GuardNotRecruiter, JobId: jobId, Stage: stage,
			Message: "只有雇主可以要求返工"}
	}
	if err := m.sm.Transition(milestone.Status, model.MilestoneStatusRevisionRequested); err != nil {
		return err
	}

	now := time.Now()
	return m.store.UpdateMilestone(ctx, jobId, stage, map[string]interface{}{
		"status":            model.MilestoneStatusRevisionRequested,
		"reviewer_comments": comments,
		"reviewed_at":       &now,
	})
}

// MilestoneDetail 里程碑及其派生的流程标志，供展示层消费
type MilestoneDetail struct {
	model.MilestoneModel
	AwaitingSubmission bool `json:"awaiting_submission"` // 还在等自由职业者提交
	Terminal           bool `json:"terminal"`            // 已到终态，不再有任何操作
}

// DescribeMilestones 为每条里程碑附上状态机派生的流程标志
func (m *MilestoneLogic) DescribeMilestones(milestones []model.MilestoneModel) []MilestoneDetail {
	details := make([]MilestoneDetail, len(milestones))
	for i, milestone := range milestones {
		details[i] = MilestoneDetail{
			MilestoneModel:     milestone,
			AwaitingSubmission: m.sm.AwaitingSubmission(milestone.Status),
			Terminal:           m.sm.Terminal(milestone.Status),
		}
	}
	return details
}

func (m *MilestoneLogic) load(ctx context.Context, jobId string, stage int) (*model.MilestoneModel, *model.JobModel, error) {
	job, err := m.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, nil, err
	}
	milestone, err := m.store.GetMilestone(ctx, jobId, stage)
	if err != nil {
		return nil, nil, err
	}
	return milestone, job, nil
}
