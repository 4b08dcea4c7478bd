package logic

import (
	"context"
	"errors"
	"strings"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/model"
	"github.com/google/uuid"
)

// JobLogic 任务生命周期逻辑
type JobLogic struct {
	store ledger.Store
	chain escrow.Client
}

// NewJobLogic 创建任务逻辑
func NewJobLogic(store ledger.Store, chain escrow.Client) *JobLogic {
	return &JobLogic{store: store, chain: chain}
}

// CreateJob 创建任务及里程碑（草稿状态，未上链）
func (j *JobLogic) CreateJob(ctx context.Context, job *model.JobModel, amounts []int64) (*model.JobModel, error) {
	if job.Title == "" {
		return nil, errors.New("任务标题不能为空")
	}
	if job.RecruiterWallet == "" {
		return nil, errors.New("雇主钱包不能为空")
	}
	if len(amounts) == 0 {
		return nil, errors.New("至少需要一个里程碑")
	}

	var total int64
	milestones := make([]*model.MilestoneModel, len(amounts))
	for i, amount := range amounts {
		if amount <= 0 {
			return nil, errors.New("里程碑金额必须大于0")
		}
		total += amount
		milestones[i] = &model.MilestoneModel{
			Stage:  i + 1, // 阶段号从1开始，连续无空洞
			Amount: amount,
			Status: model.MilestoneStatusPending,
		}
	}

	job.JobId = uuid.NewString() // 合约限制任务ID不超过50字符
	job.TotalAmount = total
	job.Status = model.JobStatusDraft

	if err := j.store.CreateJob(ctx, job, milestones); err != nil {
		return nil, err
	}
	return job, nil
}

// AssignFreelancer 选定自由职业者，任务转为待质押
func (j *JobLogic) AssignFreelancer(ctx context.Context, jobId, caller, freelancer string) error {
	job, err := j.store.GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	if !strings.EqualFold(caller, job.RecruiterWallet) {
		return &GuardViolation{Kind: GuardNotRecruiter, JobId: jobId,
			Message: "只有雇主可以选定自由职业者"}
	}
	if job.Status != model.JobStatusDraft {
		return errors.New("只有草稿状态的任务可以选人")
	}
	if freelancer == "" {
		return errors.New("自由职业者钱包不能为空")
	}

	return j.store.UpdateJob(ctx, jobId, map[string]interface{}{
		"freelancer_wallet": freelancer,
		"status":            model.JobStatusOpen,
	})
}

// Fund 质押：创建链上托管账户并锁定全部里程碑金额
func (j *JobLogic) Fund(ctx context.Context, jobId, caller string) (*OpResult, error) {
	job, err := j.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(caller, job.RecruiterWallet) {
		return nil, &GuardViolation{Kind: GuardNotRecruiter, JobId: jobId,
			Message: "只有雇主可以质押"}
	}
	if job.FreelancerWallet == "" {
		return nil, errors.New("质押前必须先选定自由职业者")
	}
	if job.Status != model.JobStatusOpen {
		return nil, errors.New("任务状态不允许质押")
	}

	milestones, err := j.store.GetMilestones(ctx, jobId)
	if err != nil {
		return nil, err
	}
	amounts := make([]int64, len(milestones))
	for i, m := range milestones {
		amounts[i] = m.Amount
	}

	signature, err := j.chain.SubmitFund(ctx, jobId, job.FreelancerWallet, amounts)
	if err != nil {
		return nil, err
	}

	result := &OpResult{JobId: jobId, Signature: signature, MirrorSynced: true}

	if err := j.syncFundMirror(ctx, job, signature); err != nil {
		logger.Error("Mirror update failed after funding job %s: %v", jobId, err)
		if uerr := j.store.UpdateJob(ctx, jobId, map[string]interface{}{"mirror_stale": true}); uerr != nil {
			logger.Error("Failed to flag job %s for mirror retry: %v", jobId, uerr)
		}
		result.MirrorSynced = false
	}

	return result, nil
}

func (j *JobLogic) syncFundMirror(ctx context.Context, job *model.JobModel, signature string) error {
	if err := j.store.AppendTransaction(ctx, &model.TransactionRecordModel{
		JobId:      job.JobId,
		FromWallet: job.RecruiterWallet,
		ToWallet:   j.chain.EscrowAddress(),
		Amount:     job.TotalAmount,
		Type:       model.TxnTypeStake,
		Status:     model.TxnStatusConfirmed,
		Signature:  signature,
	}); err != nil {
		return err
	}

	return j.store.UpdateJob(ctx, job.JobId, map[string]interface{}{
		"status":            model.JobStatusActive,
		"fund_tx_signature": signature,
	})
}

// GetJob 获取任务及其里程碑
func (j *JobLogic) GetJob(ctx context.Context, jobId string) (*model.JobModel, []model.MilestoneModel, error) {
	job, err := j.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, nil, err
	}
	milestones, err := j.store.GetMilestones(ctx, jobId)
	if err != nil {
		return nil, nil, err
	}
	return job, milestones, nil
}

// ListJobs 获取任务列表
func (j *JobLogic) ListJobs(ctx context.Context, status string, page, pageSize int) ([]model.JobModel, int64, error) {
	return j.store.ListJobs(ctx, status, page, pageSize)
}

// GetTransactions 获取任务的交易记录
func (j *JobLogic) GetTransactions(ctx context.Context, jobId string) ([]model.TransactionRecordModel, error) {
	return j.store.GetTransactions(ctx, jobId)
}
