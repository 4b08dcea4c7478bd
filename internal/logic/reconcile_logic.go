package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/model"
)

// ReconcileLogic 对账引擎
//
// 每次调用都对链上做一次实时读取（陈旧性正是要解决的问题，
// 不做任何跨调用缓存），把链上标志与镜像状态逐阶段比对并修正镜像，
// 再把实时视图返回给调用方：后续的守卫检查直接基于该视图，
// 永远不依赖刚修完的镜像。
type ReconcileLogic struct {
	store ledger.Store
	chain escrow.Client
}

// NewReconcileLogic 创建对账引擎
func NewReconcileLogic(store ledger.Store, chain escrow.Client) *ReconcileLogic {
	return &ReconcileLogic{store: store, chain: chain}
}

// Reconcile 拉取链上真值并修正镜像
//
// 修正规则按优先级严格排序：
//  1. 链上已领取而镜像未释放 → 镜像置为 approved+claimed，缺失对应
//     付款记录时补录一条合成交易
//  2. 链上已批准而镜像不在 {approved, claimed} → 镜像置为 approved
//  3. 链上两个标志都为假而镜像声称 approved/claimed → 硬冲突，
//     不自动修正，返回 DriftError 供人工处理
func (r *ReconcileLogic) Reconcile(ctx context.Context, jobId string) (*escrow.AccountView, error) {
	view, err := r.chain.ReadAccount(ctx, jobId)
	if err != nil {
		return nil, &TransientError{Op: "escrow read", Err: err}
	}

	job, err := r.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, fmt.Errorf("对账时读取任务失败: %w", err)
	}

	milestones, err := r.store.GetMilestones(ctx, jobId)
	if err != nil {
		return nil, fmt.Errorf("对账时读取里程碑失败: %w", err)
	}

	byStage := make(map[int]*model.MilestoneModel, len(milestones))
	for i := range milestones {
		byStage[milestones[i].Stage] = &milestones[i]
	}

	if total := view.ClaimedTotal(); job.TotalAmount > 0 && total > job.TotalAmount {
		// 已领取合计不可能超过最初锁定的总额，读到了非规范状态
		logger.Error("Escrow view for job %s claims %d paid out of %d staked, refusing to reconcile",
			jobId, total, job.TotalAmount)
		return nil, &TransientError{Op: "escrow read",
			Err: fmt.Errorf("claimed total %d exceeds staked total %d", total, job.TotalAmount)}
	}

	var drift []DriftStage
	for i, mv := range view.Milestones {
		stage := i + 1
		mirror, ok := byStage[stage]
		if !ok {
			// 镜像缺失该阶段的记录（任务创建时部分写入），按链上真值补建
			logger.Warn("Mirror missing milestone for job %s stage %d, rebuilding from chain", jobId, stage)
			if err := r.rebuildMilestone(ctx, view, stage, mv); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case mirrorRank(mirror) > chainRank(mv):
			// 镜像声称了比链上更强的支付状态，硬冲突
			drift = append(drift, DriftStage{
				Stage:           stage,
				MirrorStatus:    mirror.Status,
				PaymentReleased: mirror.PaymentReleased,
				ChainApproved:   mv.Approved,
				ChainClaimed:    mv.Claimed,
			})

		case mv.Claimed && !mirror.PaymentReleased:
			if err := r.applyClaimed(ctx, view, mirror); err != nil {
				return nil, err
			}

		case mv.Claimed && mirror.Status != model.MilestoneStatusClaimed:
			if err := r.store.UpdateMilestone(ctx, jobId, stage, map[string]interface{}{
				"status": model.MilestoneStatusClaimed,
			}); err != nil {
				return nil, fmt.Errorf("对账修正里程碑状态失败: %w", err)
			}

		case mv.Approved && !mv.Claimed && mirror.Status != model.MilestoneStatusApproved:
			if err := r.store.UpdateMilestone(ctx, jobId, stage, map[string]interface{}{
				"status": model.MilestoneStatusApproved,
			}); err != nil {
				return nil, fmt.Errorf("对账修正里程碑状态失败: %w", err)
			}
		}
	}

	if err := r.reconcileJobStatus(ctx, job, view); err != nil {
		return nil, err
	}

	if len(drift) > 0 {
		logger.Error("Drift detected for job %s: mirror claims stronger state than chain, stages=%v", jobId, drift)
		return view, &DriftError{JobId: jobId, Stages: drift}
	}

	// 一次完整对账后镜像即为新鲜，清除重试标记
	if job.MirrorStale {
		if err := r.store.UpdateJob(ctx, jobId, map[string]interface{}{"mirror_stale": false}); err != nil {
			logger.Warn("Failed to clear mirror_stale for job %s: %v", jobId, err)
		}
	}

	return view, nil
}

// rebuildMilestone 镜像缺失该阶段的记录：按链上真值重建，
// 已领取的阶段照常补录合成付款记录
func (r *ReconcileLogic) rebuildMilestone(ctx context.Context, view *escrow.AccountView, stage int, mv escrow.MilestoneView) error {
	rebuilt := &model.MilestoneModel{
		JobId:  view.JobId,
		Stage:  stage,
		Amount: mv.Amount,
		Status: model.MilestoneStatusPending,
	}
	switch {
	case mv.Claimed:
		rebuilt.Status = model.MilestoneStatusClaimed
		rebuilt.PaymentReleased = true
	case mv.Approved:
		rebuilt.Status = model.MilestoneStatusApproved
	}

	if err := r.store.CreateMilestone(ctx, rebuilt); err != nil {
		return fmt.Errorf("对账重建里程碑失败: %w", err)
	}

	if mv.Claimed {
		return r.ensurePaymentRecord(ctx, view, rebuilt)
	}
	return nil
}

// applyClaimed 链上已领取而镜像未释放：接受链上真值，必要时补录合成付款记录
func (r *ReconcileLogic) applyClaimed(ctx context.Context, view *escrow.AccountView, mirror *model.MilestoneModel) error {
	now := time.Now()
	if err := r.store.UpdateMilestone(ctx, view.JobId, mirror.Stage, map[string]interface{}{
		"status":           model.MilestoneStatusClaimed,
		"payment_released": true,
		"reviewed_at":      &now,
	}); err != nil {
		return fmt.Errorf("对账修正里程碑失败: %w", err)
	}

	return r.ensurePaymentRecord(ctx, view, mirror)
}

// ensurePaymentRecord 该阶段缺失付款记录时补录一条合成交易
func (r *ReconcileLogic) ensurePaymentRecord(ctx context.Context, view *escrow.AccountView, mirror *model.MilestoneModel) error {
	exists, err := r.store.HasTransaction(ctx, view.JobId, mirror.Id, model.TxnTypePayment)
	if err != nil {
		return fmt.Errorf("对账查询交易记录失败: %w", err)
	}
	if !exists {
		record := &model.TransactionRecordModel{
			JobId:       view.JobId,
			MilestoneId: mirror.Id,
			FromWallet:  r.chain.EscrowAddress(),
			ToWallet:    view.FreelancerWallet,
			Amount:      mirror.Amount,
			Type:        model.TxnTypePayment,
			Status:      model.TxnStatusConfirmed,
			Synthetic:   true,
		}
		if err := r.store.AppendTransaction(ctx, record); err != nil {
			return fmt.Errorf("对账补录交易记录失败: %w", err)
		}
		logger.Info("Appended synthetic payment record for job %s stage %d", view.JobId, mirror.Stage)
	}

	return nil
}

// reconcileJobStatus 依据链上视图修正任务级状态
func (r *ReconcileLogic) reconcileJobStatus(ctx context.Context, job *model.JobModel, view *escrow.AccountView) error {
	var newStatus model.JobStatus

	switch {
	case view.AllClaimed() && job.Status == model.JobStatusActive:
		newStatus = model.JobStatusCompleted
	case view.StakedBalance > 0 &&
		(job.Status == model.JobStatusDraft || job.Status == model.JobStatusOpen):
		// 质押已上链但镜像还停在质押前的状态
		newStatus = model.JobStatusActive
	default:
		return nil
	}

	if err := r.store.UpdateJob(ctx, job.JobId, map[string]interface{}{"status": newStatus}); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return fmt.Errorf("对账修正任务状态失败: %w", err)
	}
	logger.Info("Reconciled job %s status from %s to %s", job.JobId, job.Status, newStatus)
	job.Status = newStatus
	return nil
}

// chainRank 链上支付状态强度：未批准0，已批准1，已领取2
func chainRank(mv escrow.MilestoneView) int {
	switch {
	case mv.Claimed:
		return 2
	case mv.Approved:
		return 1
	default:
		return 0
	}
}

// mirrorRank 镜像支付状态强度，口径与 chainRank 一致
func mirrorRank(m *model.MilestoneModel) int {
	switch {
	case m.PaymentReleased || m.Status == model.MilestoneStatusClaimed:
		return 2
	case m.Status == model.MilestoneStatusApproved:
		return 1
	default:
		return 0
	}
}
