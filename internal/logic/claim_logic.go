package logic

import (
	"context"
	"strings"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/model"
)

// ClaimLogic 领款协调器
type ClaimLogic struct {
	store      ledger.Store
	chain      escrow.Client
	reconciler *ReconcileLogic
}

// NewClaimLogic 创建领款协调器
func NewClaimLogic(store ledger.Store, chain escrow.Client, reconciler *ReconcileLogic) *ClaimLogic {
	return &ClaimLogic{store: store, chain: chain, reconciler: reconciler}
}

// Claim 领取指定阶段的里程碑付款
//
// 领取人身份核对用链上记录的自由职业者钱包，而不是镜像缓存的
// 钱包字段，防止换绑钱包后用过期身份领款。
func (c *ClaimLogic) Claim(ctx context.Context, jobId string, stage int, claimant string) (*OpResult, error) {
	view, err := c.reconciler.Reconcile(ctx, jobId)
	if err != nil {
		return nil, err
	}

	mv, ok := view.Milestone(stage)
	if !ok {
		return nil, &GuardViolation{Kind: GuardNoSuchStage, JobId: jobId, Stage: stage,
			Message: "链上不存在该阶段"}
	}
	if view.StakedBalance <= 0 {
		return nil, &GuardViolation{Kind: GuardNotFunded, JobId: jobId, Stage: stage,
			Message: "托管账户没有质押资金"}
	}
	if !mv.Approved {
		return nil, &GuardViolation{Kind: GuardNotApproved, JobId: jobId, Stage: stage,
			Message: "该里程碑尚未批准，不能领取付款"}
	}
	if mv.Claimed {
		return nil, &GuardViolation{Kind: GuardAlreadyClaimed, JobId: jobId, Stage: stage,
			Message: "该里程碑付款已被领取"}
	}
	if !strings.EqualFold(claimant, view.FreelancerWallet) {
		return nil, &GuardViolation{Kind: GuardNotFreelancer, JobId: jobId, Stage: stage,
			Message: "只有链上记录的自由职业者可以领取付款"}
	}

	signature, err := c.chain.SubmitClaim(ctx, jobId, stage, claimant)
	if err != nil {
		switch {
		case escrow.IsCode(err, escrow.CodeAlreadyClaimed):
			// 并发领取已上链：对账会补齐镜像状态和合成付款记录，按成功收敛
			logger.Info("Claim converged for job %s stage %d: already claimed on chain", jobId, stage)
			synced := true
			if _, rerr := c.reconciler.Reconcile(ctx, jobId); rerr != nil {
				logger.Error("Post-convergence reconcile failed for job %s: %v", jobId, rerr)
				c.markMirrorStale(ctx, jobId)
				synced = false
			}
			return &OpResult{JobId: jobId, Stage: stage, Converged: true, MirrorSynced: synced}, nil

		case escrow.IsCode(err, escrow.CodeNotApproved):
			// 读取时已批准而提交时不是：这类回退对账本应发现，记录供漂移排查
			logger.Error("Claim for job %s stage %d hit not-approved after a fresh read, possible drift", jobId, stage)
			return nil, &StaleViewError{JobId: jobId, Stage: stage, Reason: "approval not found on chain at submission time"}
		}
		return nil, err
	}

	result := &OpResult{JobId: jobId, Stage: stage, Signature: signature, MirrorSynced: true}

	// 链上转账已完成，镜像写入失败只影响展示，转后台重试
	if err := c.syncMirror(ctx, view, stage, claimant, signature); err != nil {
		logger.Error("Mirror update failed after claim of job %s stage %d: %v", jobId, stage, err)
		c.markMirrorStale(ctx, jobId)
		result.MirrorSynced = false
	}

	return result, nil
}

// syncMirror 付款记录落库、镜像置为已领取，最后一笔领完则任务完成
func (c *ClaimLogic) syncMirror(ctx context.Context, view *escrow.AccountView, stage int, claimant, signature string) error {
	milestone, err := c.store.GetMilestone(ctx, view.JobId, stage)
	if err != nil {
		return err
	}

	if err := c.store.AppendTransaction(ctx, &model.TransactionRecordModel{
		JobId:       view.JobId,
		MilestoneId: milestone.Id,
		FromWallet:  c.chain.EscrowAddress(),
		ToWallet:    view.FreelancerWallet,
		Amount:      milestone.Amount,
		Type:        model.TxnTypePayment,
		Status:      model.TxnStatusConfirmed,
		Signature:   signature,
	}); err != nil {
		return err
	}

	if err := c.store.UpdateMilestone(ctx, view.JobId, stage, map[string]interface{}{
		"status":           model.MilestoneStatusClaimed,
		"payment_released": true,
	}); err != nil {
		return err
	}

	// 读取视图时该阶段还未领取，领完后若其它阶段都已领取则任务完成
	remaining := 0
	for i, mv := range view.Milestones {
		if i+1 != stage && !mv.Claimed {
			remaining++
		}
	}
	if remaining == 0 {
		if err := c.store.UpdateJob(ctx, view.JobId, map[string]interface{}{
			"status": model.JobStatusCompleted,
		}); err != nil {
			return err
		}
		logger.Info("Job %s completed: all milestone payments claimed", view.JobId)
	}

	return nil
}

func (c *ClaimLogic) markMirrorStale(ctx context.Context, jobId string) {
	if err := c.store.UpdateJob(ctx, jobId, map[string]interface{}{"mirror_stale": true}); err != nil {
		logger.Error("Failed to flag job %s for mirror retry: %v", jobId, err)
	}
}
