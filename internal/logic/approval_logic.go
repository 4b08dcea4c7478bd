package logic

import (
	"context"
	"strings"
	"time"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/model"
)

// ApprovalLogic 批准协调器
//
// 批准被定义为"达成已批准状态"而非"成为批准者"：
// 提交时链上回报"已批准"是并发者抢先的合法竞态，
// 重新对账后按成功收敛返回，而不是报错。
type ApprovalLogic struct {
	store      ledger.Store
	chain      escrow.Client
	reconciler *ReconcileLogic
}

// NewApprovalLogic 创建批准协调器
func NewApprovalLogic(store ledger.Store, chain escrow.Client, reconciler *ReconcileLogic) *ApprovalLogic {
	return &ApprovalLogic{store: store, chain: chain, reconciler: reconciler}
}

// Approve 批准指定阶段的里程碑
//
// 前置条件全部针对刚拉取的链上视图检查，不信任镜像：
// 调用者是雇主、该阶段未批准未领取、之前所有阶段都已批准。
// 任何违反都直接返回类型化错误，不触发链上调用。
func (a *ApprovalLogic) Approve(ctx context.Context, jobId string, stage int, caller string, comments string) (*OpResult, error) {
	view, err := a.reconciler.Reconcile(ctx, jobId)
	if err != nil {
		return nil, err
	}

	mv, ok := view.Milestone(stage)
	if !ok {
		return nil, &GuardViolation{Kind: GuardNoSuchStage, JobId: jobId, Stage: stage,
			Message: "链上不存在该阶段"}
	}
	if !strings.EqualFold(caller, view.RecruiterWallet) {
		return nil, &GuardViolation{Kind: GuardNotRecruiter, JobId: jobId, Stage: stage,
			Message: "只有雇主可以批准里程碑"}
	}
	if mv.Claimed {
		return nil, &GuardViolation{Kind: GuardAlreadyClaimed, JobId: jobId, Stage: stage,
			Message: "该里程碑付款已被领取"}
	}
	if mv.Approved {
		return nil, &GuardViolation{Kind: GuardAlreadyApproved, JobId: jobId, Stage: stage,
			Message: "该里程碑已批准"}
	}
	if !view.PriorApproved(stage) {
		return nil, &GuardViolation{Kind: GuardOutOfSequence, JobId: jobId, Stage: stage,
			Message: "之前的阶段尚未全部批准，必须按顺序批准"}
	}

	signature, err := a.chain.SubmitApprove(ctx, jobId, stage, caller)
	if err != nil {
		if escrow.IsCode(err, escrow.CodeAlreadyApproved) {
			// 读与写之间另一个批准已上链：重新对账使镜像跟上，按成功收敛
			logger.Info("Approve converged for job %s stage %d: already approved on chain", jobId, stage)
			synced := true
			if _, rerr := a.reconciler.Reconcile(ctx, jobId); rerr != nil {
				logger.Error("Post-convergence reconcile failed for job %s: %v", jobId, rerr)
				a.markMirrorStale(ctx, jobId)
				synced = false
			}
			return &OpResult{JobId: jobId, Stage: stage, Converged: true, MirrorSynced: synced}, nil
		}
		// 收敛之外的链上拒绝原样上抛
		return nil, err
	}

	result := &OpResult{JobId: jobId, Stage: stage, Signature: signature, MirrorSynced: true}

	// 链上变更已成功，镜像写入失败不再致命，转后台重试
	if err := a.syncMirror(ctx, jobId, stage, caller, comments, signature); err != nil {
		logger.Error("Mirror update failed after approval of job %s stage %d: %v", jobId, stage, err)
		a.markMirrorStale(ctx, jobId)
		result.MirrorSynced = false
	}

	return result, nil
}

// syncMirror 将批准结果写回镜像并追加批准标记记录
func (a *ApprovalLogic) syncMirror(ctx context.Context, jobId string, stage int, caller, comments, signature string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      model.MilestoneStatusApproved,
		"reviewed_at": &now,
	}
	if comments != "" {
		updates["reviewer_comments"] = comments
	}
	if err := a.store.UpdateMilestone(ctx, jobId, stage, updates); err != nil {
		return err
	}

	milestone, err := a.store.GetMilestone(ctx, jobId, stage)
	if err != nil {
		return err
	}

	// 批准本身不移动资金，资金在领取时转移
	return a.store.AppendTransaction(ctx, &model.TransactionRecordModel{
		JobId:       jobId,
		MilestoneId: milestone.Id,
		FromWallet:  caller,
		Amount:      0,
		Type:        model.TxnTypeApproval,
		Status:      model.TxnStatusConfirmed,
		Signature:   signature,
	})
}

func (a *ApprovalLogic) markMirrorStale(ctx context.Context, jobId string) {
	if err := a.store.UpdateJob(ctx, jobId, map[string]interface{}{"mirror_stale": true}); err != nil {
		logger.Error("Failed to flag job %s for mirror retry: %v", jobId, err)
	}
}
