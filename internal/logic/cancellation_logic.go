package logic

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logger"
	"github.com/blues/fps/internal/model"
	"github.com/blues/fps/internal/support"
)

// Decision 取消评估结论
type Decision string

const (
	DecisionCancellable Decision = "cancellable"  // 可直接取消并全额退款
	DecisionReclaimOnly Decision = "reclaim_only" // 已有价值承诺，只能走人工回收
)

// CancelResult 取消操作结果
type CancelResult struct {
	JobId        string   `json:"job_id"`
	Decision     Decision `json:"decision"`
	Signature    string   `json:"signature,omitempty"`  // 仅直接取消时有值
	InquiryId    int64    `json:"inquiry_id,omitempty"` // 仅人工回收时有值
	MirrorSynced bool     `json:"mirror_synced"`
}

// CancellationLogic 取消决策引擎
//
// 任一里程碑已在链上批准即视为价值已向自由职业者承诺，
// 合约策略禁止雇主单方面取消，只能走人工调解回收。
type CancellationLogic struct {
	store      ledger.Store
	chain      escrow.Client
	reconciler *ReconcileLogic
	sink       support.Sink
}

// NewCancellationLogic 创建取消决策引擎
func NewCancellationLogic(store ledger.Store, chain escrow.Client, reconciler *ReconcileLogic, sink support.Sink) *CancellationLogic {
	return &CancellationLogic{store: store, chain: chain, reconciler: reconciler, sink: sink}
}

// EvaluateCancellation 基于新鲜链上视图评估任务是否可直接取消
func (c *CancellationLogic) EvaluateCancellation(ctx context.Context, jobId string) (Decision, *escrow.AccountView, error) {
	view, err := c.reconciler.Reconcile(ctx, jobId)
	if err != nil {
		return "", nil, err
	}
	if view.AnyApproved() {
		return DecisionReclaimOnly, view, nil
	}
	return DecisionCancellable, view, nil
}

// Cancel 评估并执行取消
//
// 可取消：提交取消指令，预期全额退款给雇主，记录退款交易，
// 任务转为已取消。只能回收：创建带完整逐里程碑快照的申诉工单。
func (c *CancellationLogic) Cancel(ctx context.Context, jobId string, caller string) (*CancelResult, error) {
	decision, view, err := c.EvaluateCancellation(ctx, jobId)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(caller, view.RecruiterWallet) {
		return nil, &GuardViolation{Kind: GuardNotRecruiter, JobId: jobId,
			Message: "只有雇主可以取消任务"}
	}

	if decision == DecisionReclaimOnly {
		return c.fileReclaimInquiry(ctx, view, caller)
	}

	signature, err := c.chain.SubmitCancel(ctx, jobId, caller)
	if err != nil {
		if escrow.IsCode(err, escrow.CodeCannotCancelAfterApproval) {
			// 读取后批准才上链的竞态：不重试取消，让调用方重新评估
			logger.Warn("Cancel raced by approval for job %s", jobId)
			return nil, &CancelRacedError{JobId: jobId}
		}
		return nil, err
	}

	result := &CancelResult{JobId: jobId, Decision: DecisionCancellable, Signature: signature, MirrorSynced: true}

	if err := c.syncMirror(ctx, view, caller, signature); err != nil {
		logger.Error("Mirror update failed after cancellation of job %s: %v", jobId, err)
		if uerr := c.store.UpdateJob(ctx, jobId, map[string]interface{}{"mirror_stale": true}); uerr != nil {
			logger.Error("Failed to flag job %s for mirror retry: %v", jobId, uerr)
		}
		result.MirrorSynced = false
	}

	return result, nil
}

// fileReclaimInquiry 创建人工回收工单，附逐里程碑状态快照供审计
func (c *CancellationLogic) fileReclaimInquiry(ctx context.Context, view *escrow.AccountView, requester string) (*CancelResult, error) {
	milestones, err := c.store.GetMilestones(ctx, view.JobId)
	if err != nil {
		return nil, err
	}
	byStage := make(map[int]*model.MilestoneModel, len(milestones))
	for i := range milestones {
		byStage[milestones[i].Stage] = &milestones[i]
	}

	snapshots := make([]support.MilestoneSnapshot, 0, len(view.Milestones))
	for i, mv := range view.Milestones {
		snap := support.MilestoneSnapshot{
			Stage:         i + 1,
			Amount:        mv.Amount,
			ChainApproved: mv.Approved,
			ChainClaimed:  mv.Claimed,
		}
		if mirror, ok := byStage[i+1]; ok {
			snap.MirrorStatus = string(mirror.Status)
			snap.PaymentReleased = mirror.PaymentReleased
		}
		snapshots = append(snapshots, snap)
	}

	inquiry := &support.Inquiry{
		JobId:      view.JobId,
		Requester:  requester,
		Milestones: snapshots,
		CreatedAt:  time.Now(),
	}

	encoded, err := json.Marshal(snapshots)
	if err != nil {
		return nil, err
	}
	record := &model.ReclaimInquiryModel{
		JobId:           view.JobId,
		RequesterWallet: requester,
		Snapshot:        string(encoded),
	}

	// 工单转发是发后不理：失败只上报，不影响决策结果
	delivered := true
	if err := c.sink.Submit(ctx, inquiry); err != nil {
		logger.Error("Failed to deliver reclaim inquiry for job %s: %v", view.JobId, err)
		delivered = false
	}
	record.Delivered = delivered

	if err := c.store.CreateReclaimInquiry(ctx, record); err != nil {
		return nil, err
	}

	return &CancelResult{
		JobId:        view.JobId,
		Decision:     DecisionReclaimOnly,
		InquiryId:    record.Id,
		MirrorSynced: true,
	}, nil
}

// syncMirror 退款记录落库、任务转为已取消
func (c *CancellationLogic) syncMirror(ctx context.Context, view *escrow.AccountView, caller, signature string) error {
	if err := c.store.AppendTransaction(ctx, &model.TransactionRecordModel{
		JobId:      view.JobId,
		FromWallet: c.chain.EscrowAddress(),
		ToWallet:   view.RecruiterWallet,
		Amount:     view.StakedBalance,
		Type:       model.TxnTypeRefund,
		Status:     model.TxnStatusConfirmed,
		Signature:  signature,
	}); err != nil {
		return err
	}

	return c.store.UpdateJob(ctx, view.JobId, map[string]interface{}{
		"status": model.JobStatusCancelled,
	})
}
