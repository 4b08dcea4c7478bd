package logic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blues/fps/internal/model"
)

// 链上已领取而镜像未释放：镜像被拉到真值，并补录一条合成付款记录
func TestReconcile_ChainClaimedMirrorUnreleased(t *testing.T) {
	env := newTestEnv([]int64{100, 200})
	ctx := context.Background()

	// 链上阶段1已批准已领取，镜像还停留在已提交未释放
	env.chain.state.Milestones[0].Approved = true
	env.chain.state.Milestones[0].Claimed = true
	env.chain.state.StakedBalance = 200

	view, err := env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)
	assert.True(t, view.Milestones[0].Claimed)

	m, err := env.store.GetMilestone(ctx, testJobId, 1)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusClaimed, m.Status)
	assert.True(t, m.PaymentReleased)
	assert.NotNil(t, m.ReviewedAt)

	payments := env.store.txnsOfType(model.TxnTypePayment)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Synthetic)
	assert.Equal(t, int64(100), payments[0].Amount)
	assert.Equal(t, env.chain.EscrowAddress(), payments[0].FromWallet)
	assert.Equal(t, testFreelancer, payments[0].ToWallet)

	// 未动过的阶段保持原状
	m2, err := env.store.GetMilestone(ctx, testJobId, 2)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusSubmitted, m2.Status)
	assert.False(t, m2.PaymentReleased)
}

// 对账是幂等的：重复运行不改变镜像，也不重复补录
func TestReconcile_Idempotent(t *testing.T) {
	env := newTestEnv([]int64{100, 200})
	ctx := context.Background()

	env.chain.state.Milestones[0].Approved = true
	env.chain.state.Milestones[0].Claimed = true
	env.chain.state.Milestones[1].Approved = true

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)
	_, err = env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)

	assert.Len(t, env.store.txnsOfType(model.TxnTypePayment), 1)

	m1, _ := env.store.GetMilestone(ctx, testJobId, 1)
	assert.Equal(t, model.MilestoneStatusClaimed, m1.Status)
	m2, _ := env.store.GetMilestone(ctx, testJobId, 2)
	assert.Equal(t, model.MilestoneStatusApproved, m2.Status)
}

// 链上已批准未领取而镜像落后：镜像置为已批准
func TestReconcile_ChainApprovedMirrorBehind(t *testing.T) {
	env := newTestEnv([]int64{100})
	ctx := context.Background()

	env.chain.state.Milestones[0].Approved = true

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)

	m, _ := env.store.GetMilestone(ctx, testJobId, 1)
	assert.Equal(t, model.MilestoneStatusApproved, m.Status)
	assert.False(t, m.PaymentReleased)
	assert.Empty(t, env.store.txnsOfType(model.TxnTypePayment))
}

// 镜像声称比链上更强的支付状态：硬冲突，不向下自愈
func TestReconcile_MirrorStrongerThanChain(t *testing.T) {
	env := newTestEnv([]int64{100, 200})
	ctx := context.Background()

	// 链上两个标志都为假，镜像却声称已释放
	require.NoError(t, env.store.UpdateMilestone(ctx, testJobId, 1, map[string]interface{}{
		"status":           model.MilestoneStatusClaimed,
		"payment_released": true,
	}))

	view, err := env.reconciler.Reconcile(ctx, testJobId)
	require.Error(t, err)
	assert.True(t, IsDrift(err))
	assert.NotNil(t, view, "视图仍然返回供人工排查")

	var de *DriftError
	require.ErrorAs(t, err, &de)
	require.Len(t, de.Stages, 1)
	assert.Equal(t, 1, de.Stages[0].Stage)
	assert.True(t, de.Stages[0].PaymentReleased)
	assert.False(t, de.Stages[0].ChainClaimed)

	// 镜像保持原状，没有被降级
	m, _ := env.store.GetMilestone(ctx, testJobId, 1)
	assert.Equal(t, model.MilestoneStatusClaimed, m.Status)
	assert.True(t, m.PaymentReleased)
}

// 链上只批准而镜像声称已领取，同样算漂移
func TestReconcile_MirrorClaimedChainOnlyApproved(t *testing.T) {
	env := newTestEnv([]int64{100})
	ctx := context.Background()

	env.chain.state.Milestones[0].Approved = true
	require.NoError(t, env.store.UpdateMilestone(ctx, testJobId, 1, map[string]interface{}{
		"status":           model.MilestoneStatusClaimed,
		"payment_released": true,
	}))

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	assert.True(t, IsDrift(err))
}

// 全部领完后任务级状态修正为已完成
func TestReconcile_JobCompletedWhenAllClaimed(t *testing.T) {
	env := newTestEnv([]int64{100, 200})
	ctx := context.Background()

	for i := range env.chain.state.Milestones {
		env.chain.state.Milestones[i].Approved = true
		env.chain.state.Milestones[i].Claimed = true
	}
	env.chain.state.StakedBalance = 0

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)

	job, _ := env.store.GetJob(ctx, testJobId)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

// 干净的一轮对账清除镜像重试标记
func TestReconcile_ClearsMirrorStale(t *testing.T) {
	env := newTestEnv([]int64{100})
	ctx := context.Background()

	require.NoError(t, env.store.UpdateJob(ctx, testJobId, map[string]interface{}{"mirror_stale": true}))

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)

	job, _ := env.store.GetJob(ctx, testJobId)
	assert.False(t, job.MirrorStale)
}

// 漂移时重试标记不清除
func TestReconcile_DriftKeepsMirrorStale(t *testing.T) {
	env := newTestEnv([]int64{100})
	ctx := context.Background()

	require.NoError(t, env.store.UpdateJob(ctx, testJobId, map[string]interface{}{"mirror_stale": true}))
	require.NoError(t, env.store.UpdateMilestone(ctx, testJobId, 1, map[string]interface{}{
		"status": model.MilestoneStatusApproved,
	}))

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	assert.True(t, IsDrift(err))

	job, _ := env.store.GetJob(ctx, testJobId)
	assert.True(t, job.MirrorStale)
}

// 镜像缺失某阶段的记录（任务创建部分写入后）：按链上真值重建
func TestReconcile_RebuildsMissingMilestone(t *testing.T) {
	env := newTestEnv([]int64{100, 200})
	ctx := context.Background()

	env.store.dropMilestone(testJobId, 2)
	env.chain.state.Milestones[1].Approved = true
	env.chain.state.Milestones[1].Claimed = true
	env.chain.state.StakedBalance = 100

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)

	m, err := env.store.GetMilestone(ctx, testJobId, 2)
	require.NoError(t, err, "缺失的记录被重建")
	assert.Equal(t, int64(200), m.Amount)
	assert.Equal(t, model.MilestoneStatusClaimed, m.Status)
	assert.True(t, m.PaymentReleased)

	// 已领取的重建阶段照常补录合成付款记录
	payments := env.store.txnsOfType(model.TxnTypePayment)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Synthetic)
	assert.Equal(t, int64(200), payments[0].Amount)

	// 重建同样是幂等的
	_, err = env.reconciler.Reconcile(ctx, testJobId)
	require.NoError(t, err)
	milestones, _ := env.store.GetMilestones(ctx, testJobId)
	assert.Len(t, milestones, 2)
	assert.Len(t, env.store.txnsOfType(model.TxnTypePayment), 1)
}

// 缺失记录按链上标志重建到正确的状态档位
func TestReconcile_RebuildStatusFromChainFlags(t *testing.T) {
	tests := []struct {
		name     string
		approved bool
		claimed  bool
		status   model.MilestoneStatus
		released bool
	}{
		{"untouched", false, false, model.MilestoneStatusPending, false},
		{"approved only", true, false, model.MilestoneStatusApproved, false},
		{"claimed", true, true, model.MilestoneStatusClaimed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv([]int64{100})
			ctx := context.Background()
			env.store.dropMilestone(testJobId, 1)
			env.chain.state.Milestones[0].Approved = tt.approved
			env.chain.state.Milestones[0].Claimed = tt.claimed

			_, err := env.reconciler.Reconcile(ctx, testJobId)
			require.NoError(t, err)

			m, err := env.store.GetMilestone(ctx, testJobId, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, m.Status)
			assert.Equal(t, tt.released, m.PaymentReleased)
		})
	}
}

// 链上已领取合计超过最初锁定总额：拒绝对账，不动镜像
func TestReconcile_RefusesOverclaimedView(t *testing.T) {
	env := newTestEnv([]int64{100, 200})
	ctx := context.Background()

	// 非规范读取：金额被篡改，已领取合计 400 > 锁定总额 300
	env.chain.state.Milestones[0].Amount = 400
	env.chain.state.Milestones[0].Approved = true
	env.chain.state.Milestones[0].Claimed = true

	_, err := env.reconciler.Reconcile(ctx, testJobId)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	// 镜像未被污染
	m, _ := env.store.GetMilestone(ctx, testJobId, 1)
	assert.Equal(t, model.MilestoneStatusSubmitted, m.Status)
	assert.Empty(t, env.store.txnsOfType(model.TxnTypePayment))
}

// 链上读取失败归类为瞬时错误
func TestReconcile_ChainReadFailureIsTransient(t *testing.T) {
	env := newTestEnv([]int64{100})
	env.chain.readErr = assert.AnError

	_, err := env.reconciler.Reconcile(context.Background(), testJobId)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
