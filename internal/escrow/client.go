package escrow

import (
	"context"
)

// Client 托管合约访问能力
//
// ReadAccount 返回链上真值；Submit* 提交签名指令并返回交易签名。
// 指令级互斥由合约本身保证（重复批准/领取会被拒绝），
// 因此所有 Submit* 失败都可能是并发者已完成目标状态，
// 由调用方按 ChainError 分类判断是否收敛。
type Client interface {
	// ReadAccount 读取任务的托管账户状态
	ReadAccount(ctx context.Context, jobId string) (*AccountView, error)

	// SubmitFund 创建托管账户并锁定全部里程碑金额
	SubmitFund(ctx context.Context, jobId string, freelancer string, amounts []int64) (string, error)

	// SubmitApprove 批准指定阶段的里程碑
	SubmitApprove(ctx context.Context, jobId string, stage int, signer string) (string, error)

	// SubmitClaim 领取指定阶段的里程碑付款
	SubmitClaim(ctx context.Context, jobId string, stage int, signer string) (string, error)

	// SubmitCancel 取消任务并全额退款给雇主
	SubmitCancel(ctx context.Context, jobId string, signer string) (string, error)

	// EscrowAddress 托管合约地址，用于交易记录的资金方标识
	EscrowAddress() string
}
