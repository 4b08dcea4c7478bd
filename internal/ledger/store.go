package ledger

import (
	"context"
	"errors"

	"github.com/blues/fps/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("ledger: record not found")

// Store 链下账本（镜像）
//
// 不提供跨记录事务保证，核心逻辑的不变量在部分写入下也必须成立：
// 镜像只是链上真值的缓存，任何字段都可以由对账引擎重写。
type Store interface {
	// 任务
	CreateJob(ctx context.Context, job *model.JobModel, milestones []*model.MilestoneModel) error
	GetJob(ctx context.Context, jobId string) (*model.JobModel, error)
	ListJobs(ctx context.Context, status string, page, pageSize int) ([]model.JobModel, int64, error)
	UpdateJob(ctx context.Context, jobId string, updates map[string]interface{}) error
	JobIdsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]string, error)
	StaleJobIds(ctx context.Context) ([]string, error)

	// 里程碑
	CreateMilestone(ctx context.Context, milestone *model.MilestoneModel) error
	GetMilestones(ctx context.Context, jobId string) ([]model.MilestoneModel, error)
	GetMilestone(ctx context.Context, jobId string, stage int) (*model.MilestoneModel, error)
	UpdateMilestone(ctx context.Context, jobId string, stage int, updates map[string]interface{}) error

	// 交易记录（仅追加）
	AppendTransaction(ctx context.Context, record *model.TransactionRecordModel) error
	HasTransaction(ctx context.Context, jobId string, milestoneId int64, txnType model.TxnType) (bool, error)
	GetTransactions(ctx context.Context, jobId string) ([]model.TransactionRecordModel, error)

	// 申诉工单
	CreateReclaimInquiry(ctx context.Context, inquiry *model.ReclaimInquiryModel) error
}
