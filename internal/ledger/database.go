package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/fps/internal/model"
	"gorm.io/gorm"
)

// Database 基于 GORM 的账本实现
type Database struct {
	db *gorm.DB
}

// NewDatabase 创建账本
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateJob 创建任务及其里程碑
func (d *Database) CreateJob(ctx context.Context, job *model.JobModel, milestones []*model.MilestoneModel) error {
	if err := d.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("创建任务失败: %w", err)
	}
	for _, m := range milestones {
		m.JobId = job.JobId
		if err := d.db.WithContext(ctx).Create(m).Error; err != nil {
			return fmt.Errorf("创建里程碑失败: %w", err)
		}
	}
	return nil
}

// GetJob 获取任务
func (d *Database) GetJob(ctx context.Context, jobId string) (*model.JobModel, error) {
	var job model.JobModel
	if err := d.db.WithContext(ctx).Where("job_id = ?", jobId).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取任务失败: %w", err)
	}
	return &job, nil
}

// ListJobs 获取任务列表
func (d *Database) ListJobs(ctx context.Context, status string, page, pageSize int) ([]model.JobModel, int64, error) {
	var jobs []model.JobModel
	var total int64

	query := d.db.WithContext(ctx).Model(&model.JobModel{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取任务总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("获取任务列表失败: %w", err)
	}

	return jobs, total, nil
}

// UpdateJob 更新任务字段
func (d *Database) UpdateJob(ctx context.Context, jobId string, updates map[string]interface{}) error {
	result := d.db.WithContext(ctx).Model(&model.JobModel{}).Where("job_id = ?", jobId).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新任务失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// JobIdsByStatus 按状态取任务ID
func (d *Database) JobIdsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]string, error) {
	var ids []string
	if err := d.db.WithContext(ctx).Model(&model.JobModel{}).
		Where("status IN ?", statuses).
		Pluck("job_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("获取任务ID失败: %w", err)
	}
	return ids, nil
}

// StaleJobIds 取镜像写入失败待重试的任务ID
func (d *Database) StaleJobIds(ctx context.Context) ([]string, error) {
	var ids []string
	if err := d.db.WithContext(ctx).Model(&model.JobModel{}).
		Where("mirror_stale = ?", true).
		Pluck("job_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("获取待重试任务失败: %w", err)
	}
	return ids, nil
}

// CreateMilestone 创建单个里程碑（对账重建缺失记录时使用）
func (d *Database) CreateMilestone(ctx context.Context, milestone *model.MilestoneModel) error {
	if err := d.db.WithContext(ctx).Create(milestone).Error; err != nil {
		return fmt.Errorf("创建里程碑失败: %w", err)
	}
	return nil
}

// GetMilestones 获取任务的里程碑，按阶段号升序
func (d *Database) GetMilestones(ctx context.Context, jobId string) ([]model.MilestoneModel, error) {
	var milestones []model.MilestoneModel
	if err := d.db.WithContext(ctx).
		Where("job_id = ?", jobId).
		Order("stage ASC").
		Find(&milestones).Error; err != nil {
		return nil, fmt.Errorf("获取里程碑失败: %w", err)
	}
	return milestones, nil
}

// GetMilestone 获取单个里程碑
func (d *Database) GetMilestone(ctx context.Context, jobId string, stage int) (*model.MilestoneModel, error) {
	var milestone model.MilestoneModel
	if err := d.db.WithContext(ctx).
		Where("job_id = ? AND stage = ?", jobId, stage).
		First(&milestone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取里程碑失败: %w", err)
	}
	return &milestone, nil
}

// UpdateMilestone 更新里程碑字段
func (d *Database) UpdateMilestone(ctx context.Context, jobId string, stage int, updates map[string]interface{}) error {
	result := d.db.WithContext(ctx).Model(&model.MilestoneModel{}).
		Where("job_id = ? AND stage = ?", jobId, stage).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新里程碑失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTransaction 追加交易记录
func (d *Database) AppendTransaction(ctx context.Context, record *model.TransactionRecordModel) error {
	if err := d.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("创建交易记录失败: %w", err)
	}
	return nil
}

// HasTransaction 指定里程碑是否已有指定类型的交易记录
func (d *Database) HasTransaction(ctx context.Context, jobId string, milestoneId int64, txnType model.TxnType) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&model.TransactionRecordModel{}).
		Where("job_id = ? AND milestone_id = ? AND type = ?", jobId, milestoneId, txnType).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询交易记录失败: %w", err)
	}
	return count > 0, nil
}

// GetTransactions 获取任务的交易记录
func (d *Database) GetTransactions(ctx context.Context, jobId string) ([]model.TransactionRecordModel, error) {
	var records []model.TransactionRecordModel
	if err := d.db.WithContext(ctx).
		Where("job_id = ?", jobId).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("获取交易记录失败: %w", err)
	}
	return records, nil
}

// CreateReclaimInquiry 创建申诉工单
func (d *Database) CreateReclaimInquiry(ctx context.Context, inquiry *model.ReclaimInquiryModel) error {
	if err := d.db.WithContext(ctx).Create(inquiry).Error; err != nil {
		return fmt.Errorf("创建申诉工单失败: %w", err)
	}
	return nil
}
