package model

import (
	"time"
)

// JobModel 任务（岗位）模型
type JobModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	JobId       string `json:"job_id" gorm:"uniqueIndex;size:50;not null"` // 链上托管账户种子，最长50字符
	Title       string `json:"title" gorm:"not null" binding:"required"`
	Description string `json:"description" gorm:"type:text"`

	// 支付信息（原生资产最小单位，定点整数，避免浮点漂移）
	TotalAmount int64 `json:"total_amount" gorm:"not null"`

	// 状态
	Status JobStatus `json:"status" gorm:"default:'draft'"`

	// 参与方钱包
	RecruiterWallet  string `json:"recruiter_wallet" gorm:"not null"`
	FreelancerWallet string `json:"freelancer_wallet"` // 选人前为空

	// 区块链信息
	FundTxSignature string `json:"fund_tx_signature"`

	// 链上变更成功但镜像落库失败时置位，由后台任务重新对账
	MirrorStale bool `json:"mirror_stale" gorm:"default:false"`
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusDraft     JobStatus = "draft"     // 草稿
	JobStatusOpen      JobStatus = "open"      // 已选人待质押
	JobStatusActive    JobStatus = "active"    // 已质押进行中
	JobStatusCompleted JobStatus = "completed" // 已完成
	JobStatusCancelled JobStatus = "cancelled" // 已取消
)

// TableName 自定义表名
func (JobModel) TableName() string {
	return "job"
}
