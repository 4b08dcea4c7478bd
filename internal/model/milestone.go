package model

import (
	"time"
)

// MilestoneModel 里程碑模型
//
// Status 是链上 approved/claimed 标志加链下提交内容的派生缓存，
// 允许滞后于链上真值，但不允许比链上更强（由对账引擎保证）。
type MilestoneModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	JobId string `json:"job_id" gorm:"index;size:50;not null"`
	Stage int    `json:"stage" gorm:"not null"` // 阶段号，从1开始，连续无空洞

	// 支付信息
	Amount          int64 `json:"amount" gorm:"not null"`
	PaymentReleased bool  `json:"payment_released" gorm:"default:false"`

	// 状态
	Status MilestoneStatus `json:"status" gorm:"default:'pending'"`

	// 提交内容（仅存链下）
	SubmissionDescription string `json:"submission_description" gorm:"type:text"`
	SubmissionLinks       string `json:"submission_links" gorm:"type:text"`
	SubmissionFiles       string `json:"submission_files" gorm:"type:text"`

	// 审核意见
	ReviewerComments string `json:"reviewer_comments" gorm:"type:text"`

	// 时间信息
	SubmittedAt *time.Time `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
}

// MilestoneStatus 里程碑状态
type MilestoneStatus string

const (
	MilestoneStatusPending           MilestoneStatus = "pending"            // 待开始
	MilestoneStatusInProgress        MilestoneStatus = "in_progress"        // 进行中
	MilestoneStatusSubmitted         MilestoneStatus = "submitted"          // 已提交待审核
	MilestoneStatusApproved          MilestoneStatus = "approved"           // 已批准
	MilestoneStatusRevisionRequested MilestoneStatus = "revision_requested" // 要求返工
	MilestoneStatusClaimed           MilestoneStatus = "claimed"            // 已领取（终态）
)

// TableName 自定义表名
func (MilestoneModel) TableName() string {
	return "milestone"
}
