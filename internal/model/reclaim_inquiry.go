package model

import (
	"time"
)

// ReclaimInquiryModel 人工回收申诉工单
//
// 已有里程碑被批准的任务不允许单方面取消，转人工处理，
// 工单附带逐里程碑状态快照供审计。
type ReclaimInquiryModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	JobId           string `json:"job_id" gorm:"index;size:50;not null"`
	RequesterWallet string `json:"requester_wallet" gorm:"not null"`

	// 逐里程碑状态快照（JSON）
	Snapshot string `json:"snapshot" gorm:"type:text"`

	// 是否已成功转发到客服系统
	Delivered bool `json:"delivered" gorm:"default:false"`
}

// TableName 自定义表名
func (ReclaimInquiryModel) TableName() string {
	return "reclaim_inquiry"
}
